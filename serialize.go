// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rjson

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"

	"golang.org/x/exp/slices"
)

// JSONWrite is the sink interface the serializer writes to: any io.Writer,
// rather than forcing callers through a single buffer type.
type JSONWrite interface {
	io.Writer
}

type encoder struct {
	w      *bytes.Buffer
	pretty bool
	depth  int
}

func newEncoder(pretty bool) *encoder {
	return &encoder{w: &bytes.Buffer{}, pretty: pretty}
}

func (e *encoder) newline() {
	if !e.pretty {
		return
	}
	e.w.WriteByte('\n')
	for i := 0; i < e.depth; i++ {
		e.w.WriteString("  ")
	}
}

func (e *encoder) colon() {
	if e.pretty {
		e.w.WriteString(": ")
	} else {
		e.w.WriteByte(':')
	}
}

// ToString serializes v compactly.
func ToString(v any) (string, error) {
	e := newEncoder(false)
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return "", err
	}
	return e.w.String(), nil
}

// ToStringPretty serializes v with two-space indentation.
func ToStringPretty(v any) (string, error) {
	e := newEncoder(true)
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return "", err
	}
	return e.w.String(), nil
}

// ToWriter serializes v compactly directly to w.
func ToWriter(w JSONWrite, v any) error {
	e := newEncoder(false)
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return err
	}
	_, err := w.Write(e.w.Bytes())
	return err
}

// ToWriterPretty serializes v with indentation directly to w.
func ToWriterPretty(w JSONWrite, v any) error {
	e := newEncoder(true)
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return err
	}
	_, err := w.Write(e.w.Bytes())
	return err
}

// encode dispatches on v's compiled shape: a serialize hook (checked by the
// caller before recursing into a field) takes priority, then transparent
// unwrapping, then the shape kind switch below.
func (e *encoder) encode(v reflect.Value) error {
	if !v.IsValid() {
		e.w.WriteString("null")
		return nil
	}
	t := v.Type()
	if isSpannedShape(t) {
		// Spans are read-side provenance only; they carry nothing a
		// consumer of the JSON text could use, so Spanned[T] serializes as
		// plain T, the same way Option/pointer/transparent wrappers unwrap.
		return e.encode(v.FieldByName("Value"))
	}
	s := compileShape(t)

	switch s.kind {
	case KindPointerShape:
		if v.IsNil() {
			e.w.WriteString("null")
			return nil
		}
		return e.encode(v.Elem())
	case KindOptionShape:
		if !v.FieldByName("Valid").Bool() {
			e.w.WriteString("null")
			return nil
		}
		return e.encode(v.FieldByName("Value"))
	case KindTransparentShape:
		return e.encode(e.transparentInner(v, s))
	case KindScalarShape:
		return e.encodeScalar(v)
	case KindArrayShape, KindListShape:
		return e.encodeSeq(v, s)
	case KindSetShape:
		return e.encodeSet(v, s)
	case KindMapShape:
		return e.encodeMap(v, s)
	case KindEnumShape:
		return e.encodeEnum(v, s)
	case KindStructShape:
		return e.encodeStruct(v, s)
	default:
		return e.encodeScalar(v)
	}
}

func (e *encoder) transparentInner(v reflect.Value, s *shape) reflect.Value {
	for i := 0; i < v.NumField(); i++ {
		if v.Type().Field(i).PkgPath == "" {
			return v.Field(i)
		}
	}
	return v
}

func (e *encoder) encodeScalar(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.w.WriteString("true")
		} else {
			e.w.WriteString("false")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.w.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.w.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			// NaN/Inf have no JSON representation and serialize as null.
			e.w.WriteString("null")
			return nil
		}
		bitSize := 64
		if v.Kind() == reflect.Float32 {
			bitSize = 32
		}
		e.w.WriteString(strconv.FormatFloat(f, 'g', -1, bitSize))
	case reflect.String:
		e.writeJSONString(v.String())
	default:
		return errReflect(fmt.Errorf("cannot serialize scalar of kind %s", v.Kind()), Span{})
	}
	return nil
}

func (e *encoder) writeJSONString(s string) {
	e.w.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			e.w.WriteString(`\"`)
		case '\\':
			e.w.WriteString(`\\`)
		case '\b':
			e.w.WriteString(`\b`)
		case '\f':
			e.w.WriteString(`\f`)
		case '\n':
			e.w.WriteString(`\n`)
		case '\r':
			e.w.WriteString(`\r`)
		case '\t':
			e.w.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(e.w, `\u%04x`, r)
			} else {
				e.w.WriteRune(r)
			}
		}
	}
	e.w.WriteByte('"')
}

func (e *encoder) encodeSeq(v reflect.Value, s *shape) error {
	// Byte vectors ([]byte / [N]byte) serialize as an array of small
	// integers, not as a base64 string; there is no string-encoding special
	// case for byte slices.
	e.w.WriteByte('[')
	e.depth++
	n := v.Len()
	for i := 0; i < n; i++ {
		if i > 0 {
			e.w.WriteByte(',')
		}
		e.newline()
		if err := e.encode(v.Index(i)); err != nil {
			return err
		}
	}
	e.depth--
	if n > 0 {
		e.newline()
	}
	e.w.WriteByte(']')
	return nil
}

func (e *encoder) encodeSet(v reflect.Value, s *shape) error {
	keys := v.MapKeys()
	sortMapKeysStable(keys)
	e.w.WriteByte('[')
	e.depth++
	for i, k := range keys {
		if i > 0 {
			e.w.WriteByte(',')
		}
		e.newline()
		if err := e.encode(k); err != nil {
			return err
		}
	}
	e.depth--
	if len(keys) > 0 {
		e.newline()
	}
	e.w.WriteByte(']')
	return nil
}

// sortMapKeysStable gives deterministic output for map/set iteration
// rather than relying on Go's randomized map order.
func sortMapKeysStable(keys []reflect.Value) {
	slices.SortFunc(keys, func(a, b reflect.Value) bool {
		return mapKeyString(a) < mapKeyString(b)
	})
}

func mapKeyString(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// encodeMapKey writes a JSON object key: string keys are used as-is,
// integer keys are decimal-formatted, a transparent wrapper key is unwrapped
// first, any other key type falls back to a registered display hook, and
// otherwise the key type is unsupported.
func (e *encoder) encodeMapKey(v reflect.Value) error {
	if ks := compileShape(v.Type()); ks.kind == KindTransparentShape {
		return e.encodeMapKey(e.transparentInner(v, ks))
	}
	switch v.Kind() {
	case reflect.String:
		e.writeJSONString(v.String())
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.writeJSONString(strconv.FormatInt(v.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.writeJSONString(strconv.FormatUint(v.Uint(), 10))
		return nil
	}
	if fn, ok := lookupDisplay(v.Type()); ok {
		if text, ok := fn(v.Interface()); ok {
			e.writeJSONString(text)
			return nil
		}
	}
	return errInvalidValue(fmt.Sprintf("unsupported map key type %s", v.Type()), Span{})
}

func (e *encoder) encodeMap(v reflect.Value, s *shape) error {
	keys := v.MapKeys()
	sortMapKeysStable(keys)
	e.w.WriteByte('{')
	e.depth++
	for i, k := range keys {
		if i > 0 {
			e.w.WriteByte(',')
		}
		e.newline()
		if err := e.encodeMapKey(k); err != nil {
			return err
		}
		e.colon()
		if err := e.encode(v.MapIndex(k)); err != nil {
			return err
		}
	}
	e.depth--
	if len(keys) > 0 {
		e.newline()
	}
	e.w.WriteByte('}')
	return nil
}

func (e *encoder) encodeStruct(v reflect.Value, s *shape) error {
	if s.isTuple {
		e.w.WriteByte('[')
		e.depth++
		for i, f := range s.fields {
			if i > 0 {
				e.w.WriteByte(',')
			}
			e.newline()
			if err := e.encodeField(v, f); err != nil {
				return err
			}
		}
		e.depth--
		if len(s.fields) > 0 {
			e.newline()
		}
		e.w.WriteByte(']')
		return nil
	}

	e.w.WriteByte('{')
	e.depth++
	wrote := 0
	for _, f := range s.fields {
		if f.flatten {
			if err := e.encodeFlattenedInline(v.Field(f.index), &wrote); err != nil {
				return err
			}
			continue
		}
		if wrote > 0 {
			e.w.WriteByte(',')
		}
		e.newline()
		e.writeJSONString(f.wireName)
		e.colon()
		if err := e.encodeField(v, f); err != nil {
			return err
		}
		wrote++
	}
	e.depth--
	if wrote > 0 {
		e.newline()
	}
	e.w.WriteByte('}')
	return nil
}

func (e *encoder) encodeField(v reflect.Value, f fieldInfo) error {
	fv := v.Field(f.index)
	if f.serializeWith != nil {
		out, err := f.serializeWith(fv.Interface())
		if err != nil {
			return err
		}
		return e.encode(reflect.ValueOf(out))
	}
	return e.encode(fv)
}

// encodeFlattenedInline splices a flattened field's own object members
// directly into the enclosing object, skipping its own braces, mirroring
// the flatten driver's field-path merge in reverse. wrote
// counts the key/value pairs the enclosing object has emitted so far, so
// the separators stay correct when a splice contributes no pairs at all
// (a None option, a nil pointer, an empty map, a unit variant).
func (e *encoder) encodeFlattenedInline(fv reflect.Value, wrote *int) error {
	for {
		s := compileShape(fv.Type())
		if s.kind == KindOptionShape {
			if !fv.FieldByName("Valid").Bool() {
				return nil
			}
			fv = fv.FieldByName("Value")
			continue
		}
		if s.kind == KindPointerShape {
			if fv.IsNil() {
				return nil
			}
			fv = fv.Elem()
			continue
		}
		break
	}
	s := compileShape(fv.Type())
	sep := func() {
		if *wrote > 0 {
			e.w.WriteByte(',')
		}
		e.newline()
	}
	switch s.kind {
	case KindMapShape:
		keys := fv.MapKeys()
		sortMapKeysStable(keys)
		for _, k := range keys {
			sep()
			if err := e.encodeMapKey(k); err != nil {
				return err
			}
			e.colon()
			if err := e.encode(fv.MapIndex(k)); err != nil {
				return err
			}
			*wrote++
		}
		return nil
	case KindStructShape:
		for _, inf := range s.fields {
			if inf.flatten {
				if err := e.encodeFlattenedInline(fv.Field(inf.index), wrote); err != nil {
					return err
				}
				continue
			}
			sep()
			e.writeJSONString(inf.wireName)
			e.colon()
			if err := e.encodeField(fv, inf); err != nil {
				return err
			}
			*wrote++
		}
		return nil
	case KindEnumShape:
		return e.encodeFlattenedEnum(fv, s, wrote, sep)
	}
	return errInvalidValue(fmt.Sprintf("cannot flatten field of type %s", fv.Type()), Span{})
}

// encodeFlattenedEnum splices a flattened enum field into the enclosing
// object. The external and untagged forms contribute the active variant's
// struct-payload fields (the solver re-derives the variant from which keys
// are present); the internal form also contributes its tag pair, and the
// adjacent form contributes tag and content pairs.
func (e *encoder) encodeFlattenedEnum(fv reflect.Value, s *shape, wrote *int, sep func()) error {
	ev, err := asEnum(fv)
	if err != nil {
		return err
	}
	name, payload := ev.ActiveVariant()
	wireName := s.variantWireName(name)

	internalTag := s.cfg.Tag
	if internalTag == "" {
		internalTag = s.cfg.TypeTag
	}

	if s.hasCfg && s.cfg.Tag != "" && s.cfg.Content != "" {
		sep()
		e.writeJSONString(s.cfg.Tag)
		e.colon()
		e.writeJSONString(wireName)
		*wrote++
		if payload != nil {
			sep()
			e.writeJSONString(s.cfg.Content)
			e.colon()
			if err := e.encodeVariantContent(reflect.ValueOf(payload)); err != nil {
				return err
			}
			*wrote++
		}
		return nil
	}

	if s.hasCfg && internalTag != "" {
		sep()
		e.writeJSONString(internalTag)
		e.colon()
		e.writeJSONString(wireName)
		*wrote++
	}
	if payload == nil {
		// a unit variant contributes no payload keys; untagged/external unit
		// variants flatten to nothing at all.
		return nil
	}
	pv := reflect.ValueOf(payload)
	for pv.Kind() == reflect.Pointer {
		if pv.IsNil() {
			return nil
		}
		pv = pv.Elem()
	}
	inner := compileShape(pv.Type())
	if inner.kind != KindStructShape || inner.isTuple {
		return errInvalidValue(fmt.Sprintf("cannot flatten enum variant %q: payload is not a struct", name), Span{})
	}
	for _, f := range inner.fields {
		sep()
		e.writeJSONString(f.wireName)
		e.colon()
		if err := e.encodeField(pv, f); err != nil {
			return err
		}
		*wrote++
	}
	return nil
}

// encodeVariantContent writes an enum variant's payload, applying the
// newtype-flattening rule: a single-field tuple variant's one field is
// written as the bare value rather than a one-element array. Every other
// payload shape (struct variant, multi-field tuple variant) encodes the
// ordinary way.
func (e *encoder) encodeVariantContent(v reflect.Value) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			e.w.WriteString("null")
			return nil
		}
		v = v.Elem()
	}
	s := compileShape(v.Type())
	if s.kind == KindStructShape && s.isTuple && len(s.fields) == 1 {
		return e.encodeField(v, s.fields[0])
	}
	return e.encode(v)
}

// encodeEnum implements the four enum tagging strategies: external
// (default), internal, adjacent, and untagged.
func (e *encoder) encodeEnum(v reflect.Value, s *shape) error {
	ev, err := asEnum(v)
	if err != nil {
		return err
	}
	name, payload := ev.ActiveVariant()
	wireName := s.variantWireName(name)

	// TypeTag names the same internal-tagging mechanism as Tag; when a shape
	// carries one but not the other, treat them as the same key.
	internalTag := s.cfg.Tag
	if internalTag == "" {
		internalTag = s.cfg.TypeTag
	}

	if s.hasCfg && s.cfg.Untagged {
		if payload == nil {
			e.w.WriteString("null")
			return nil
		}
		return e.encodeVariantContent(reflect.ValueOf(payload))
	}

	if s.hasCfg && internalTag != "" && s.cfg.Content == "" {
		// internal tagging: the tag key is merged into the payload object.
		if payload == nil {
			e.w.WriteByte('{')
			e.depth++
			e.newline()
			e.writeJSONString(internalTag)
			e.colon()
			e.writeJSONString(wireName)
			e.depth--
			e.newline()
			e.w.WriteByte('}')
			return nil
		}
		pv := reflect.ValueOf(payload)
		for pv.Kind() == reflect.Pointer {
			pv = pv.Elem()
		}
		inner := compileShape(pv.Type())
		if inner.kind != KindStructShape || inner.isTuple {
			return errInvalidValue("internally tagged enum variant must carry a struct payload", Span{})
		}
		e.w.WriteByte('{')
		e.depth++
		e.newline()
		e.writeJSONString(internalTag)
		e.colon()
		e.writeJSONString(wireName)
		for _, f := range inner.fields {
			e.w.WriteByte(',')
			e.newline()
			e.writeJSONString(f.wireName)
			e.colon()
			if err := e.encodeField(pv, f); err != nil {
				return err
			}
		}
		e.depth--
		e.newline()
		e.w.WriteByte('}')
		return nil
	}

	if s.hasCfg && s.cfg.Tag != "" && s.cfg.Content != "" {
		// adjacent tagging: {tag: name, content: payload}; a variant with no
		// data omits the content key entirely rather than writing it as null.
		e.w.WriteByte('{')
		e.depth++
		e.newline()
		e.writeJSONString(s.cfg.Tag)
		e.colon()
		e.writeJSONString(wireName)
		if payload != nil {
			e.w.WriteByte(',')
			e.newline()
			e.writeJSONString(s.cfg.Content)
			e.colon()
			if err := e.encodeVariantContent(reflect.ValueOf(payload)); err != nil {
				return err
			}
		}
		e.depth--
		e.newline()
		e.w.WriteByte('}')
		return nil
	}

	// external tagging (default): unit variant serializes as its bare name
	// string; data variant serializes as {"Name": payload}.
	if payload == nil {
		e.writeJSONString(wireName)
		return nil
	}
	e.w.WriteByte('{')
	e.depth++
	e.newline()
	e.writeJSONString(wireName)
	e.colon()
	if err := e.encodeVariantContent(reflect.ValueOf(payload)); err != nil {
		return err
	}
	e.depth--
	e.newline()
	e.w.WriteByte('}')
	return nil
}
