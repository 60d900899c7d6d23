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
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// FromSlice parses buf (assumed to already be UTF-8, with no BOM handling)
// into dst, which must be a non-nil pointer. Exactly one JSON value followed
// by optional trailing whitespace is accepted.
func FromSlice(buf []byte, dst any) error {
	b, err := NewBuilder(dst)
	if err != nil {
		return err
	}
	tok := NewTokenizer(buf)
	if err := decodeValue(tok, b, ""); err != nil {
		return err
	}
	return expectEOF(tok)
}

// FromStr parses s the way FromSlice does, but first strips a leading UTF-8
// byte-order mark (FromSlice never does) and attaches the source text to any
// resulting Error so it can render a graphical snippet.
func FromStr(s string, dst any) error {
	s = stripBOM(s)
	b, err := NewBuilder(dst)
	if err != nil {
		return err
	}
	tok := NewTokenizer([]byte(s))
	if err := decodeValue(tok, b, s); err != nil {
		return attachSource(err, s)
	}
	if err := expectEOF(tok); err != nil {
		return attachSource(err, s)
	}
	return nil
}

const utf8BOM = "\xef\xbb\xbf"

func stripBOM(s string) string {
	if len(s) >= len(utf8BOM) && s[:len(utf8BOM)] == utf8BOM {
		return s[len(utf8BOM):]
	}
	return s
}

func attachSource(err error, src string) error {
	if e, ok := err.(*Error); ok {
		return e.withSource(src)
	}
	return err
}

func expectEOF(tok *Tokenizer) error {
	t, err := tok.Next()
	if err != nil {
		// Garbage after a complete value is "expected end of input", not a
		// bare lexer failure; keep the lexer's span (it covers the whole
		// offending identifier-like run).
		if e, ok := err.(*Error); ok && e.Kind == KindToken && e.HasSpan {
			return errUnexpectedToken("end of input", e.Span)
		}
		return err
	}
	if t.Kind != TokEOF {
		return errUnexpectedToken("end of input", t.Span)
	}
	return nil
}

// decodeValue drives the Builder through exactly one JSON value, matching
// it against the current position's shape: spanned-wrapper detection first,
// then smart pointer / Option unwrap, transparent unwrap, then the shape
// kind.
func decodeValue(tok *Tokenizer, b *Builder, src string) error {
	if isSpannedShape(b.Cur().Type()) {
		return decodeSpanned(tok, b, src)
	}
	s := b.CurrentShape()
	switch s.kind {
	case KindPointerShape:
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokNull {
			tok.Next()
			return nil
		}
		if err := b.BeginSmartPtr(); err != nil {
			return err
		}
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		return b.End()
	case KindOptionShape:
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokNull {
			tok.Next()
			return nil
		}
		if err := b.BeginSome(); err != nil {
			return err
		}
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		return b.End()
	case KindTransparentShape:
		if err := b.BeginInner(); err != nil {
			return err
		}
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		return b.End()
	case KindScalarShape:
		return decodeScalar(tok, b, s)
	case KindArrayShape:
		return decodeArray(tok, b, s, src)
	case KindListShape:
		return decodeSeq(tok, b, src)
	case KindSetShape:
		return decodeSet(tok, b, src)
	case KindMapShape:
		return decodeMap(tok, b, s, src)
	case KindStructShape:
		return decodeStruct(tok, b, s, src)
	case KindEnumShape:
		return decodeEnum(tok, b, s, src)
	default:
		return decodeScalar(tok, b, s)
	}
}

// decodeSpanned peeks the next token's starting offset, recurses into the
// Value field as usual, then fills Span with the byte range the value
// actually occupied. This runs before the Option/
// smart-pointer/transparent checks since a Spanned[Option[T]] or
// Spanned[*T] must still capture the span of whatever was written, null
// included.
func decodeSpanned(tok *Tokenizer, b *Builder, src string) error {
	pk, err := tok.Peek()
	if err != nil {
		return err
	}
	start := pk.Span.Start
	if err := b.BeginField("Value"); err != nil {
		return err
	}
	if err := decodeValue(tok, b, src); err != nil {
		return err
	}
	if err := b.End(); err != nil {
		return err
	}
	return b.SetField("Span", Span{Start: start, Len: tok.Pos() - start})
}

func decodeScalar(tok *Tokenizer, b *Builder, s *shape) error {
	t, err := tok.Next()
	if err != nil {
		// Annotate a raw lexer failure with the scalar type that was being
		// read at this call site.
		if e, ok := err.(*Error); ok && e.Kind == KindToken && e.HasSpan {
			return errTokenContext(e.Message, s.typ.String(), e.Span)
		}
		return err
	}
	if t.Kind == TokNull {
		// null on any scalar position sets the default; it is never a type
		// error at scalar level.
		b.SetDefault()
		return nil
	}
	if s.parseFromStr != nil && t.Kind == TokString {
		text, _ := t.String()
		if err := b.ParseFromStr(text); err != nil {
			if e, ok := err.(*Error); ok {
				return e
			}
			return errInvalidValue(err.Error(), t.Span)
		}
		return nil
	}
	switch s.scalarKind {
	case reflect.Bool:
		switch t.Kind {
		case TokTrue:
			return b.Set(true)
		case TokFalse:
			return b.Set(false)
		default:
			return errTypeMismatch(t.describe(), "bool", t.Span)
		}
	case reflect.String:
		if t.Kind != TokString {
			return errTypeMismatch(t.describe(), "string", t.Span)
		}
		str, _ := t.String()
		return b.Set(str)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := intFromToken(t, s.scalarKind)
		if err != nil {
			return err
		}
		return b.Set(v)
	case reflect.Float32, reflect.Float64:
		v, err := floatFromToken(t, s.scalarKind)
		if err != nil {
			return err
		}
		return b.Set(v)
	default:
		return errReflect(fmt.Errorf("unsupported scalar kind %s", s.scalarKind), t.Span)
	}
}

func isUnsignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// describeBigInt renders a 128-bit token for diagnostics. The lexer hands
// out i64/u64 tokens for anything that fits 64 bits, so a 128-bit token's
// magnitude always overflows every native Go integer width; this is the
// only place it is ever rendered.
func describeBigInt(t Token) string {
	if t.Kind == TokI128 && t.i128.neg {
		return "-<128-bit integer>"
	}
	return "<128-bit integer>"
}

func intFromToken(t Token, kind reflect.Kind) (any, error) {
	switch t.Kind {
	case TokI64:
		return fitSigned(t.i64, kind, t.Span)
	case TokU64:
		if isUnsignedKind(kind) {
			return fitUnsignedFromU64(t.u64, kind, t.Span)
		}
		if t.u64 > math.MaxInt64 {
			return nil, errNumberOutOfRange(strconv.FormatUint(t.u64, 10), kind.String(), t.Span)
		}
		return fitSigned(int64(t.u64), kind, t.Span)
	case TokI128, TokU128:
		return nil, errNumberOutOfRange(describeBigInt(t), kind.String(), t.Span)
	case TokF64:
		// A float token is acceptable for an integer target only when its
		// fractional part is zero ("1.0" -> 1); "1.5" is an invalid value,
		// not a type mismatch.
		f := t.f64
		if f != math.Trunc(f) {
			return nil, errInvalidValue(fmt.Sprintf("cannot decode %s into %s: fractional part is not zero", strconv.FormatFloat(f, 'g', -1, 64), kind), t.Span)
		}
		if isUnsignedKind(kind) {
			if f < 0 || f >= math.MaxUint64 {
				return nil, errNumberOutOfRange(strconv.FormatFloat(f, 'g', -1, 64), kind.String(), t.Span)
			}
			return fitUnsignedFromU64(uint64(f), kind, t.Span)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, errNumberOutOfRange(strconv.FormatFloat(f, 'g', -1, 64), kind.String(), t.Span)
		}
		return fitSigned(int64(f), kind, t.Span)
	default:
		return nil, errTypeMismatch(t.describe(), kind.String(), t.Span)
	}
}

func fitSigned(v int64, kind reflect.Kind, sp Span) (any, error) {
	switch kind {
	case reflect.Int64, reflect.Int:
		return v, nil
	case reflect.Int32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, errNumberOutOfRange(strconv.FormatInt(v, 10), kind.String(), sp)
		}
		return int32(v), nil
	case reflect.Int16:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return nil, errNumberOutOfRange(strconv.FormatInt(v, 10), kind.String(), sp)
		}
		return int16(v), nil
	case reflect.Int8:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return nil, errNumberOutOfRange(strconv.FormatInt(v, 10), kind.String(), sp)
		}
		return int8(v), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v < 0 {
			return nil, errNumberOutOfRange(strconv.FormatInt(v, 10), kind.String(), sp)
		}
		return fitUnsignedFromU64(uint64(v), kind, sp)
	default:
		return nil, errReflect(fmt.Errorf("unsupported integer kind %s", kind), sp)
	}
}

func fitUnsignedFromU64(v uint64, kind reflect.Kind, sp Span) (any, error) {
	switch kind {
	case reflect.Uint64, reflect.Uint:
		return v, nil
	case reflect.Uint32:
		if v > math.MaxUint32 {
			return nil, errNumberOutOfRange(strconv.FormatUint(v, 10), kind.String(), sp)
		}
		return uint32(v), nil
	case reflect.Uint16:
		if v > math.MaxUint16 {
			return nil, errNumberOutOfRange(strconv.FormatUint(v, 10), kind.String(), sp)
		}
		return uint16(v), nil
	case reflect.Uint8:
		if v > math.MaxUint8 {
			return nil, errNumberOutOfRange(strconv.FormatUint(v, 10), kind.String(), sp)
		}
		return uint8(v), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v > math.MaxInt64 {
			return nil, errNumberOutOfRange(strconv.FormatUint(v, 10), kind.String(), sp)
		}
		return fitSigned(int64(v), kind, sp)
	default:
		return nil, errReflect(fmt.Errorf("unsupported integer kind %s", kind), sp)
	}
}

func floatFromToken(t Token, kind reflect.Kind) (any, error) {
	var f float64
	switch t.Kind {
	case TokF64:
		f = t.f64
	case TokI64:
		f = float64(t.i64)
	case TokU64:
		f = float64(t.u64)
	case TokI128, TokU128:
		return nil, errNumberOutOfRange(describeBigInt(t), kind.String(), t.Span)
	default:
		return nil, errTypeMismatch(t.describe(), kind.String(), t.Span)
	}
	if kind == reflect.Float32 {
		return float32(f), nil
	}
	return f, nil
}

func decodeSeq(tok *Tokenizer, b *Builder, src string) error {
	t, err := tok.Next()
	if err != nil {
		return err
	}
	if t.Kind != TokLBrack {
		return errUnexpectedToken("'['", t.Span)
	}
	b.BeginList()
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrack {
			tok.Next()
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or ']'", pk.Span)
			}
			tok.Next()
		}
		first = false
		b.BeginListItem()
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
	}
	b.EndList()
	return nil
}

func decodeArray(tok *Tokenizer, b *Builder, s *shape, src string) error {
	t, err := tok.Next()
	if err != nil {
		return err
	}
	if t.Kind != TokLBrack {
		return errUnexpectedToken("'['", t.Span)
	}
	cur := b.Cur()
	i := 0
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrack {
			tok.Next()
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or ']'", pk.Span)
			}
			tok.Next()
		}
		first = false
		if i >= s.arrayLen {
			return errInvalidValue(fmt.Sprintf("too many elements in array: maximum %d elements", s.arrayLen), pk.Span)
		}
		b.push(bframe{kind: bfField, val: cur.Index(i)})
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
		i++
	}
	if i != s.arrayLen {
		return errInvalidValue(fmt.Sprintf("expected array of length %d, got %d", s.arrayLen, i), t.Span)
	}
	return nil
}

func decodeSet(tok *Tokenizer, b *Builder, src string) error {
	t, err := tok.Next()
	if err != nil {
		return err
	}
	if t.Kind != TokLBrack {
		return errUnexpectedToken("'['", t.Span)
	}
	b.BeginSet()
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrack {
			tok.Next()
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or ']'", pk.Span)
			}
			tok.Next()
		}
		first = false
		b.BeginSetItem()
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
	}
	b.EndSet()
	return nil
}

// convertMapKey turns a JSON object key's raw text into a value of the
// map's key type: string keys pass through, integer keys parse as decimal,
// a transparent wrapper key converts via its inner type, anything else
// needs a registered parse hook.
func convertMapKey(keyType reflect.Type, text string, sp Span) (any, error) {
	if ks := compileShape(keyType); ks.kind == KindTransparentShape {
		innerVal, err := convertMapKey(ks.elem, text, sp)
		if err != nil {
			return nil, err
		}
		kv := reflect.New(keyType).Elem()
		for i := 0; i < keyType.NumField(); i++ {
			if keyType.Field(i).PkgPath != "" {
				continue
			}
			kv.Field(i).Set(reflect.ValueOf(innerVal).Convert(keyType.Field(i).Type))
			break
		}
		return kv.Interface(), nil
	}
	switch keyType.Kind() {
	case reflect.String:
		return text, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, errInvalidValue(fmt.Sprintf("invalid integer map key %q", text), sp)
		}
		return fitSigned(v, keyType.Kind(), sp)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, errInvalidValue(fmt.Sprintf("invalid integer map key %q", text), sp)
		}
		return fitUnsignedFromU64(v, keyType.Kind(), sp)
	}
	if fn, ok := lookupParseFromStr(keyType); ok {
		v, err := fn(text)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, errInvalidValue(fmt.Sprintf("unsupported map key type %s", keyType), sp)
}

func decodeMap(tok *Tokenizer, b *Builder, s *shape, src string) error {
	t, err := tok.Next()
	if err != nil {
		return err
	}
	if t.Kind != TokLBrace {
		return errUnexpectedToken("'{'", t.Span)
	}
	b.BeginMap()
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrace {
			tok.Next()
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or '}'", pk.Span)
			}
			tok.Next()
		}
		first = false
		keyTok, err := tok.Next()
		if err != nil {
			return err
		}
		if keyTok.Kind != TokString {
			return errUnexpectedToken("string key", keyTok.Span)
		}
		keyText, _ := keyTok.String()
		colonTok, err := tok.Next()
		if err != nil {
			return err
		}
		if colonTok.Kind != TokColon {
			return errUnexpectedToken("':'", colonTok.Span)
		}
		keyVal, err := convertMapKey(s.key, keyText, keyTok.Span)
		if err != nil {
			return err
		}
		b.BeginKey()
		if err := b.Set(keyVal); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
		b.BeginValue()
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
	}
	b.EndMap()
	return nil
}

// skipValue consumes one balanced JSON value without driving a Builder,
// used to discard an unrecognized struct field or a buffered enum-tag
// lookahead's non-matching keys.
func skipValue(tok *Tokenizer) error {
	t, err := tok.Next()
	if err != nil {
		return err
	}
	switch t.Kind {
	case TokLBrace:
		return skipObjectBody(tok)
	case TokLBrack:
		return skipArrayBody(tok)
	default:
		return nil
	}
}

// skipObjectBody consumes an object body, assuming the opening '{' has
// already been consumed.
func skipObjectBody(tok *Tokenizer) error {
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrace {
			tok.Next()
			return nil
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or '}'", pk.Span)
			}
			tok.Next()
		}
		first = false
		kt, err := tok.Next()
		if err != nil {
			return err
		}
		if kt.Kind != TokString {
			return errUnexpectedToken("string field name", kt.Span)
		}
		ct, err := tok.Next()
		if err != nil {
			return err
		}
		if ct.Kind != TokColon {
			return errUnexpectedToken("':'", ct.Span)
		}
		if err := skipValue(tok); err != nil {
			return err
		}
	}
}

// skipArrayBody consumes an array body, assuming the opening '[' has
// already been consumed.
func skipArrayBody(tok *Tokenizer) error {
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrack {
			tok.Next()
			return nil
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or ']'", pk.Span)
			}
			tok.Next()
		}
		first = false
		if err := skipValue(tok); err != nil {
			return err
		}
	}
}

func decodeStruct(tok *Tokenizer, b *Builder, s *shape, src string) error {
	if s.isTuple {
		return decodeTuple(tok, b, s, src)
	}
	t, err := tok.Next()
	if err != nil {
		return err
	}
	if t.Kind != TokLBrace {
		return errUnexpectedToken("'{'", t.Span)
	}
	if hasFlattenField(s) {
		return decodeFlattened(tok, b, s, src, t)
	}
	return decodeStructFields(tok, b, s, src, t, nil)
}

func hasFlattenField(s *shape) bool {
	for _, f := range s.fields {
		if f.flatten {
			return true
		}
	}
	return false
}

func decodeTuple(tok *Tokenizer, b *Builder, s *shape, src string) error {
	t, err := tok.Next()
	if err != nil {
		return err
	}
	if t.Kind != TokLBrack {
		return errUnexpectedToken("'['", t.Span)
	}
	first := true
	i := 0
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrack {
			tok.Next()
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or ']'", pk.Span)
			}
			tok.Next()
		}
		first = false
		if i >= len(s.fields) {
			return errInvalidValue(fmt.Sprintf("too many elements in tuple: maximum %d elements", len(s.fields)), pk.Span)
		}
		if err := b.BeginNthField(s.fields[i].index); err != nil {
			return err
		}
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
		i++
	}
	if i != len(s.fields) {
		return errInvalidValue(fmt.Sprintf("expected tuple of length %d, got %d", len(s.fields), i), t.Span)
	}
	return nil
}

// decodeStructFields drives the field loop of an already-opened '{' object,
// optionally ignoring a set of keys (used by internally-tagged enum decode
// to skip past the already-consumed tag key).
func decodeStructFields(tok *Tokenizer, b *Builder, s *shape, src string, objectStart Token, ignore map[string]bool) error {
	seen := make([]bool, len(s.fields))
	first := true
	objectEnd := objectStart.Span
	for {
		pk, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrace {
			tok.Next()
			objectEnd = pk.Span
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return errUnexpectedToken("',' or '}'", pk.Span)
			}
			tok.Next()
		}
		first = false
		keyTok, err := tok.Next()
		if err != nil {
			return err
		}
		if keyTok.Kind != TokString {
			return errUnexpectedToken("string field name", keyTok.Span)
		}
		fieldName, _ := keyTok.String()
		colonTok, err := tok.Next()
		if err != nil {
			return err
		}
		if colonTok.Kind != TokColon {
			return errUnexpectedToken("':'", colonTok.Span)
		}
		if ignore != nil && ignore[fieldName] {
			if err := skipValue(tok); err != nil {
				return err
			}
			continue
		}
		idx, ok := s.byWireName[fieldName]
		if !ok {
			if s.hasCfg && s.cfg.DenyUnknownFields {
				return errUnknownField(fieldName, suggestField(fieldName, s.fieldNames()), s.fieldNames(), keyTok.Span)
			}
			if err := skipValue(tok); err != nil {
				return err
			}
			continue
		}
		fi := s.fields[idx]
		// Duplicate keys are accepted silently with last-value-wins
		// semantics, matching encoding/json's object decoding.
		if fi.deserializeWith != nil {
			v, err := fi.deserializeWith(tok)
			if err != nil {
				return err
			}
			if err := b.BeginField(fieldName); err != nil {
				return err
			}
			if err := b.Set(v); err != nil {
				return err
			}
			if err := b.End(); err != nil {
				return err
			}
			seen[idx] = true
			continue
		}
		if fi.borrow {
			pk2, err := tok.Peek()
			if err != nil {
				return err
			}
			if pk2.Kind == TokString && !pk2.Borrowed() {
				return errInvalidValue("cannot borrow a string containing escape sequences", pk2.Span)
			}
		}
		if err := b.BeginField(fieldName); err != nil {
			return err
		}
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
		seen[idx] = true
	}
	for i, fi := range s.fields {
		if seen[i] {
			continue
		}
		if fi.hasDefaultTag || (s.hasCfg && s.cfg.DefaultOK) {
			if err := b.BeginField(fi.wireName); err != nil {
				return err
			}
			b.SetDefault()
			b.End()
			continue
		}
		fieldShape := compileShape(fi.typ)
		if fieldShape.kind == KindOptionShape || fieldShape.kind == KindPointerShape {
			continue
		}
		return errMissingField(fi.wireName, objectStart.Span, objectEnd)
	}
	return nil
}

// decodeVariantPayload decodes the content belonging to a just-selected
// variant, positioned at b.Cur(). A single-field tuple variant (a
// "newtype" variant) is newtype-flattened on the wire: its one field is
// written as the bare value rather than a one-element array, so it must be
// decoded directly into that field instead of through the ordinary
// tuple-struct (array) path. Mirrors encodeVariantContent's symmetric rule.
func decodeVariantPayload(tok *Tokenizer, b *Builder, src string) error {
	s := b.CurrentShape()
	if s.kind == KindStructShape && s.isTuple && len(s.fields) == 1 {
		if err := b.BeginNthField(s.fields[0].index); err != nil {
			return err
		}
		if err := decodeValue(tok, b, src); err != nil {
			return err
		}
		return b.End()
	}
	return decodeValue(tok, b, src)
}

func decodeEnum(tok *Tokenizer, b *Builder, s *shape, src string) error {
	switch {
	case s.hasCfg && s.cfg.Untagged:
		return decodeUntaggedEnum(tok, b, s, src)
	case s.hasCfg && s.cfg.Tag != "" && s.cfg.Content != "":
		return decodeAdjacentEnum(tok, b, s, src)
	case s.hasCfg && (s.cfg.Tag != "" || s.cfg.TypeTag != ""):
		return decodeInternalEnum(tok, b, s, src)
	default:
		return decodeExternalEnum(tok, b, s, src)
	}
}

// internalTagKey returns the key used to select a variant for internal
// tagging; Tag and TypeTag name the same mechanism, so either works.
func internalTagKey(s *shape) string {
	if s.cfg.Tag != "" {
		return s.cfg.Tag
	}
	return s.cfg.TypeTag
}

func decodeExternalEnum(tok *Tokenizer, b *Builder, s *shape, src string) error {
	pk, err := tok.Peek()
	if err != nil {
		return err
	}
	switch pk.Kind {
	case TokString:
		tok.Next()
		name, _ := pk.String()
		v, ok := s.byVariant[name]
		if !ok {
			return errInvalidValue(fmt.Sprintf("unknown variant %q", name), pk.Span)
		}
		if v.New != nil {
			return errTypeMismatch("string", "struct (variant carries data)", pk.Span)
		}
		return b.SelectVariantNamed(name)
	case TokLBrace:
		tok.Next()
		keyTok, err := tok.Next()
		if err != nil {
			return err
		}
		if keyTok.Kind != TokString {
			return errUnexpectedToken("variant name", keyTok.Span)
		}
		name, _ := keyTok.String()
		colonTok, err := tok.Next()
		if err != nil {
			return err
		}
		if colonTok.Kind != TokColon {
			return errUnexpectedToken("':'", colonTok.Span)
		}
		v, ok := s.byVariant[name]
		if !ok {
			return errInvalidValue(fmt.Sprintf("unknown variant %q", name), keyTok.Span)
		}
		if err := b.SelectVariantNamed(name); err != nil {
			return err
		}
		if v.New == nil {
			// unit variant in object form: the value must be null, and
			// selecting the variant pushed no frame to close.
			nt, err := tok.Next()
			if err != nil {
				return err
			}
			if nt.Kind != TokNull {
				return errUnexpectedToken("null (variant carries no data)", nt.Span)
			}
		} else {
			if err := decodeVariantPayload(tok, b, src); err != nil {
				return err
			}
			if err := b.End(); err != nil {
				return err
			}
		}
		closeTok, err := tok.Next()
		if err != nil {
			return err
		}
		if closeTok.Kind != TokRBrace {
			return errUnexpectedToken("'}' (externally tagged enum carries exactly one key)", closeTok.Span)
		}
		return nil
	default:
		return errUnexpectedToken("variant name string or object", pk.Span)
	}
}

// scanForTagValue looks ahead through an object (without driving a Builder)
// to find the string value of tagKey, needed because internally tagged
// payload fields may appear in the JSON before the tag field itself.
func scanForTagValue(buf []byte, start int, tagKey string) (value string, found bool, end int, err error) {
	probe := NewTokenizerAt(buf, start)
	t, err := probe.Next()
	if err != nil {
		return "", false, 0, err
	}
	if t.Kind != TokLBrace {
		return "", false, 0, errUnexpectedToken("'{'", t.Span)
	}
	first := true
	for {
		pk, err := probe.Peek()
		if err != nil {
			return "", false, 0, err
		}
		if pk.Kind == TokRBrace {
			probe.Next()
			break
		}
		if !first {
			if pk.Kind != TokComma {
				return "", false, 0, errUnexpectedToken("',' or '}'", pk.Span)
			}
			probe.Next()
		}
		first = false
		keyTok, err := probe.Next()
		if err != nil {
			return "", false, 0, err
		}
		if keyTok.Kind != TokString {
			return "", false, 0, errUnexpectedToken("string field name", keyTok.Span)
		}
		name, _ := keyTok.String()
		colonTok, err := probe.Next()
		if err != nil {
			return "", false, 0, err
		}
		if colonTok.Kind != TokColon {
			return "", false, 0, errUnexpectedToken("':'", colonTok.Span)
		}
		if name == tagKey {
			vt, err := probe.Next()
			if err != nil {
				return "", false, 0, err
			}
			if vt.Kind != TokString {
				return "", false, 0, errTypeMismatch(vt.describe(), "string", vt.Span)
			}
			value, _ = vt.String()
			found = true
			if err := skipRemainingObject(probe); err != nil {
				return "", false, 0, err
			}
			return value, true, probe.pos, nil
		}
		if err := skipValue(probe); err != nil {
			return "", false, 0, err
		}
	}
	return "", false, probe.pos, nil
}

// skipRemainingObject consumes the rest of an already-opened object (used
// by scanForTagValue once it has found what it needs but must still leave
// the probe tokenizer positioned after the closing brace).
func skipRemainingObject(probe *Tokenizer) error {
	for {
		pk, err := probe.Peek()
		if err != nil {
			return err
		}
		if pk.Kind == TokRBrace {
			probe.Next()
			return nil
		}
		if pk.Kind != TokComma {
			return errUnexpectedToken("',' or '}'", pk.Span)
		}
		probe.Next()
		if _, err := probe.Next(); err != nil { // key
			return err
		}
		colonTok, err := probe.Next()
		if err != nil {
			return err
		}
		if colonTok.Kind != TokColon {
			return errUnexpectedToken("':'", colonTok.Span)
		}
		if err := skipValue(probe); err != nil {
			return err
		}
	}
}

func decodeInternalEnum(tok *Tokenizer, b *Builder, s *shape, src string) error {
	pk, err := tok.Peek()
	if err != nil {
		return err
	}
	if pk.Kind != TokLBrace {
		return errUnexpectedToken("'{'", pk.Span)
	}
	objStart := pk
	tagKey := internalTagKey(s)
	tagVal, found, _, err := scanForTagValue(tok.buf, pk.Span.Start, tagKey)
	if err != nil {
		return err
	}
	if !found {
		return errMissingField(tagKey, objStart.Span, objStart.Span)
	}
	v, ok := s.byVariant[tagVal]
	if !ok {
		return errInvalidValue(fmt.Sprintf("unknown variant %q for tag %q", tagVal, tagKey), objStart.Span)
	}
	tok.Next() // consume '{' for real this time

	if v.New == nil {
		if err := b.SelectVariantNamed(tagVal); err != nil {
			return err
		}
		// A unit variant carries no payload fields; the only thing left to
		// do is discard whatever other keys (besides the tag) are present.
		return skipObjectBody(tok)
	}
	if err := b.SelectVariantNamed(tagVal); err != nil {
		return err
	}
	inner := compileShape(reflect.TypeOf(v.New()).Elem())
	if err := decodeStructFields(tok, b, inner, src, objStart, map[string]bool{tagKey: true}); err != nil {
		return err
	}
	return b.End()
}

func decodeAdjacentEnum(tok *Tokenizer, b *Builder, s *shape, src string) error {
	pk, err := tok.Peek()
	if err != nil {
		return err
	}
	if pk.Kind != TokLBrace {
		return errUnexpectedToken("'{'", pk.Span)
	}
	objStart := pk
	tok.Next()

	var tagVal string
	haveTag := false
	var contentStart int
	haveContent := false
	first := true
	for {
		pk2, err := tok.Peek()
		if err != nil {
			return err
		}
		if pk2.Kind == TokRBrace {
			tok.Next()
			break
		}
		if !first {
			if pk2.Kind != TokComma {
				return errUnexpectedToken("',' or '}'", pk2.Span)
			}
			tok.Next()
		}
		first = false
		keyTok, err := tok.Next()
		if err != nil {
			return err
		}
		if keyTok.Kind != TokString {
			return errUnexpectedToken("string field name", keyTok.Span)
		}
		name, _ := keyTok.String()
		colonTok, err := tok.Next()
		if err != nil {
			return err
		}
		if colonTok.Kind != TokColon {
			return errUnexpectedToken("':'", colonTok.Span)
		}
		switch name {
		case s.cfg.Tag:
			vt, err := tok.Next()
			if err != nil {
				return err
			}
			if vt.Kind != TokString {
				return errTypeMismatch(vt.describe(), "string", vt.Span)
			}
			tagVal, _ = vt.String()
			haveTag = true
		case s.cfg.Content:
			cpk, err := tok.Peek()
			if err != nil {
				return err
			}
			contentStart = cpk.Span.Start
			if err := skipValue(tok); err != nil {
				return err
			}
			haveContent = true
		default:
			if err := skipValue(tok); err != nil {
				return err
			}
		}
	}
	if !haveTag {
		return errMissingField(s.cfg.Tag, objStart.Span, objStart.Span)
	}
	v, ok := s.byVariant[tagVal]
	if !ok {
		return errInvalidValue(fmt.Sprintf("unknown variant %q", tagVal), objStart.Span)
	}
	if v.New == nil {
		return b.SelectVariantNamed(tagVal)
	}
	if !haveContent {
		return errMissingField(s.cfg.Content, objStart.Span, objStart.Span)
	}
	if err := b.SelectVariantNamed(tagVal); err != nil {
		return err
	}
	// Replay the buffered content value from its recorded offset; spans in
	// any error stay relative to the whole input.
	sub := NewTokenizerAt(tok.buf, contentStart)
	if err := decodeVariantPayload(sub, b, src); err != nil {
		return err
	}
	return b.End()
}

// decodeUntaggedEnum tries each variant's payload type in declaration
// order against the buffered value bytes and commits the first one that
// decodes without error.
func decodeUntaggedEnum(tok *Tokenizer, b *Builder, s *shape, src string) error {
	pk, err := tok.Peek()
	if err != nil {
		return err
	}
	start := pk.Span.Start
	probe := NewTokenizerAt(tok.buf, start)
	if err := skipValue(probe); err != nil {
		return err
	}
	end := probe.pos

	for i := range s.variants {
		v := s.variants[i]
		if v.New == nil {
			sub := NewTokenizerAt(tok.buf, start)
			t, err := sub.Next()
			if err == nil && t.Kind == TokNull {
				if serr := setEnumVariantDirect(b.Cur(), v.Name, nil); serr == nil {
					tok.pos, tok.have = end, false
					return nil
				}
			}
			continue
		}
		payload := v.New()
		sub, serr := NewBuilder(payload)
		if serr != nil {
			continue
		}
		if derr := decodeVariantPayload(NewTokenizerAt(tok.buf, start), sub, src); derr == nil {
			if serr := setEnumVariantDirect(b.Cur(), v.Name, payload); serr == nil {
				tok.pos, tok.have = end, false
				return nil
			}
		}
	}
	return errInvalidValue("no variant matched for untagged enum", pk.Span)
}

func setEnumVariantDirect(v reflect.Value, name string, payload any) error {
	ev, err := asEnum(v)
	if err != nil {
		return err
	}
	return ev.SetVariant(name, payload)
}
