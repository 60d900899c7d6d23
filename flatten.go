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

// Flatten driver: drives deserialization of a struct that has one or
// more `flatten` fields, where the flattened field's own members are
// spliced directly into the enclosing object rather than nested under
// their own key. Splicing means a single pass over the object can't simply
// walk fields in declaration order, since a key belonging to a flattened
// field may appear anywhere among the enclosing object's own keys; the
// driver instead peeks every key/value pair first, resolves each key to a
// navigation path, and only then drives the builder.
package rjson

import (
	"golang.org/x/exp/slices"
)

type flattenKV struct {
	key        string
	keySpan    Span
	valueStart int
}

type flattenMatch struct {
	kv   flattenKV
	info FieldInfo
}

// decodeFlattened drives an object whose shape s has at least one flatten
// field. objectStart is the already-consumed '{' token.
func decodeFlattened(tok *Tokenizer, b *Builder, s *shape, src string, objectStart Token) error {
	pairs, objectEnd, err := flattenPass1(tok)
	if err != nil {
		return err
	}

	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.key
	}
	resolved := newSolver(s).resolve(keys)

	var matched []flattenMatch
	var unmatched []flattenKV
	// seenTop tracks, for every path's first segment, that the
	// corresponding top-level field (direct or flattened) was touched by
	// at least one observed key. seenInner tracks "ff\x00innerField" for
	// two-segment paths, used by the missing-field pass below.
	seenTop := map[string]bool{}
	seenInner := map[string]bool{}
	for _, p := range pairs {
		info, ok := resolved[p.key]
		if !ok {
			unmatched = append(unmatched, p)
			continue
		}
		seenTop[info.Path[0].Field] = true
		if len(info.Path) == 2 {
			seenInner[info.Path[0].Field+"\x00"+info.Path[1].Field] = true
		}
		matched = append(matched, flattenMatch{kv: p, info: info})
	}

	// A flattened map field is the catch-all: every key the solver could not
	// place lands in it (mirroring encodeFlattenedInline's map splice). Only
	// when no catch-all exists does an unplaced key count as unknown.
	catch := flattenCatchAllField(s)
	if len(unmatched) > 0 && catch < 0 && s.hasCfg && s.cfg.DenyUnknownFields {
		known := knownFieldNames(s)
		first := unmatched[0]
		return errUnknownField(first.key, suggestField(first.key, known), known, first.keySpan)
	}

	slices.SortFunc(matched, func(a, b flattenMatch) bool {
		return pathKey(a.info.Path) < pathKey(b.info.Path)
	})

	if err := driveMatches(tok, b, src, matched); err != nil {
		return err
	}
	if catch >= 0 && len(unmatched) > 0 {
		if err := driveMapCatchAll(tok, b, src, s.fields[catch], unmatched); err != nil {
			return err
		}
		seenTop[s.fields[catch].wireName] = true
	}
	if err := defaultAbsentFlattenOptions(b, s, seenTop); err != nil {
		return err
	}
	return checkFlattenMissingFields(s, seenTop, seenInner, objectStart, objectEnd)
}

// flattenCatchAllField returns the index of the first flattened field whose
// (possibly Option-wrapped) target is a map, or -1.
func flattenCatchAllField(s *shape) int {
	for i, f := range s.fields {
		if !f.flatten {
			continue
		}
		target := compileShape(f.typ)
		if target.kind == KindOptionShape {
			target = compileShape(target.elem)
		}
		if target.kind == KindMapShape {
			return i
		}
	}
	return -1
}

// driveMapCatchAll replays every unplaced key/value pair into the flattened
// map field, converting keys per the ordinary map-key rule.
func driveMapCatchAll(tok *Tokenizer, b *Builder, src string, f fieldInfo, pairs []flattenKV) error {
	if err := b.BeginField(f.wireName); err != nil {
		return err
	}
	isOpt := b.CurrentShape().kind == KindOptionShape
	if isOpt {
		if err := b.BeginSome(); err != nil {
			return err
		}
	}
	keyType := b.Cur().Type().Key()
	b.BeginMap()
	for _, p := range pairs {
		kv, err := convertMapKey(keyType, p.key, p.keySpan)
		if err != nil {
			return err
		}
		b.BeginKey()
		if err := b.Set(kv); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
		b.BeginValue()
		if err := decodeValue(NewTokenizerAt(tok.buf, p.valueStart), b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
	}
	b.EndMap()
	if isOpt {
		if err := b.End(); err != nil {
			return err
		}
	}
	return b.End()
}

type flattenOpenSeg struct {
	field      string
	isOption   bool
	hasVariant bool
}

// driveMatches walks the sorted matches, keeping a stack of currently open
// navigation segments so that consecutive keys sharing a flattened field's
// prefix don't repeatedly enter and leave it.
func driveMatches(tok *Tokenizer, b *Builder, src string, matched []flattenMatch) error {
	var stack []flattenOpenSeg

	// Frames nest innermost-last: field, then (if Option-wrapped) Some,
	// then (if a variant was selected) the variant payload. Closing must
	// unwind in the reverse order: variant, then Some, then field.
	closeTo := func(n int) error {
		for len(stack) > n {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.hasVariant {
				if err := b.End(); err != nil {
					return err
				}
			}
			if top.isOption {
				if err := b.End(); err != nil {
					return err
				}
			}
			if err := b.End(); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rp := range matched {
		prefix := rp.info.Path[:len(rp.info.Path)-1]
		leaf := rp.info.Path[len(rp.info.Path)-1]

		common := 0
		for common < len(stack) && common < len(prefix) && stack[common].field == prefix[common].Field {
			common++
		}
		if err := closeTo(common); err != nil {
			return err
		}
		for i := common; i < len(prefix); i++ {
			seg := prefix[i]
			if err := b.BeginField(seg.Field); err != nil {
				return err
			}
			isOpt := false
			if b.CurrentShape().kind == KindOptionShape {
				if err := b.BeginSome(); err != nil {
					return err
				}
				isOpt = true
			}
			hasVariant := seg.VariantName != ""
			if hasVariant {
				if err := b.SelectVariantNamed(seg.VariantName); err != nil {
					return err
				}
			}
			stack = append(stack, flattenOpenSeg{field: seg.Field, isOption: isOpt, hasVariant: hasVariant})
		}

		if err := b.BeginField(leaf.Field); err != nil {
			return err
		}
		sub := NewTokenizerAt(tok.buf, rp.kv.valueStart)
		if err := decodeValue(sub, b, src); err != nil {
			return err
		}
		if err := b.End(); err != nil {
			return err
		}
	}
	return closeTo(0)
}

// pathKey renders a FieldInfo's path as a sortable string, so resolved
// fields can be ordered lexicographically by path segments.
func pathKey(path []PathSegment) string {
	s := ""
	for i, seg := range path {
		if i > 0 {
			s += "\x00"
		}
		s += seg.Field
		if seg.VariantName != "" {
			s += "\x01" + seg.VariantName
		}
	}
	return s
}

// flattenPass1 consumes the object body (the opening '{' already consumed),
// recording each key's text and the byte offset its value starts at
// without actually decoding any value.
func flattenPass1(tok *Tokenizer) ([]flattenKV, Span, error) {
	var pairs []flattenKV
	first := true
	for {
		pk, err := tok.Peek()
		if err != nil {
			return nil, Span{}, err
		}
		if pk.Kind == TokRBrace {
			tok.Next()
			return pairs, pk.Span, nil
		}
		if !first {
			if pk.Kind != TokComma {
				return nil, Span{}, errUnexpectedToken("',' or '}'", pk.Span)
			}
			tok.Next()
		}
		first = false
		keyTok, err := tok.Next()
		if err != nil {
			return nil, Span{}, err
		}
		if keyTok.Kind != TokString {
			return nil, Span{}, errUnexpectedToken("string field name", keyTok.Span)
		}
		key, _ := keyTok.String()
		colonTok, err := tok.Next()
		if err != nil {
			return nil, Span{}, err
		}
		if colonTok.Kind != TokColon {
			return nil, Span{}, errUnexpectedToken("':'", colonTok.Span)
		}
		vpk, err := tok.Peek()
		if err != nil {
			return nil, Span{}, err
		}
		valueStart := vpk.Span.Start
		if err := skipValue(tok); err != nil {
			return nil, Span{}, err
		}
		pairs = append(pairs, flattenKV{key: key, keySpan: keyTok.Span, valueStart: valueStart})
	}
}

// defaultAbsentFlattenOptions finishes the drive: any first-level flattened
// Option[T] field that matched none of the observed keys defaults to None,
// the same way a missing non-flatten Option field does in
// decodeStructFields.
func defaultAbsentFlattenOptions(b *Builder, s *shape, seenTop map[string]bool) error {
	for _, f := range s.fields {
		if !f.flatten || seenTop[f.wireName] {
			continue
		}
		inner := compileShape(f.typ)
		if inner.kind != KindOptionShape {
			continue
		}
		if err := b.BeginField(f.wireName); err != nil {
			return err
		}
		b.SetDefault()
		if err := b.End(); err != nil {
			return err
		}
	}
	return nil
}

// checkFlattenMissingFields raises MissingField for any top-level
// non-flatten field absent from the observed keys, and for any required
// inner field of a flattened struct field that no observed key resolved
// to (mirroring decodeStructFields's own missing-field pass, since the
// per-key driving above never calls into it directly). Flattened enum
// fields are not checked here: with overlapping variant field sets,
// "required field absent" can't be distinguished from "field belongs to a
// different variant" without re-running the solver's own disambiguation,
// so that case is left to the caller's round-trip tests instead.
func checkFlattenMissingFields(s *shape, seenTop, seenInner map[string]bool, objectStart Token, objectEnd Span) error {
	for _, f := range s.fields {
		if f.flatten {
			continue
		}
		if seenTop[f.wireName] {
			continue
		}
		if fieldDefaultable(f, s) {
			continue
		}
		return errMissingField(f.wireName, objectStart.Span, objectEnd)
	}
	for _, f := range s.fields {
		if !f.flatten {
			continue
		}
		inner := compileShape(f.typ)
		target := inner
		isOption := inner.kind == KindOptionShape
		if isOption {
			target = compileShape(inner.elem)
		}
		if target.kind != KindStructShape {
			continue
		}
		if isOption && !seenTop[f.wireName] {
			continue // defaulted to None above; nothing inside it is "missing"
		}
		for _, inf := range target.fields {
			if seenInner[f.wireName+"\x00"+inf.wireName] {
				continue
			}
			if fieldDefaultable(inf, target) {
				continue
			}
			return errMissingField(inf.wireName, objectStart.Span, objectEnd)
		}
	}
	return nil
}

func fieldDefaultable(f fieldInfo, owner *shape) bool {
	if f.hasDefaultTag || (owner.hasCfg && owner.cfg.DefaultOK) {
		return true
	}
	fieldShape := compileShape(f.typ)
	return fieldShape.kind == KindOptionShape || fieldShape.kind == KindPointerShape
}
