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

// Path solver for the flatten driver: given the set of keys observed on an
// object, it resolves each key to a navigation path through the struct's
// field tree, disambiguating flattened enum variants whose field sets
// overlap.
package rjson

import (
	"reflect"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// PathSegment names one step of the navigation path a solved key takes
// from the top-level struct down to the field that actually holds its
// value. Only the first segment of a path may carry a VariantName: a
// flattened enum field is entered once per object, and the same variant
// applies to every key resolved through it.
type PathSegment struct {
	Field       string
	VariantName string
}

// FieldInfo is the solver's resolution for one observed key.
type FieldInfo struct {
	Path []PathSegment
}

// solver resolves observed object keys against a struct shape that
// contains one or more `flatten` fields.
type solver struct {
	top *shape
}

func newSolver(top *shape) *solver {
	return &solver{top: top}
}

// resolve computes a FieldInfo for every key in keys that the solver can
// place somewhere in top's field tree. Keys with no match are simply
// absent from the result; the caller routes them to a flattened map field
// when one exists and otherwise treats them as unknown fields.
func (sv *solver) resolve(keys []string) map[string]FieldInfo {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	result := map[string]FieldInfo{}
	for _, f := range sv.top.fields {
		if !f.flatten {
			if keySet[f.wireName] {
				result[f.wireName] = FieldInfo{Path: []PathSegment{{Field: f.wireName}}}
			}
			continue
		}
		sv.resolveFlattenField(f, keySet, result)
	}
	return result
}

func (sv *solver) resolveFlattenField(f fieldInfo, keySet map[string]bool, result map[string]FieldInfo) {
	inner := compileShape(f.typ)
	target := inner
	if inner.kind == KindOptionShape {
		target = compileShape(inner.elem)
	}
	switch target.kind {
	case KindStructShape:
		for _, inf := range target.fields {
			if keySet[inf.wireName] {
				if _, exists := result[inf.wireName]; !exists {
					result[inf.wireName] = FieldInfo{Path: []PathSegment{
						{Field: f.wireName},
						{Field: inf.wireName},
					}}
				}
			}
		}
	case KindEnumShape:
		wireName, payload, ok := sv.bestVariant(target, keySet)
		if !ok {
			return
		}
		pShape := compileShape(reflect.TypeOf(payload).Elem())
		if pShape.kind != KindStructShape {
			return
		}
		for _, inf := range pShape.fields {
			if keySet[inf.wireName] {
				if _, exists := result[inf.wireName]; !exists {
					result[inf.wireName] = FieldInfo{Path: []PathSegment{
						{Field: f.wireName, VariantName: wireName},
						{Field: inf.wireName},
					}}
				}
			}
		}
	}
}

// bestVariant disambiguates a flattened enum field whose variants' struct
// payloads may share field names, by picking the variant with the largest
// intersection against the observed key set. It returns the variant's
// wire name (the form SelectVariantNamed expects),
// walking enumShape.variants in declared order so ties break deterministically.
func (sv *solver) bestVariant(enumShape *shape, keySet map[string]bool) (wireName string, payload any, ok bool) {
	bestScore := -1
	for _, v := range enumShape.variants {
		if v.New == nil {
			continue
		}
		p := v.New()
		pShape := compileShape(reflect.TypeOf(p).Elem())
		if pShape.kind != KindStructShape {
			continue
		}
		score := 0
		for _, inf := range pShape.fields {
			if keySet[inf.wireName] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			wireName = enumShape.variantWireName(v.Name)
			payload = p
		}
	}
	if bestScore <= 0 {
		return "", nil, false
	}
	return wireName, payload, true
}

// knownFieldNames collects every field name reachable through s, including
// through its flattened fields and (for flattened enums) every variant's
// payload fields, used to build the "did you mean" candidate set for an
// unmatched key. golang.org/x/exp/maps.Keys snapshots the dedup set into a
// slice, then golang.org/x/exp/slices.Sort gives it a fixed order so the
// Jaro-Winkler scan order (and therefore its tie-breaking) doesn't
// depend on Go's randomized map iteration.
func knownFieldNames(s *shape) []string {
	set := map[string]bool{}
	for _, f := range s.fields {
		if !f.flatten {
			set[f.wireName] = true
			continue
		}
		inner := compileShape(f.typ)
		target := inner
		if inner.kind == KindOptionShape {
			target = compileShape(inner.elem)
		}
		switch target.kind {
		case KindStructShape:
			for _, inf := range target.fields {
				set[inf.wireName] = true
			}
		case KindEnumShape:
			for _, v := range target.variants {
				if v.New == nil {
					continue
				}
				pShape := compileShape(reflect.TypeOf(v.New()).Elem())
				if pShape.kind != KindStructShape {
					continue
				}
				for _, inf := range pShape.fields {
					set[inf.wireName] = true
				}
			}
		}
	}
	names := maps.Keys(set)
	slices.Sort(names)
	return names
}
