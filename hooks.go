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
	"reflect"
	"sync"
)

// Per-type and per-field codec hooks. Nothing wires these up implicitly,
// so callers register them explicitly before first use, the way
// gob.Register wires up interface concrete types.

type fieldHookKey struct {
	t     reflect.Type
	field string
}

var (
	serializeWithHooks   sync.Map // fieldHookKey -> func(any) (any, error)
	deserializeWithHooks sync.Map // fieldHookKey -> func(*Tokenizer) (any, error)
	parseFromStrHooks    sync.Map // reflect.Type -> func(string) (any, error)
	displayHooks         sync.Map // reflect.Type -> func(any) (string, bool)
)

// RegisterSerializeWith installs a field-level serialize_with hook: when
// serializing structType, the named field is replaced by whatever fn
// returns (which is then serialized recursively per its own shape).
func RegisterSerializeWith(structType reflect.Type, field string, fn func(any) (any, error)) {
	serializeWithHooks.Store(fieldHookKey{structType, field}, fn)
}

// RegisterDeserializeWith installs a field-level deserialize_with hook: the
// tokenizer is handed to fn positioned at the start of the field's value;
// fn must consume exactly one JSON value and return it.
func RegisterDeserializeWith(structType reflect.Type, field string, fn func(*Tokenizer) (any, error)) {
	deserializeWithHooks.Store(fieldHookKey{structType, field}, fn)
}

// RegisterParseFromStr installs a type-level parse hook used when
// deserializing a JSON string into t.
func RegisterParseFromStr(t reflect.Type, fn func(string) (any, error)) {
	parseFromStrHooks.Store(t, fn)
}

// RegisterDisplay installs a type-level display hook, used as the
// map-key-serialization fallback for key types that are neither string-like
// nor integer.
func RegisterDisplay(t reflect.Type, fn func(any) (string, bool)) {
	displayHooks.Store(t, fn)
}

func lookupSerializeWith(t reflect.Type, field string) (func(any) (any, error), bool) {
	v, ok := serializeWithHooks.Load(fieldHookKey{t, field})
	if !ok {
		return nil, false
	}
	return v.(func(any) (any, error)), true
}

func lookupDeserializeWith(t reflect.Type, field string) (func(*Tokenizer) (any, error), bool) {
	v, ok := deserializeWithHooks.Load(fieldHookKey{t, field})
	if !ok {
		return nil, false
	}
	return v.(func(*Tokenizer) (any, error)), true
}

func lookupParseFromStr(t reflect.Type) (func(string) (any, error), bool) {
	v, ok := parseFromStrHooks.Load(t)
	if !ok {
		return nil, false
	}
	return v.(func(string) (any, error)), true
}

func lookupDisplay(t reflect.Type) (func(any) (string, bool), bool) {
	v, ok := displayHooks.Load(t)
	if !ok {
		return nil, false
	}
	return v.(func(any) (string, bool)), true
}
