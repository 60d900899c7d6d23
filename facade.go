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

// FromSlice/FromStr live in deserialize.go and ToString/ToStringPretty/
// ToWriter/ToWriterPretty live in serialize.go; this file adds the Peek*
// entry points, which operate on a pre-built reflective view rather than
// deriving one from a fresh value on every call. reflect.Value already is
// that type-erased view, so Peek just captures one the caller can reuse
// across multiple calls instead of the fresh any that ToString wraps with
// reflect.ValueOf itself.
package rjson

import "reflect"

// reflectValueView is an already type-erased view over a value, built once
// via Peek and then usable by any of the Peek* entry points.
type reflectValueView struct {
	rv reflect.Value
}

// Peek builds a reflective view of v for reuse across one or more Peek*
// calls.
func Peek(v any) reflectValueView {
	return reflectValueView{rv: reflect.ValueOf(v)}
}

// PeekToString serializes an already-reflected value compactly.
func PeekToString(v reflectValueView) (string, error) {
	e := newEncoder(false)
	if err := e.encode(v.rv); err != nil {
		return "", err
	}
	return e.w.String(), nil
}

// PeekToStringPretty serializes an already-reflected value with two-space
// indentation.
func PeekToStringPretty(v reflectValueView) (string, error) {
	e := newEncoder(true)
	if err := e.encode(v.rv); err != nil {
		return "", err
	}
	return e.w.String(), nil
}

// PeekToWriter serializes an already-reflected value compactly to w.
func PeekToWriter(w JSONWrite, v reflectValueView) error {
	e := newEncoder(false)
	if err := e.encode(v.rv); err != nil {
		return err
	}
	_, err := w.Write(e.w.Bytes())
	return err
}

// PeekToWriterPretty serializes an already-reflected value with
// indentation to w.
func PeekToWriterPretty(w JSONWrite, v reflectValueView) error {
	e := newEncoder(true)
	if err := e.encode(v.rv); err != nil {
		return err
	}
	_, err := w.Write(e.w.Bytes())
	return err
}
