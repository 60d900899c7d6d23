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

import "testing"

// circlePayload and squarePayload deliberately share no field names, so the
// solver can disambiguate a flattened shapeEnum purely from which keys are
// present in the enclosing object (the overlapping-field-set scenario is
// covered separately by TestFlattenEnumOverlappingFields below).
type circlePayload struct {
	Radius int
}

type squarePayload struct {
	Side int
}

type shapeEnum struct {
	name    string
	payload any
}

func (e *shapeEnum) EnumVariants() []Variant {
	return []Variant{
		{Name: "Circle", New: func() any { return &circlePayload{} }},
		{Name: "Square", New: func() any { return &squarePayload{} }},
	}
}

func (e *shapeEnum) ActiveVariant() (string, any) { return e.name, e.payload }
func (e *shapeEnum) SetVariant(name string, payload any) error {
	e.name, e.payload = name, payload
	return nil
}

type flattenedShapeDoc struct {
	ID    int
	Shape shapeEnum `wire:",flatten"`
}

func TestFlattenEnumDistinctFields(t *testing.T) {
	var d flattenedShapeDoc
	if err := FromSlice([]byte(`{"ID":1,"Radius":5}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Shape.name != "Circle" {
		t.Errorf("variant = %q, want Circle", d.Shape.name)
	}
	p, ok := d.Shape.payload.(*circlePayload)
	if !ok || p.Radius != 5 {
		t.Errorf("payload = %#v", d.Shape.payload)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	in := flattenedShapeDoc{ID: 2, Shape: shapeEnum{name: "Square", payload: &squarePayload{Side: 3}}}
	got, err := ToString(in)
	if err != nil {
		t.Fatal(err)
	}
	var out flattenedShapeDoc
	if err := FromSlice([]byte(got), &out); err != nil {
		t.Fatalf("round trip of %s: %v", got, err)
	}
	if out.ID != 2 || out.Shape.name != "Square" {
		t.Errorf("got %+v", out)
	}
	p, ok := out.Shape.payload.(*squarePayload)
	if !ok || p.Side != 3 {
		t.Errorf("payload = %#v", out.Shape.payload)
	}
}

// overlapA/overlapB both declare a field named Value, so the solver must
// pick the variant with the larger match against the observed key set.
type overlapA struct {
	Value int
	Extra string
}

type overlapB struct {
	Value int
}

type overlapEnum struct {
	name    string
	payload any
}

func (e *overlapEnum) EnumVariants() []Variant {
	return []Variant{
		{Name: "B", New: func() any { return &overlapB{} }},
		{Name: "A", New: func() any { return &overlapA{} }},
	}
}
func (e *overlapEnum) ActiveVariant() (string, any) { return e.name, e.payload }
func (e *overlapEnum) SetVariant(name string, payload any) error {
	e.name, e.payload = name, payload
	return nil
}

type overlapDoc struct {
	Tag   string
	Inner overlapEnum `wire:",flatten"`
}

func TestFlattenEnumOverlappingFields(t *testing.T) {
	var d overlapDoc
	if err := FromSlice([]byte(`{"Tag":"t","Value":1,"Extra":"x"}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Inner.name != "A" {
		t.Errorf("variant = %q, want A (best match against {Value,Extra})", d.Inner.name)
	}
}

func TestFlattenMissingNonFlattenFieldErrors(t *testing.T) {
	var d flattenedShapeDoc
	err := FromSlice([]byte(`{"Radius":5}`), &d)
	if err == nil {
		t.Fatal("expected missing field ID")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindMissingField || e.Field != "ID" {
		t.Fatalf("got %v", err)
	}
}

type strictFlattenDoc struct {
	ID    int
	Shape shapeEnum `wire:",flatten"`
}

func (strictFlattenDoc) JSONConfig() Config { return Config{DenyUnknownFields: true} }

func TestFlattenUnknownKeyErrors(t *testing.T) {
	var d strictFlattenDoc
	err := FromSlice([]byte(`{"ID":1,"Radius":5,"Bogus":9}`), &d)
	if err == nil {
		t.Fatal("expected unknown field error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindUnknownField || e.Field != "Bogus" {
		t.Fatalf("got %v", err)
	}
}

type catchAllDoc struct {
	ID    int
	Extra map[string]int `wire:",flatten"`
}

func (catchAllDoc) JSONConfig() Config { return Config{DenyUnknownFields: true} }

// TestFlattenMapCatchAll: keys the solver cannot place land in a flattened
// map field instead of counting as unknown, even under deny_unknown_fields,
// mirroring the serializer's map splice.
func TestFlattenMapCatchAll(t *testing.T) {
	var d catchAllDoc
	if err := FromSlice([]byte(`{"ID":1,"a":10,"b":20}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.ID != 1 || d.Extra["a"] != 10 || d.Extra["b"] != 20 {
		t.Errorf("got %+v", d)
	}
}

func TestFlattenMapCatchAllRoundTrip(t *testing.T) {
	in := catchAllDoc{ID: 2, Extra: map[string]int{"x": 1, "y": 2}}
	got, err := ToString(in)
	if err != nil {
		t.Fatal(err)
	}
	var out catchAllDoc
	if err := FromSlice([]byte(got), &out); err != nil {
		t.Fatalf("round trip of %s: %v", got, err)
	}
	if out.ID != 2 || out.Extra["x"] != 1 || out.Extra["y"] != 2 {
		t.Errorf("got %+v", out)
	}
}

type optionFlattenDoc struct {
	ID    int
	Inner Option[innerFields] `wire:",flatten"`
}

func TestFlattenOptionAbsentDefaultsToNone(t *testing.T) {
	var d optionFlattenDoc
	if err := FromSlice([]byte(`{"ID":5}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Inner.Valid {
		t.Errorf("expected None, got %+v", d.Inner)
	}
}

func TestFlattenOptionPresentRoundTrip(t *testing.T) {
	in := optionFlattenDoc{ID: 6, Inner: Option[innerFields]{Value: innerFields{Name: "n", Age: 3}, Valid: true}}
	got, err := ToString(in)
	if err != nil {
		t.Fatal(err)
	}
	var out optionFlattenDoc
	if err := FromSlice([]byte(got), &out); err != nil {
		t.Fatalf("round trip of %s: %v", got, err)
	}
	if !out.Inner.Valid || out.Inner.Value != (innerFields{Name: "n", Age: 3}) {
		t.Errorf("got %+v", out)
	}
}
