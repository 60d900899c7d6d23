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
	"strings"
	"testing"
)

func TestFromSliceScalarsAndStruct(t *testing.T) {
	var p point
	if err := FromSlice([]byte(`{"X":1,"Y":2}`), &p); err != nil {
		t.Fatal(err)
	}
	if p != (point{X: 1, Y: 2}) {
		t.Errorf("got %+v", p)
	}
}

func TestFromSliceRejectsTrailingGarbage(t *testing.T) {
	var p point
	err := FromSlice([]byte(`{"X":1,"Y":2} garbage`), &p)
	if err == nil {
		t.Fatal("expected error for trailing non-whitespace")
	}
}

func TestFromStrStripsBOM(t *testing.T) {
	var p point
	in := "\xef\xbb\xbf" + `{"X":3,"Y":4}`
	if err := FromStr(in, &p); err != nil {
		t.Fatal(err)
	}
	if p != (point{X: 3, Y: 4}) {
		t.Errorf("got %+v", p)
	}
}

func TestFromSliceDoesNotStripBOM(t *testing.T) {
	var p point
	in := []byte("\xef\xbb\xbf" + `{"X":3,"Y":4}`)
	if err := FromSlice(in, &p); err == nil {
		t.Fatal("expected FromSlice to reject a leading BOM (from_slice never strips it)")
	}
}

type strictStruct struct {
	A int
	B int
}

func (strictStruct) JSONConfig() Config { return Config{DenyUnknownFields: true} }

func TestFromSliceUnknownFieldSuggestsClosestName(t *testing.T) {
	var s strictStruct
	err := FromSlice([]byte(`{"A":1,"BB":2}`), &s)
	if err == nil {
		t.Fatal("expected unknown-field error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindUnknownField {
		t.Fatalf("got %v, want KindUnknownField", err)
	}
	if e.Suggestion != "B" {
		t.Errorf("suggestion = %q, want %q", e.Suggestion, "B")
	}
}

func TestFromSliceUnknownFieldIgnoredByDefault(t *testing.T) {
	var p point
	if err := FromSlice([]byte(`{"X":1,"Y":2,"Z":3}`), &p); err != nil {
		t.Fatalf("unknown field should be ignored without deny_unknown_fields: %v", err)
	}
	if p != (point{X: 1, Y: 2}) {
		t.Errorf("got %+v", p)
	}
}

func TestFromSliceMissingFieldTwoSpanDiagnostic(t *testing.T) {
	var p point
	err := FromSlice([]byte(`{"X":1}`), &p)
	if err == nil {
		t.Fatal("expected missing-field error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindMissingField {
		t.Fatalf("got %v, want KindMissingField", err)
	}
	if e.Field != "Y" {
		t.Errorf("field = %q, want Y", e.Field)
	}
	if len(e.Labels) != 2 || e.Labels[0].Span != (Span{Start: 0, Len: 1}) || e.Labels[1].Span != (Span{Start: 6, Len: 1}) {
		t.Errorf("labels = %+v, want object start 0..1 and object end 6..7", e.Labels)
	}
}

type defaultable struct {
	A int
	B int `wire:",default"`
}

func TestFromSliceFieldDefaultTagSkipsMissingFieldError(t *testing.T) {
	var d defaultable
	if err := FromSlice([]byte(`{"A":1}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.A != 1 || d.B != 0 {
		t.Errorf("got %+v", d)
	}
}

func TestFromSliceDuplicateKeyLastWins(t *testing.T) {
	var p point
	if err := FromSlice([]byte(`{"X":1,"X":2,"Y":3}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.X != 2 {
		t.Errorf("X = %d, want 2 (last write wins)", p.X)
	}
}

func TestFromSliceOptionMissingIsNone(t *testing.T) {
	var w withOption
	if err := FromSlice([]byte(`{}`), &w); err != nil {
		t.Fatal(err)
	}
	if w.Name.Valid {
		t.Errorf("expected None, got %+v", w.Name)
	}
}

func TestFromSliceTupleStructFromArray(t *testing.T) {
	var ts tupleStruct
	if err := FromSlice([]byte(`[1,"a"]`), &ts); err != nil {
		t.Fatal(err)
	}
	if ts != (tupleStruct{F0: 1, F1: "a"}) {
		t.Errorf("got %+v", ts)
	}
}

func TestFromSliceFlattenSplicesBack(t *testing.T) {
	var wf withFlatten
	if err := FromSlice([]byte(`{"ID":1,"Name":"n","Age":9}`), &wf); err != nil {
		t.Fatal(err)
	}
	if wf.ID != 1 || wf.Inner.Name != "n" || wf.Inner.Age != 9 {
		t.Errorf("got %+v", wf)
	}
}

func TestFromSliceUint64Boundaries(t *testing.T) {
	var u uint64
	if err := FromSlice([]byte("18446744073709551615"), &u); err != nil {
		t.Fatalf("MaxUint64: %v", err)
	}
	if u != 18446744073709551615 {
		t.Errorf("u = %d, want MaxUint64", u)
	}
	if err := FromSlice([]byte("18446744073709551614"), &u); err != nil {
		t.Fatalf("MaxUint64-1: %v", err)
	}
	if u != 18446744073709551614 {
		t.Errorf("u = %d, want MaxUint64-1", u)
	}
	err := FromSlice([]byte("18446744073709551616"), &u)
	if err == nil {
		t.Fatal("expected error for MaxUint64+1")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindNumberOutOfRange {
		t.Fatalf("got %v, want KindNumberOutOfRange", err)
	}
}

func TestFromSliceUint64RoundTrip(t *testing.T) {
	in := uint64(10000000000000000000)
	s, err := ToString(in)
	if err != nil {
		t.Fatal(err)
	}
	var out uint64
	if err := FromStr(s, &out); err != nil {
		t.Fatalf("FromStr(%s): %v", s, err)
	}
	if out != in {
		t.Errorf("round-tripped %d, want %d", out, in)
	}
}

func TestFromSliceNumberOutOfRangeForInt32(t *testing.T) {
	type small struct{ N int32 }
	var s small
	err := FromSlice([]byte(`{"N":99999999999}`), &s)
	if err == nil {
		t.Fatal("expected number-out-of-range error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindNumberOutOfRange {
		t.Fatalf("got %v, want KindNumberOutOfRange", err)
	}
}

func TestFromSliceTypeMismatch(t *testing.T) {
	var p point
	err := FromSlice([]byte(`{"X":"not a number","Y":1}`), &p)
	if err == nil {
		t.Fatal("expected type-mismatch error")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindTypeMismatch {
		t.Fatalf("got %v, want KindTypeMismatch", err)
	}
}

func TestFromSliceNullScalarSetsDefault(t *testing.T) {
	type doc struct {
		N int
		S string
		B bool
	}
	d := doc{N: 9, S: "x", B: true}
	if err := FromSlice([]byte(`{"N":null,"S":null,"B":null}`), &d); err != nil {
		t.Fatal(err)
	}
	if d != (doc{}) {
		t.Errorf("got %+v, want zero values (null sets the default at scalar level)", d)
	}
}

func TestFromSliceFloatWithZeroFractionIntoInteger(t *testing.T) {
	var n int
	if err := FromSlice([]byte(`1.0`), &n); err != nil {
		t.Fatalf("1.0 into int: %v", err)
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	err := FromSlice([]byte(`1.5`), &n)
	if err == nil {
		t.Fatal("expected error for 1.5 into int")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindInvalidValue {
		t.Fatalf("got %v, want KindInvalidValue", err)
	}
}

func TestFromStrTrailingGarbageSpan(t *testing.T) {
	var n int32
	err := FromStr("42 extra stuff", &n)
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindUnexpectedToken {
		t.Fatalf("got %v, want KindUnexpectedToken", err)
	}
	if e.Expected != "end of input" {
		t.Errorf("expected = %q, want %q", e.Expected, "end of input")
	}
	if e.Span != (Span{Start: 3, Len: 5}) {
		t.Errorf("span = %v, want 3..8 (covering %q)", e.Span, "extra")
	}
}

func TestFromSliceSpannedCapturesByteRange(t *testing.T) {
	type doc struct {
		Count Spanned[int]
	}
	var d doc
	if err := FromSlice([]byte(`{"Count":  42}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Count.Value != 42 {
		t.Errorf("value = %d, want 42", d.Count.Value)
	}
	if d.Count.Span != (Span{Start: 11, Len: 2}) {
		t.Errorf("span = %v, want 11..13", d.Count.Span)
	}
}

type borrowDoc struct {
	Name string `wire:",borrow"`
}

func TestFromSliceBorrowFieldRejectsEscapedString(t *testing.T) {
	var d borrowDoc
	if err := FromSlice([]byte(`{"Name":"plain"}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Name != "plain" {
		t.Errorf("got %q", d.Name)
	}
	err := FromSlice([]byte(`{"Name":"esc\naped"}`), &d)
	if err == nil {
		t.Fatal("expected error: a borrow field cannot take an escaped string")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindInvalidValue {
		t.Fatalf("got %v, want KindInvalidValue", err)
	}
}

func TestFromSliceTupleTooManyElements(t *testing.T) {
	var ts tupleStruct
	err := FromSlice([]byte(`[1,"a",3]`), &ts)
	if err == nil {
		t.Fatal("expected error for 3 elements into a 2-tuple")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindInvalidValue {
		t.Fatalf("got %v, want KindInvalidValue", err)
	}
	if !strings.Contains(e.Message, "maximum 2") {
		t.Errorf("message = %q, want it to name the maximum", e.Message)
	}
}

type intKeyMapDoc struct {
	ByID map[int32]string
}

func TestFromSliceIntegerKeyedMap(t *testing.T) {
	var d intKeyMapDoc
	if err := FromSlice([]byte(`{"ByID":{"7":"seven","-2":"neg"}}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.ByID[7] != "seven" || d.ByID[-2] != "neg" {
		t.Errorf("got %+v", d.ByID)
	}
	err := FromSlice([]byte(`{"ByID":{"x":"bad"}}`), &d)
	if err == nil {
		t.Fatal("expected error for non-numeric key")
	}
}

func TestFromStrErrorRendersSnippet(t *testing.T) {
	var p point
	src := `{"X":1}`
	err := FromStr(src, &p)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing field") || !strings.Contains(msg, "^") {
		t.Errorf("expected a rendered snippet in error text, got: %s", msg)
	}
}
