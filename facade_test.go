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
	"testing"
)

func TestPeekToStringMatchesToString(t *testing.T) {
	p := point{X: 1, Y: 2}
	want, err := ToString(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := PeekToString(Peek(p))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("PeekToString = %s, want %s", got, want)
	}
}

func TestPeekToStringPrettyMatchesToStringPretty(t *testing.T) {
	p := point{X: 1, Y: 2}
	want, err := ToStringPretty(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := PeekToStringPretty(Peek(p))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("PeekToStringPretty = %q, want %q", got, want)
	}
}

func TestPeekReusableAcrossCalls(t *testing.T) {
	v := Peek(point{X: 5, Y: 6})
	first, err := PeekToString(v)
	if err != nil {
		t.Fatal(err)
	}
	second, err := PeekToStringPretty(v)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("compact and pretty output should differ")
	}
}

func TestPeekToWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := PeekToWriter(&buf, Peek(point{X: 9, Y: 10})); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != `{"X":9,"Y":10}` {
		t.Errorf("got %s", got)
	}
}

func TestPeekToWriterPretty(t *testing.T) {
	var buf bytes.Buffer
	if err := PeekToWriterPretty(&buf, Peek(point{X: 1, Y: 2})); err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"X\": 1,\n  \"Y\": 2\n}"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
