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

func TestSpanEnd(t *testing.T) {
	cases := []struct {
		sp   Span
		want int
	}{
		{Span{Start: 0, Len: 0}, 0},
		{Span{Start: 3, Len: 5}, 8},
		{Span{Start: 100, Len: 1}, 101},
	}
	for _, c := range cases {
		if got := c.sp.End(); got != c.want {
			t.Errorf("Span%+v.End() = %d, want %d", c.sp, got, c.want)
		}
	}
}

func TestSpanIsZero(t *testing.T) {
	if !(Span{}).IsZero() {
		t.Error("zero Span should report IsZero")
	}
	if (Span{Start: 1}).IsZero() {
		t.Error("Span{Start:1} should not report IsZero")
	}
}

func TestSpanUnion(t *testing.T) {
	a := Span{Start: 2, Len: 3} // 2..5
	b := Span{Start: 4, Len: 4} // 4..8
	u := a.union(b)
	if u.Start != 2 || u.End() != 8 {
		t.Errorf("union = %+v, want start 2 end 8", u)
	}
}

func TestSpannedString(t *testing.T) {
	sp := Spanned[int]{Value: 42, Span: Span{Start: 0, Len: 2}}
	if got := sp.String(); got != "42 at 0..2" {
		t.Errorf("Spanned.String() = %q", got)
	}
}
