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

func TestJaroIdentical(t *testing.T) {
	if jaro("abc", "abc") != 1 {
		t.Error("identical strings should score 1")
	}
}

func TestJaroDisjoint(t *testing.T) {
	if jaro("abc", "xyz") != 0 {
		t.Error("disjoint strings should score 0")
	}
}

func TestJaroWinklerPrefixBoost(t *testing.T) {
	// Shared prefix should push the Winkler score above the plain Jaro score.
	plain := jaro("martha", "marhta")
	winkler := jaroWinkler("martha", "marhta")
	if winkler <= plain {
		t.Errorf("winkler (%f) should exceed plain jaro (%f) given a shared prefix", winkler, plain)
	}
}

func TestSuggestFieldPicksClosest(t *testing.T) {
	got := suggestField("nam", []string{"Name", "Age", "Email"})
	if got != "Name" {
		t.Errorf("got %q, want Name", got)
	}
}

func TestSuggestFieldBelowThresholdReturnsEmpty(t *testing.T) {
	got := suggestField("zzzzzzzz", []string{"Name", "Age", "Email"})
	if got != "" {
		t.Errorf("got %q, want empty suggestion for a totally unrelated name", got)
	}
}

// TestSuggestFieldTieBreaksByScanOrder: two candidates scoring identically
// against the input resolve to whichever the caller listed first.
func TestSuggestFieldTieBreaksByScanOrder(t *testing.T) {
	got := suggestField("ab", []string{"ax", "ay"})
	if got != "ax" {
		t.Errorf("got %q, want ax (first candidate to reach the best score)", got)
	}
}
