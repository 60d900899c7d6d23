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

//go:build linux && amd64

package rjson

import (
	"testing"

	"github.com/wireshape/rjson/internal/testutil"
)

// TestTokenizerNeverReadsPastGuardPage places a JSON document at the very
// end of a mapped page followed by an unmapped guard page: any span the
// tokenizer computes that runs even one byte past the input would fault
// here instead of silently reading garbage; every token's span must lie
// within the input buffer.
func TestTokenizerNeverReadsPastGuardPage(t *testing.T) {
	inputs := []string{
		`{"a":1,"b":[true,false,null],"c":"hello"}`,
		`"unterminated at the very edge`,
		`[1,2,3`,
		`12345`,
		`"escaped \n \t é end"`,
	}
	for _, in := range inputs {
		gm, err := testutil.GuardMemory([]byte(in))
		if err != nil {
			t.Fatalf("%q: GuardMemory: %v", in, err)
		}
		func() {
			defer gm.Free()
			tok := NewTokenizer(gm.Data)
			for {
				tk, terr := tok.Next()
				if terr != nil {
					break
				}
				if tk.Span.Start > len(gm.Data) || tk.Span.End() > len(gm.Data) {
					t.Errorf("%q: token span %+v runs past input length %d", in, tk.Span, len(gm.Data))
				}
				if tk.Kind == TokEOF {
					break
				}
			}
		}()
	}
}
