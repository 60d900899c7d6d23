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
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

// secretDoc's Token field is redacted on the way out and re-read through a
// custom tokenizer hook on the way in.
type secretDoc struct {
	Name  string
	Token string
}

func init() {
	RegisterSerializeWith(reflect.TypeOf(secretDoc{}), "Token", func(v any) (any, error) {
		return "redacted:" + v.(string), nil
	})
	RegisterDeserializeWith(reflect.TypeOf(secretDoc{}), "Token", func(tok *Tokenizer) (any, error) {
		t, err := tok.Next()
		if err != nil {
			return nil, err
		}
		s, ok := t.String()
		if !ok {
			return nil, errTypeMismatch(t.describe(), "string", t.Span)
		}
		return strings.TrimPrefix(s, "redacted:"), nil
	})
}

func TestSerializeWithHookReplacesFieldValue(t *testing.T) {
	got, err := ToString(secretDoc{Name: "n", Token: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"Name":"n","Token":"redacted:abc"}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDeserializeWithHookConsumesFieldValue(t *testing.T) {
	var d secretDoc
	if err := FromSlice([]byte(`{"Name":"n","Token":"redacted:abc"}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Token != "abc" {
		t.Errorf("Token = %q, want %q", d.Token, "abc")
	}
}

// userID parses from a "u-<n>" wire form via a parse_from_str hook.
type userID uint32

func init() {
	RegisterParseFromStr(reflect.TypeOf(userID(0)), func(s string) (any, error) {
		rest, ok := strings.CutPrefix(s, "u-")
		if !ok {
			return nil, fmt.Errorf("user id %q does not start with u-", s)
		}
		n, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return nil, err
		}
		return userID(n), nil
	})
}

func TestParseFromStrHookOnStringScalar(t *testing.T) {
	type doc struct{ ID userID }
	var d doc
	if err := FromSlice([]byte(`{"ID":"u-42"}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.ID != 42 {
		t.Errorf("ID = %d, want 42", d.ID)
	}
	err := FromSlice([]byte(`{"ID":"x-1"}`), &d)
	if err == nil {
		t.Fatal("expected error for malformed user id")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindInvalidValue {
		t.Fatalf("got %v, want KindInvalidValue", err)
	}
}

// coord is a non-string, non-integer map key made serializable by a display
// hook.
type coord struct {
	X int
	Y int
}

func init() {
	RegisterDisplay(reflect.TypeOf(coord{}), func(v any) (string, bool) {
		c := v.(coord)
		return fmt.Sprintf("%d,%d", c.X, c.Y), true
	})
}

func TestDisplayHookSerializesMapKey(t *testing.T) {
	got, err := ToString(map[coord]string{{X: 1, Y: 2}: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"1,2":"a"}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestUnsupportedMapKeyFails(t *testing.T) {
	type opaqueKey struct{ A bool }
	_, err := ToString(map[opaqueKey]int{{A: true}: 1})
	if err == nil {
		t.Fatal("expected error for a map key with no string/integer/display form")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindInvalidValue {
		t.Fatalf("got %v, want KindInvalidValue", err)
	}
}
