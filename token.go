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

// TokenKind names one of the lexical token classes produced by the tokenizer.
type TokenKind int

const (
	TokLBrace TokenKind = iota // {
	TokRBrace                  // }
	TokLBrack                  // [
	TokRBrack                  // ]
	TokColon                   // :
	TokComma                   // ,
	TokTrue
	TokFalse
	TokNull
	TokString
	TokI64
	TokU64
	TokI128
	TokU128
	TokF64
	TokEOF
)

func (k TokenKind) String() string {
	switch k {
	case TokLBrace:
		return "'{'"
	case TokRBrace:
		return "'}'"
	case TokLBrack:
		return "'['"
	case TokRBrack:
		return "']'"
	case TokColon:
		return "':'"
	case TokComma:
		return "','"
	case TokTrue, TokFalse:
		return "boolean"
	case TokNull:
		return "null"
	case TokString:
		return "string"
	case TokI64, TokU64, TokI128, TokU128, TokF64:
		return "number"
	case TokEOF:
		return "end of input"
	default:
		return "token"
	}
}

// cowString is the copy-on-write JSON string payload: a zero-copy borrow of
// the input when no escape sequence was present, an owned string otherwise.
type cowString struct {
	text     string
	borrowed bool
}

// i128 is a 128-bit signed integer stored as a sign flag plus a 128-bit
// magnitude (hi, lo), used only for the token payload of numbers that
// overflow 64 bits but fit in 128. It never needs
// to support arithmetic beyond parsing and width-fit checks.
type i128 struct {
	neg bool
	hi  uint64
	lo  uint64
}

// u128 is the unsigned counterpart of i128.
type u128 struct {
	hi uint64
	lo uint64
}

// Token is a tagged-union lexical token together with its source Span.
type Token struct {
	Kind TokenKind
	Span Span

	str  cowString
	i64  int64
	u64  uint64
	i128 i128
	u128 u128
	f64  float64
}

// String returns the decoded text of a TokString token.
func (t Token) String() (string, bool) {
	if t.Kind != TokString {
		return "", false
	}
	return t.str.text, true
}

// Borrowed reports whether a TokString token's text is a zero-copy borrow
// of the original input (no escape sequence was present).
func (t Token) Borrowed() bool { return t.str.borrowed }

func (t Token) describe() string {
	switch t.Kind {
	case TokString:
		return "string"
	case TokTrue, TokFalse:
		return "boolean"
	case TokNull:
		return "null"
	case TokI64, TokU64, TokI128, TokU128, TokF64:
		return "number"
	default:
		return t.Kind.String()
	}
}
