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

import "fmt"

// Span locates a region of the original input by byte offset and length.
// It is immutable and copied freely between tokens, values, and errors.
type Span struct {
	Start int
	Len   int
}

// End returns Start+Len.
func (s Span) End() int { return s.Start + s.Len }

// IsZero reports whether s is the zero Span (used to mean "no span attached").
func (s Span) IsZero() bool { return s.Start == 0 && s.Len == 0 }

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End())
}

// union returns the smallest Span covering both a and b.
func (s Span) union(o Span) Span {
	start := s.Start
	if o.Start < start {
		start = o.Start
	}
	end := s.End()
	if o.End() > end {
		end = o.End()
	}
	return Span{Start: start, Len: end - start}
}

// Spanned pairs a decoded value with the byte span it was read from. A
// struct type whose only two fields are Value followed by Span (of type
// Span), matched by exact name and order, is treated specially by the
// decoder: see decodeSpanned in deserialize.go.
type Spanned[T any] struct {
	Value T
	Span  Span
}

func (s Spanned[T]) String() string {
	return fmt.Sprintf("%v at %s", s.Value, s.Span)
}
