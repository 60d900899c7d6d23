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
	"strings"
)

// Kind is the closed taxonomy of diagnostic kinds this codec can produce.
// Every failure Error belongs to exactly one Kind.
type Kind int

const (
	KindToken Kind = iota
	KindTokenWithContext
	KindUnexpectedToken
	KindUnexpectedEOF
	KindTypeMismatch
	KindUnknownField
	KindMissingField
	KindInvalidValue
	KindReflect
	KindNumberOutOfRange
	KindDuplicateKey
	KindInvalidUTF8
	KindSolver
)

// Code returns the stable machine-readable code for the kind, e.g. "json::unknown_field".
func (k Kind) Code() string {
	switch k {
	case KindToken, KindTokenWithContext:
		return "json::token"
	case KindUnexpectedToken:
		return "json::unexpected_token"
	case KindUnexpectedEOF:
		return "json::unexpected_eof"
	case KindTypeMismatch:
		return "json::type_mismatch"
	case KindUnknownField:
		return "json::unknown_field"
	case KindMissingField:
		return "json::missing_field"
	case KindInvalidValue:
		return "json::invalid_value"
	case KindReflect:
		return "json::reflect"
	case KindNumberOutOfRange:
		return "json::number_out_of_range"
	case KindDuplicateKey:
		return "json::duplicate_key"
	case KindInvalidUTF8:
		return "json::invalid_utf8"
	case KindSolver:
		return "json::solver"
	default:
		return "json::unknown"
	}
}

func (k Kind) label() string {
	switch k {
	case KindToken, KindTokenWithContext:
		return "invalid token"
	case KindUnexpectedToken:
		return "unexpected token"
	case KindUnexpectedEOF:
		return "unexpected end of input"
	case KindTypeMismatch:
		return "type mismatch"
	case KindUnknownField:
		return "unknown field"
	case KindMissingField:
		return "missing field"
	case KindInvalidValue:
		return "invalid value"
	case KindReflect:
		return "reflection error"
	case KindNumberOutOfRange:
		return "number out of range"
	case KindDuplicateKey:
		return "duplicate key"
	case KindInvalidUTF8:
		return "invalid UTF-8"
	case KindSolver:
		return "flatten solver error"
	default:
		return "error"
	}
}

// SpanLabel pairs a Span with a short label, used for MissingField's two-span
// diagnostic (the opening and closing braces of the containing object).
type SpanLabel struct {
	Span  Span
	Label string
}

// Error is the single error type produced by this package. It always has a
// Kind; it may carry a primary Span, a set of labeled spans (MissingField
// only), and — when produced by a string-based entry point — the original
// source text for graphical rendering.
type Error struct {
	Kind Kind

	// Primary span, when the failure is localized to one place.
	Span    Span
	HasSpan bool

	// Labeled spans, used only by MissingField (object_start, object_end).
	Labels []SpanLabel

	// Field/type bookkeeping, populated depending on Kind.
	Field        string
	ExpectedSet  []string
	Suggestion   string
	TargetType   string
	NumericValue string
	Expected     string
	Message      string

	// Source is attached by from_str (never by from_slice).
	Source string

	// Cause is the underlying error, if any (builder/Reflect/Solver errors).
	Cause error
}

// Code returns the stable machine-readable code for the error's kind.
func (e *Error) Code() string { return e.Kind.Code() }

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Code())
	b.WriteString(": ")
	switch e.Kind {
	case KindUnknownField:
		fmt.Fprintf(&b, "unknown field %q", e.Field)
		if e.Suggestion != "" {
			fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestion)
		}
	case KindMissingField:
		fmt.Fprintf(&b, "missing field %q", e.Field)
	case KindNumberOutOfRange:
		fmt.Fprintf(&b, "number %s does not fit in %s", e.NumericValue, e.TargetType)
	case KindUnexpectedToken:
		fmt.Fprintf(&b, "expected %s", e.Expected)
	case KindUnexpectedEOF:
		fmt.Fprintf(&b, "expected %s but reached end of input", e.Expected)
	case KindTypeMismatch:
		fmt.Fprintf(&b, "cannot read %s into %s", e.Message, e.TargetType)
	default:
		b.WriteString(e.Message)
	}
	if e.HasSpan {
		fmt.Fprintf(&b, " at %s", e.Span)
	}
	if e.Source != "" {
		b.WriteString("\n")
		b.WriteString(e.render())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, &Error{Kind: KindX}) matches any error of that kind
// regardless of its other fields.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

func (e *Error) withSpan(sp Span) *Error {
	e.Span = sp
	e.HasSpan = true
	return e
}

func (e *Error) withSource(src string) *Error {
	e.Source = src
	return e
}

// render produces the graphical snippet that Error appends when source text
// is attached: a line of source and a caret line under the primary span, or
// (for MissingField) one such pair for each labeled span.
func (e *Error) render() string {
	if e.Source == "" {
		return ""
	}
	var b strings.Builder
	if len(e.Labels) > 0 {
		for _, lbl := range e.Labels {
			renderSnippet(&b, e.Source, lbl.Span, lbl.Label)
		}
		return b.String()
	}
	if e.HasSpan {
		renderSnippet(&b, e.Source, e.Span, e.Kind.label())
	}
	return b.String()
}

func renderSnippet(b *strings.Builder, src string, sp Span, label string) {
	lineStart := strings.LastIndexByte(src[:clamp(sp.Start, len(src))], '\n') + 1
	lineEndRel := strings.IndexByte(src[clamp(sp.Start, len(src)):], '\n')
	lineEnd := len(src)
	if lineEndRel >= 0 {
		lineEnd = sp.Start + lineEndRel
	}
	fmt.Fprintf(b, "%s\n", src[lineStart:lineEnd])
	pad := sp.Start - lineStart
	if pad < 0 {
		pad = 0
	}
	width := sp.Len
	if width < 1 {
		width = 1
	}
	fmt.Fprintf(b, "%s%s %s\n", strings.Repeat(" ", pad), strings.Repeat("^", width), label)
}

func clamp(n, max int) int {
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}

func errToken(msg string, sp Span) *Error {
	return (&Error{Kind: KindToken, Message: msg}).withSpan(sp)
}

func errTokenContext(msg, expected string, sp Span) *Error {
	return (&Error{Kind: KindTokenWithContext, Message: msg, Expected: expected}).withSpan(sp)
}

func errUnexpectedToken(expected string, sp Span) *Error {
	return (&Error{Kind: KindUnexpectedToken, Expected: expected}).withSpan(sp)
}

func errUnexpectedEOF(expected string, sp Span) *Error {
	return (&Error{Kind: KindUnexpectedEOF, Expected: expected}).withSpan(sp)
}

func errTypeMismatch(gotDescription, targetType string, sp Span) *Error {
	return (&Error{Kind: KindTypeMismatch, Message: gotDescription, TargetType: targetType}).withSpan(sp)
}

func errUnknownField(field, suggestion string, expected []string, sp Span) *Error {
	return (&Error{Kind: KindUnknownField, Field: field, Suggestion: suggestion, ExpectedSet: expected}).withSpan(sp)
}

func errMissingField(field string, objectStart, objectEnd Span) *Error {
	return &Error{
		Kind:  KindMissingField,
		Field: field,
		Labels: []SpanLabel{
			{Span: objectStart, Label: "object starts here"},
			{Span: objectEnd, Label: "object ends here (field missing)"},
		},
	}
}

func errInvalidValue(msg string, sp Span) *Error {
	return (&Error{Kind: KindInvalidValue, Message: msg}).withSpan(sp)
}

func errNumberOutOfRange(value, targetType string, sp Span) *Error {
	return (&Error{Kind: KindNumberOutOfRange, NumericValue: value, TargetType: targetType}).withSpan(sp)
}

func errInvalidUTF8(sp Span) *Error {
	return (&Error{Kind: KindInvalidUTF8, Message: "invalid UTF-8"}).withSpan(sp)
}

func errReflect(cause error, sp Span) *Error {
	return (&Error{Kind: KindReflect, Message: cause.Error(), Cause: cause}).withSpan(sp)
}

func errSolver(cause error) *Error {
	return &Error{Kind: KindSolver, Message: cause.Error(), Cause: cause}
}
