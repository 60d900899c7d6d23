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

// Package-internal shape compiler: the structural descriptors both engines
// dispatch on are compiled from reflect.Type on demand (struct tags plus
// the optional Configurable/Enum interfaces) and cached in a sync.Map.
package rjson

import (
	"reflect"
	"strings"
	"sync"
)

// ShapeKind is the closed set of structural shapes the codec understands.
type ShapeKind int

const (
	KindScalarShape ShapeKind = iota
	KindStructShape
	KindEnumShape
	KindListShape
	KindMapShape
	KindSetShape
	KindOptionShape
	KindArrayShape // fixed-length array
	KindPointerShape
	KindTransparentShape
)

// RenameAllPolicy renames every field of a struct (or variant of an enum)
// uniformly, unless a field carries an explicit rename.
type RenameAllPolicy int

const (
	RenameNone RenameAllPolicy = iota
	RenameSnakeCase
	RenameKebabCase
	RenameCamelCase
	RenamePascalCase
	RenameScreamingSnakeCase
	RenameUpperCase
	RenameLowerCase
)

// Config carries the struct/enum-level codec attributes. A type opts into
// these by implementing Configurable.
type Config struct {
	Transparent       bool
	DenyUnknownFields bool
	DefaultOK         bool // struct-level default: missing fields default rather than error
	RenameAll         RenameAllPolicy

	// Enum tagging. Zero values mean external tagging.
	Tag      string // internal/adjacent tag key
	Content  string // adjacent content key
	TypeTag  string // type_tag key (object variant selects on this key's value)
	Untagged bool
}

// Configurable is implemented by struct or enum container types that need
// struct/enum-level attributes beyond what a field tag can carry.
type Configurable interface {
	JSONConfig() Config
}

// Variant describes one case of an Enum: its canonical name, an optional
// wire-name override, and a payload constructor.
type Variant struct {
	Name string
	// Rename overrides the variant's wire name. When empty, the wire name is
	// Name transformed by the enum's rename_all policy, if any.
	Rename string
	// New returns a pointer to a freshly zeroed payload value for this
	// variant, or nil for a unit variant (no data).
	New func() any
}

// Enum is implemented by Go types that model a tagged union: a closed set
// of named variants, each optionally carrying data. User types hand-write
// these three methods, the same way hand-rolled sealed-interface sum types
// are written elsewhere in Go (e.g. ast.Node, protobuf oneof wrappers).
type Enum interface {
	EnumVariants() []Variant
	ActiveVariant() (name string, payload any)
	SetVariant(name string, payload any) error
}

// Option is the explicit None/Some container. A struct reflect.Type is
// recognized as an Option instantiation when it has exactly two fields
// named Value and Valid (bool) in that order — the same structural
// convention database/sql uses for its Null* types.
type Option[T any] struct {
	Value T
	Valid bool
}

// fieldInfo describes one compiled struct field.
type fieldInfo struct {
	goName          string // Go struct field name
	wireName        string // name used on the wire, after rename/rename_all
	index           int    // reflect index for Field(i)
	typ             reflect.Type
	hasDefaultTag   bool
	flatten         bool
	opaque          bool
	borrow          bool // &str-style: must be populated from a zero-copy borrow
	serializeWith   func(any) (any, error)
	deserializeWith func(*Tokenizer) (any, error)
}

// shape is the compiled, cached descriptor for one reflect.Type.
type shape struct {
	typ  reflect.Type
	kind ShapeKind

	// scalar
	scalarKind reflect.Kind

	// struct
	fields      []fieldInfo
	byWireName  map[string]int // index into fields
	isTuple     bool           // positional (TupleStruct): emit/parse as array
	cfg         Config
	hasCfg      bool
	parseFromStr func(string) (any, error)
	displayFn    func(any) (string, bool)

	// enum
	variants   []Variant
	byVariant  map[string]*Variant

	// containers
	elem reflect.Type // list/set/option/pointer/transparent/array inner
	key  reflect.Type // map key

	arrayLen int // fixed array length
}

var shapeCache sync.Map // reflect.Type -> *shape

var (
	enumType         = reflect.TypeOf((*Enum)(nil)).Elem()
	configurableType = reflect.TypeOf((*Configurable)(nil)).Elem()
)

// compileShape returns the cached shape for t, compiling it on first use.
// For mutually recursive struct types, the descriptor is stored in the
// cache before it is built and is then filled in place, so a recursive
// lookup of the same type returns it instead of looping forever.
func compileShape(t reflect.Type) *shape {
	if v, ok := shapeCache.Load(t); ok {
		return v.(*shape)
	}
	s := &shape{typ: t}
	actual, loaded := shapeCache.LoadOrStore(t, s)
	if loaded {
		return actual.(*shape)
	}
	s.build()
	s.parseFromStr, _ = lookupParseFromStr(t)
	s.displayFn, _ = lookupDisplay(t)
	return s
}

func (s *shape) build() {
	t := s.typ
	if t.Kind() == reflect.Pointer {
		s.kind = KindPointerShape
		s.elem = t.Elem()
		return
	}
	if isOptionType(t) {
		s.kind = KindOptionShape
		s.elem = t.Field(0).Type
		return
	}
	if t.Implements(enumType) || reflect.PointerTo(t).Implements(enumType) {
		s.buildEnum()
		return
	}
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		s.kind = KindScalarShape
		s.scalarKind = t.Kind()
	case reflect.Slice:
		s.kind = KindListShape
		s.elem = t.Elem()
	case reflect.Array:
		s.kind = KindArrayShape
		s.elem = t.Elem()
		s.arrayLen = t.Len()
	case reflect.Map:
		if t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0 {
			s.kind = KindSetShape
			s.elem = t.Key()
		} else {
			s.kind = KindMapShape
			s.key = t.Key()
			s.elem = t.Elem()
		}
	case reflect.Struct:
		s.buildStruct()
	default:
		s.kind = KindScalarShape
		s.scalarKind = t.Kind()
	}
}

// isOptionType structurally detects rjson.Option[T] instantiations.
func isOptionType(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || t.NumField() != 2 {
		return false
	}
	f0, f1 := t.Field(0), t.Field(1)
	return f0.Name == "Value" && f1.Name == "Valid" && f1.Type.Kind() == reflect.Bool
}

// spanType caches reflect.TypeOf(Span{}) for isSpannedShape.
var spanType = reflect.TypeOf(Span{})

// isSpannedShape structurally detects rjson.Spanned[T] instantiations: a
// struct with exactly two fields named Value and Span, the
// second of Span type. Unlike Option, detection does not go through the
// shape cache's buildStruct path at all — it is checked by the caller
// before dispatching on the ordinary shape kind.
func isSpannedShape(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || t.NumField() != 2 {
		return false
	}
	f0, f1 := t.Field(0), t.Field(1)
	return f0.Name == "Value" && f1.Name == "Span" && f1.Type == spanType
}

func (s *shape) configurable() (Config, bool) {
	var v reflect.Value
	if s.typ.Kind() == reflect.Pointer {
		v = reflect.New(s.typ.Elem())
	} else if reflect.PointerTo(s.typ).Implements(configurableType) {
		v = reflect.New(s.typ)
	} else if s.typ.Implements(configurableType) {
		v = reflect.Zero(s.typ)
		if c, ok := v.Interface().(Configurable); ok {
			return c.JSONConfig(), true
		}
		return Config{}, false
	} else {
		return Config{}, false
	}
	if c, ok := v.Interface().(Configurable); ok {
		return c.JSONConfig(), true
	}
	if c, ok := v.Elem().Interface().(Configurable); ok {
		return c.JSONConfig(), true
	}
	return Config{}, false
}

func (s *shape) buildEnum() {
	s.kind = KindEnumShape
	s.byVariant = map[string]*Variant{}
	proto := reflect.New(s.typ)
	ev, ok := proto.Interface().(Enum)
	if !ok {
		ev, ok = proto.Elem().Interface().(Enum)
	}
	if !ok {
		s.variants = nil
		return
	}
	if cfg, ok := s.configurable(); ok {
		s.cfg = cfg
		s.hasCfg = true
	}
	vs := ev.EnumVariants()
	s.variants = vs
	for i := range vs {
		v := vs[i]
		s.byVariant[s.variantWireName(v.Name)] = &v
	}
}

// variantWireName maps a variant's canonical name to the form it takes on
// the wire: an explicit per-variant rename wins, otherwise the enum's
// rename_all policy applies.
func (s *shape) variantWireName(name string) string {
	for i := range s.variants {
		if s.variants[i].Name == name && s.variants[i].Rename != "" {
			return s.variants[i].Rename
		}
	}
	if s.hasCfg {
		return applyRenameAll(name, s.cfg.RenameAll)
	}
	return name
}

// tupleFieldName matches "F0", "F1", ... used by the tuple-struct
// convention: a struct whose exported fields are exactly F0..F(n-1) in
// order is treated as a positional (array-on-the-wire) shape.
func tupleFieldName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "F" + string(digits[i])
	}
	n := []byte{}
	for i > 0 {
		n = append([]byte{digits[i%10]}, n...)
		i /= 10
	}
	return "F" + string(n)
}

func (s *shape) buildStruct() {
	s.kind = KindStructShape
	t := s.typ

	cfg, hasCfg := s.configurable()
	s.cfg, s.hasCfg = cfg, hasCfg
	if hasCfg && cfg.Transparent {
		s.kind = KindTransparentShape
	}

	s.byWireName = map[string]int{}
	n := t.NumField()
	isTuple := n > 0
	for i := 0; i < n; i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			isTuple = false
			continue
		}
		if sf.Name != tupleFieldName(i) {
			isTuple = false
		}
	}
	s.isTuple = isTuple && s.kind == KindStructShape

	if s.kind == KindTransparentShape {
		for i := 0; i < n; i++ {
			if t.Field(i).PkgPath == "" {
				s.elem = t.Field(i).Type
				break
			}
		}
		return
	}

	for i := 0; i < n; i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		fi := fieldInfo{goName: sf.Name, index: i, typ: sf.Type, wireName: sf.Name}
		tag, hasTag := sf.Tag.Lookup("wire")
		var opts []string
		if hasTag {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue // opaque via "-" shorthand
			}
			if parts[0] != "" {
				fi.wireName = parts[0]
			}
			opts = parts[1:]
		}
		for _, o := range opts {
			switch o {
			case "flatten":
				fi.flatten = true
			case "default":
				fi.hasDefaultTag = true
			case "opaque":
				fi.opaque = true
			case "borrow":
				fi.borrow = true
			}
		}
		if !hasTag || (hasTag && strings.Split(tag, ",")[0] == "") {
			if hasCfg {
				fi.wireName = applyRenameAll(fi.goName, cfg.RenameAll)
			}
		}
		if fi.opaque {
			continue
		}
		fi.serializeWith, _ = lookupSerializeWith(t, sf.Name)
		fi.deserializeWith, _ = lookupDeserializeWith(t, sf.Name)
		s.fields = append(s.fields, fi)
		s.byWireName[fi.wireName] = len(s.fields) - 1
	}
}

// fieldNames returns the wire names of every known field, in declared
// order, used for "did you mean" suggestions and UnknownField diagnostics.
func (s *shape) fieldNames() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.wireName
	}
	return out
}
