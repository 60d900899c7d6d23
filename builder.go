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
)

type bframeKind int

const (
	bfField bframeKind = iota
	bfOption
	bfInner
	bfPointer
	bfVariant
	bfListItem
	bfMapKey
	bfMapValue
	bfSetItem
)

type bframe struct {
	kind bframeKind
	val  reflect.Value

	// bfVariant only:
	enumTarget reflect.Value
	variantName string
	payload     any
}

type bcontainerKind int

const (
	bcList bcontainerKind = iota
	bcMap
	bcSet
)

type bcontainer struct {
	kind     bcontainerKind
	target   reflect.Value // where the finished accumulator gets Set
	elemType reflect.Type
	keyType  reflect.Type
	slice    reflect.Value
	mapv     reflect.Value
	pendKey  reflect.Value
	havePend bool
}

// Builder constructs a value step by step: a sequence of balanced
// Begin*/End calls drives construction in place via reflection. The
// explicit frame stack (rather than plain recursive descent) exists so the
// flatten driver can suspend navigation mid-object and resume it later.
type Builder struct {
	root       reflect.Value
	frames     []bframe
	containers []bcontainer
}

// NewBuilder returns a Builder that will construct a value of *dst's
// pointee type. dst must be a non-nil pointer.
func NewBuilder(dst any) (*Builder, error) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("rjson: Deserialize target must be a non-nil pointer, got %T", dst)
	}
	return &Builder{root: v.Elem()}, nil
}

// Cur returns the value the builder is currently positioned at.
func (b *Builder) Cur() reflect.Value {
	if len(b.frames) == 0 {
		return b.root
	}
	return b.frames[len(b.frames)-1].val
}

// CurrentShape returns the compiled shape of the builder's current position.
func (b *Builder) CurrentShape() *shape {
	return compileShape(b.Cur().Type())
}

func (b *Builder) push(f bframe) {
	b.frames = append(b.frames, f)
}

// End pops the top frame, finalizing its value into its parent container
// (list/map/set) if it was an item/key/value/variant frame.
func (b *Builder) End() error {
	if len(b.frames) == 0 {
		return fmt.Errorf("rjson: Builder.End called with an empty stack")
	}
	f := b.frames[len(b.frames)-1]
	b.frames = b.frames[:len(b.frames)-1]
	switch f.kind {
	case bfListItem:
		// already aliases the container's slice backing array; nothing to do.
	case bfMapKey:
		c := b.topContainer()
		c.pendKey = f.val
		c.havePend = true
	case bfMapValue:
		c := b.topContainer()
		if !c.havePend {
			return fmt.Errorf("rjson: Builder.End: map value ended without a matching key")
		}
		c.mapv.SetMapIndex(c.pendKey, f.val)
		c.havePend = false
	case bfSetItem:
		c := b.topContainer()
		c.mapv.SetMapIndex(f.val, reflect.ValueOf(struct{}{}))
	case bfVariant:
		ev, err := asEnum(f.enumTarget)
		if err != nil {
			return err
		}
		if err := ev.SetVariant(f.variantName, f.payload); err != nil {
			return errReflect(err, Span{})
		}
	}
	return nil
}

func (b *Builder) topContainer() *bcontainer {
	return &b.containers[len(b.containers)-1]
}

// BeginField navigates into a named struct field.
func (b *Builder) BeginField(name string) error {
	s := b.CurrentShape()
	if s.kind != KindStructShape {
		return fmt.Errorf("rjson: BeginField on non-struct shape %s", s.typ)
	}
	idx, ok := s.byWireName[name]
	if !ok {
		return fmt.Errorf("rjson: unknown field %q", name)
	}
	b.push(bframe{kind: bfField, val: b.Cur().Field(s.fields[idx].index)})
	return nil
}

// BeginNthField navigates into the i-th declared field (tuple/array style).
func (b *Builder) BeginNthField(i int) error {
	cur := b.Cur()
	b.push(bframe{kind: bfField, val: cur.Field(i)})
	return nil
}

// BeginSome marks an Option[T] field present and navigates into its Value.
func (b *Builder) BeginSome() error {
	cur := b.Cur()
	cur.FieldByName("Valid").SetBool(true)
	b.push(bframe{kind: bfOption, val: cur.FieldByName("Value")})
	return nil
}

// BeginInner navigates into the single field of a transparent wrapper.
func (b *Builder) BeginInner() error {
	cur := b.Cur()
	if cur.Kind() != reflect.Struct || cur.NumField() == 0 {
		return fmt.Errorf("rjson: BeginInner on non-wrapper shape %s", cur.Type())
	}
	for i := 0; i < cur.NumField(); i++ {
		if cur.Type().Field(i).PkgPath == "" {
			b.push(bframe{kind: bfInner, val: cur.Field(i)})
			return nil
		}
	}
	return fmt.Errorf("rjson: transparent wrapper %s has no exported field", cur.Type())
}

// BeginSmartPtr allocates (if nil) the pointee of the current pointer field
// and navigates into it.
func (b *Builder) BeginSmartPtr() error {
	cur := b.Cur()
	if cur.IsNil() {
		cur.Set(reflect.New(cur.Type().Elem()))
	}
	b.push(bframe{kind: bfPointer, val: cur.Elem()})
	return nil
}

// BeginList prepares to accumulate elements for the current slice position.
func (b *Builder) BeginList() {
	cur := b.Cur()
	b.containers = append(b.containers, bcontainer{
		kind: bcList, target: cur, elemType: cur.Type().Elem(),
		slice: reflect.MakeSlice(cur.Type(), 0, 0),
	})
}

// BeginListItem appends a new zero element and navigates into it.
func (b *Builder) BeginListItem() {
	c := b.topContainer()
	c.slice = reflect.Append(c.slice, reflect.Zero(c.elemType))
	b.push(bframe{kind: bfListItem, val: c.slice.Index(c.slice.Len() - 1)})
}

// EndList finalizes the accumulated slice onto its target and pops the
// container frame.
func (b *Builder) EndList() {
	c := b.containers[len(b.containers)-1]
	c.target.Set(c.slice)
	b.containers = b.containers[:len(b.containers)-1]
}

// BeginMap allocates the map for the current position and makes it live.
func (b *Builder) BeginMap() {
	cur := b.Cur()
	m := reflect.MakeMap(cur.Type())
	cur.Set(m)
	b.containers = append(b.containers, bcontainer{
		kind: bcMap, target: cur, keyType: cur.Type().Key(), elemType: cur.Type().Elem(), mapv: m,
	})
}

// BeginKey navigates into a fresh addressable temp of the map's key type.
func (b *Builder) BeginKey() {
	c := b.topContainer()
	b.push(bframe{kind: bfMapKey, val: reflect.New(c.keyType).Elem()})
}

// BeginValue navigates into a fresh addressable temp of the map's value type.
func (b *Builder) BeginValue() {
	c := b.topContainer()
	b.push(bframe{kind: bfMapValue, val: reflect.New(c.elemType).Elem()})
}

// EndMap pops the container frame (the map itself is already live).
func (b *Builder) EndMap() {
	b.containers = b.containers[:len(b.containers)-1]
}

// BeginSet allocates the backing map[T]struct{} for the current position.
func (b *Builder) BeginSet() {
	cur := b.Cur()
	m := reflect.MakeMap(cur.Type())
	cur.Set(m)
	b.containers = append(b.containers, bcontainer{
		kind: bcSet, target: cur, keyType: cur.Type().Key(), mapv: m,
	})
}

// BeginSetItem navigates into a fresh addressable temp of the set's element type.
func (b *Builder) BeginSetItem() {
	c := b.topContainer()
	b.push(bframe{kind: bfSetItem, val: reflect.New(c.keyType).Elem()})
}

// EndSet pops the container frame.
func (b *Builder) EndSet() {
	b.containers = b.containers[:len(b.containers)-1]
}

func asEnum(v reflect.Value) (Enum, error) {
	if v.CanAddr() {
		if ev, ok := v.Addr().Interface().(Enum); ok {
			return ev, nil
		}
	}
	if ev, ok := v.Interface().(Enum); ok {
		return ev, nil
	}
	// Non-addressable value whose Enum methods have a pointer receiver:
	// route through an addressable copy. Decode targets are always
	// addressable (they come from a pointer or a freshly allocated payload),
	// so the copy only ever serves read-side callers.
	if reflect.PointerTo(v.Type()).Implements(enumType) {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return p.Interface().(Enum), nil
	}
	return nil, fmt.Errorf("rjson: %s does not implement Enum", v.Type())
}

// SelectVariantNamed activates the named enum variant. If the variant
// carries no data it is applied immediately; otherwise a frame is pushed
// over a fresh payload value, and the activation is committed on End().
func (b *Builder) SelectVariantNamed(name string) error {
	cur := b.Cur()
	s := compileShape(cur.Type())
	if s.kind != KindEnumShape {
		return fmt.Errorf("rjson: SelectVariantNamed on non-enum shape %s", cur.Type())
	}
	v, ok := s.byVariant[name]
	if !ok {
		return fmt.Errorf("rjson: unknown variant %q for %s", name, cur.Type())
	}
	ev, err := asEnum(cur)
	if err != nil {
		return err
	}
	// SetVariant/ActiveVariant speak the Enum implementation's own canonical
	// names (Variant.Name), never the wire-renamed form, so look that up
	// rather than forwarding the caller's (possibly rename_all'd) name.
	if v.New == nil {
		return ev.SetVariant(v.Name, nil)
	}
	payload := v.New()
	b.push(bframe{
		kind:        bfVariant,
		val:         reflect.ValueOf(payload).Elem(),
		enumTarget:  cur,
		variantName: v.Name,
		payload:     payload,
	})
	return nil
}

// CurrentVariant reports the active variant of the current enum position.
func (b *Builder) CurrentVariant() (string, any, error) {
	ev, err := asEnum(b.Cur())
	if err != nil {
		return "", nil, err
	}
	name, payload := ev.ActiveVariant()
	return name, payload, nil
}

// Set assigns a concrete scalar value to the current position, converting
// between compatible numeric kinds (e.g. int64 -> int32) as needed.
func (b *Builder) Set(value any) error {
	cur := b.Cur()
	rv := reflect.ValueOf(value)
	if !rv.Type().AssignableTo(cur.Type()) {
		if rv.Type().ConvertibleTo(cur.Type()) {
			rv = rv.Convert(cur.Type())
		} else {
			return fmt.Errorf("rjson: cannot assign %s to %s", rv.Type(), cur.Type())
		}
	}
	cur.Set(rv)
	return nil
}

// SetDefault zeroes the current position.
func (b *Builder) SetDefault() {
	cur := b.Cur()
	cur.Set(reflect.Zero(cur.Type()))
}

// SetField sets a named field directly to value without leaving a frame open.
func (b *Builder) SetField(name string, value any) error {
	if err := b.BeginField(name); err != nil {
		return err
	}
	defer b.End()
	return b.Set(value)
}

// SetNthFieldToDefault zeroes the i-th field directly.
func (b *Builder) SetNthFieldToDefault(i int) {
	b.Cur().Field(i).Set(reflect.Zero(b.Cur().Field(i).Type()))
}

// ParseFromStr invokes the shape's parse_from_str hook and assigns the result.
func (b *Builder) ParseFromStr(s string) error {
	shp := b.CurrentShape()
	if shp.parseFromStr == nil {
		return fmt.Errorf("rjson: %s has no parse_from_str hook", shp.typ)
	}
	v, err := shp.parseFromStr(s)
	if err != nil {
		return err
	}
	return b.Set(v)
}
