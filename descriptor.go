package gaia

import (
	"reflect"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

// ctorFn, dtorFn, copyFn, moveFn, swapFn, eqFn are the descriptor's
// vtable. Any of them may be nil, meaning "trivial" — the chunk falls
// back to a raw byte move/copy/compare in that case.
type (
	ctorFn func(dst unsafe.Pointer)
	dtorFn func(dst unsafe.Pointer)
	copyFn func(dst, src unsafe.Pointer)
	moveFn func(dst, src unsafe.Pointer)
	swapFn func(a, b unsafe.Pointer)
	eqFn   func(a, b unsafe.Pointer) bool
)

const maxSoAFields = 15

// Descriptor is the process-stable, immutable record describing one
// registered component type: its packed id, matcher/lookup hashes,
// byte size and alignment, SoA layout (if any), and the function-
// pointer vtable replacing virtual dispatch. Descriptors are created
// on first use and never destroyed before the owning World's
// descriptor cache itself goes out of scope.
type Descriptor struct {
	Component   ComponentID
	LookupHash  uint64
	MatcherHash uint64

	Size  uintptr
	Align uintptr

	SoAFieldSizes [maxSoAFields]uintptr
	SoAArity      uint8

	Name string

	Ctor     ctorFn
	CtorMove moveFn
	CtorCopy copyFn
	Dtor     dtorFn
	Copy     copyFn
	Move     moveFn
	Swap     swapFn
	Eq       eqFn

	goType reflect.Type

	// containsPointers marks a component whose Go representation holds
	// at least one GC-traced reference (pointer, string, slice, map,
	// chan, func, interface). Such components cannot live in a chunk's
	// raw byte slab — the allocator's backing []byte is opaque to the
	// garbage collector, so a reference stored there would never keep
	// its target alive, and could be collected out from under a live
	// entity. Chunk routes these columns through a separate GC-visible
	// allocation instead (see Chunk.pointerColumns).
	containsPointers bool
}

// typeContainsPointers reports whether t's Go representation holds any
// GC-traced reference, recursing into struct fields and array elements.
func typeContainsPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.String, reflect.Map,
		reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return typeContainsPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if typeContainsPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

func (d *Descriptor) construct(dst unsafe.Pointer) {
	if d.Ctor != nil {
		d.Ctor(dst)
		return
	}
	clearBytes(dst, d.Size)
}

func (d *Descriptor) destruct(dst unsafe.Pointer) {
	if d.Dtor != nil {
		d.Dtor(dst)
	}
}

func (d *Descriptor) moveOrCopy(dst, src unsafe.Pointer) {
	switch {
	case d.Move != nil:
		d.Move(dst, src)
	case d.Copy != nil:
		d.Copy(dst, src)
	default:
		copyBytes(dst, src, d.Size)
	}
}

// constructFrom builds a value at dst — which holds no prior live value
// — by copy/move-constructing it from src, unlike moveOrCopy/copyValue
// which assign into a dst that is already a constructed value of this
// type. migrateEntity uses this when a row lands in a freshly allocated
// chunk slot; moveRow/swapRows/defrag use moveOrCopy because they shift
// data between already-constructed slots.
func (d *Descriptor) constructFrom(dst, src unsafe.Pointer) {
	switch {
	case d.CtorMove != nil:
		d.CtorMove(dst, src)
	case d.CtorCopy != nil:
		d.CtorCopy(dst, src)
	case d.Move != nil:
		d.Move(dst, src)
	case d.Copy != nil:
		d.Copy(dst, src)
	default:
		copyBytes(dst, src, d.Size)
	}
}

func (d *Descriptor) copyValue(dst, src unsafe.Pointer) {
	if d.Copy != nil {
		d.Copy(dst, src)
		return
	}
	copyBytes(dst, src, d.Size)
}

func clearBytes(dst unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(dst), int(size))
	clear(b)
}

func copyBytes(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(dst), int(size))
	srcSlice := unsafe.Slice((*byte)(src), int(size))
	copy(dstSlice, srcSlice)
}

// descriptorDenseThreshold is the number of registrations below which
// the cache indexes descriptors in a flat slice instead of a map.
const descriptorDenseThreshold = 1024

// descriptorCache assigns a stable ComponentID to each distinct Go
// type and caches its Descriptor. Per the spec's own design notes it
// is owned by a World (not a package-global singleton): this keeps
// the "externally synchronized" multi-world contract honest instead
// of sharing mutable state across unrelated worlds.
type descriptorCache struct {
	byType  map[reflect.Type]*Descriptor
	dense   []*Descriptor
	nextID  uint32
}

func newDescriptorCache() *descriptorCache {
	return &descriptorCache{
		byType: make(map[reflect.Type]*Descriptor),
	}
}

// getOrCreate is idempotent: it returns the same *Descriptor pointer
// for the same Go type for the cache's lifetime. Callers must
// serialize registration themselves — the core is single-threaded
// with respect to mutation.
func getOrCreate[T any](c *descriptorCache) *Descriptor {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if d, ok := c.byType[t]; ok {
		return d
	}

	id := c.nextID
	c.nextID++

	size := t.Size()
	align := uintptr(t.Align())

	d := &Descriptor{
		Component:        makeComponentID(id, 0, size, align),
		Size:             size,
		Align:            align,
		Name:             t.String(),
		goType:           t,
		LookupHash:       fnvHash64(t.String()),
		MatcherHash:      matcherBit(id),
		containsPointers: typeContainsPointers(t),
	}

	wireDescriptorFuncs[T](d)

	c.byType[t] = d
	if int(id) < descriptorDenseThreshold {
		for len(c.dense) <= int(id) {
			c.dense = append(c.dense, nil)
		}
		c.dense[id] = d
	}
	return d
}

func (c *descriptorCache) byID(id uint32) *Descriptor {
	if int(id) < len(c.dense) {
		return c.dense[id]
	}
	for _, d := range c.byType {
		if d.Component.ID() == id {
			return d
		}
	}
	return nil
}

// wireDescriptorFuncs installs non-trivial function pointers for
// types that need them. Go's garbage collector already manages
// pointer-containing fields, so unlike the spec's C++ origin we only
// need custom functions when the type defines one of the optional
// hook interfaces below; everything else uses the raw byte move/copy
// fallback in Descriptor.moveOrCopy/copyValue.
func wireDescriptorFuncs[T any](d *Descriptor) {
	var zero T
	if _, ok := any(zero).(comparableComponent); ok {
		d.Eq = func(a, b unsafe.Pointer) bool {
			av := (*T)(a)
			bv := (*T)(b)
			return any(*av).(comparableComponent).ComponentEqual(*bv)
		}
	}
}

// comparableComponent is an optional hook: components that implement
// it get a non-trivial Descriptor.Eq instead of the default raw byte
// compare (which is wrong for types holding pointers/slices/maps with
// value semantics, e.g. a Name component backed by a string header).
type comparableComponent interface {
	ComponentEqual(other any) bool
}

// fnvHash64 is the lookup-hash function used to dedupe archetypes and
// queries in their hash maps; matcher hashes stay a cheap single-bit
// OR (see matcherBit) for O(1) superset tests.
func fnvHash64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// AnyAccessor erases an Accessor[T]'s type parameter so a caller can
// collect accessors of different component types into one slice, e.g.
// for AddEntityFrom's variadic component list.
type AnyAccessor interface {
	descriptor() *Descriptor
}

// Accessor is the user-facing, monomorphic handle returned by
// Register[T]. It wraps the type's Descriptor and provides typed
// access through a chunk, an Iterator, or an Entity — mirroring the
// teacher's AccessibleComponent[T], adapted from table.Accessor[T] to
// this package's own chunk storage.
type Accessor[T any] struct {
	desc *descriptorHandle
}

// descriptorHandle is a small indirection so an Accessor[T] keeps
// working after the owning World's descriptor cache grows (slice
// reallocation never invalidates the *Descriptor itself, only the
// cache's backing array, so this is actually just the *Descriptor —
// named for clarity at call sites).
type descriptorHandle = Descriptor

// ID returns the packed component id this accessor addresses.
func (a Accessor[T]) ID() ComponentID {
	return a.desc.Component
}

func (a Accessor[T]) descriptor() *Descriptor {
	return a.desc
}

// Has reports whether the archetype carries this component.
func (a Accessor[T]) Has(arch *Archetype) bool {
	return arch.hasComponent(a.desc.Component.ID())
}

// View returns the chunk-local typed slice for the iterator's current
// chunk. Each access bumps the component's version counter — change
// detection is conservative by design (false positives allowed, false
// negatives are not).
func (a Accessor[T]) View(it *Iterator) []T {
	full := viewMut[T](it.chunk, a.desc)
	return full[it.start : it.start+it.length]
}

// ViewReadOnly is the same slice without bumping the version counter;
// use it when the callback inspects but never writes the component.
func (a Accessor[T]) ViewReadOnly(it *Iterator) []T {
	full := viewReadOnly[T](it.chunk, a.desc)
	return full[it.start : it.start+it.length]
}

// Get returns a pointer to entity e's component value. Panics (via
// bark.AddTrace) if e does not carry the component — callers that
// aren't sure should check Has first via the world's archetype.
func (a Accessor[T]) Get(w *World, e Entity) *T {
	rec := w.mustLive(e)
	if !rec.archetype.hasComponent(a.desc.Component.ID()) {
		panic(bark.AddTrace(ComponentNotFoundError{Entity: e, Component: a.desc.Component}))
	}
	slice := viewMut[T](rec.chunk, a.desc)
	return &slice[rec.idx]
}

// GetReadOnly is Get without bumping the change-detection version.
func (a Accessor[T]) GetReadOnly(w *World, e Entity) *T {
	rec := w.mustLive(e)
	if !rec.archetype.hasComponent(a.desc.Component.ID()) {
		panic(bark.AddTrace(ComponentNotFoundError{Entity: e, Component: a.desc.Component}))
	}
	slice := viewReadOnly[T](rec.chunk, a.desc)
	return &slice[rec.idx]
}

// RegisterOption customizes the construct/destruct/move/copy/swap
// vtable a Descriptor carries for T. Pass zero or more to Register or
// RegisterSoA; a component that defines none of them falls back to the
// trivial raw-byte path everywhere a vtable slot is consulted.
type RegisterOption[T any] func(*Descriptor)

// WithCtor installs the non-trivial default constructor for T, called
// wherever a new row is default-initialized (entity creation, adding a
// component not copied from elsewhere).
func WithCtor[T any](fn func(*T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.Ctor = func(dst unsafe.Pointer) { fn((*T)(dst)) }
	}
}

// WithCtorMove installs the copy-construct-by-moving function used when
// a migration lands a value in a freshly allocated slot by consuming
// its source (see Descriptor.constructFrom).
func WithCtorMove[T any](fn func(dst, src *T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.CtorMove = func(dst, src unsafe.Pointer) { fn((*T)(dst), (*T)(src)) }
	}
}

// WithCtorCopy installs the copy-construct function used when a
// migration lands a value in a freshly allocated slot by duplicating
// its source rather than consuming it.
func WithCtorCopy[T any](fn func(dst, src *T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.CtorCopy = func(dst, src unsafe.Pointer) { fn((*T)(dst), (*T)(src)) }
	}
}

// WithDtor installs the destructor run when a row is removed.
func WithDtor[T any](fn func(*T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.Dtor = func(dst unsafe.Pointer) { fn((*T)(dst)) }
	}
}

// WithCopy installs the assignment used to duplicate an already-live
// value into another already-live slot (moveRow/swapRows/defrag).
func WithCopy[T any](fn func(dst, src *T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.Copy = func(dst, src unsafe.Pointer) { fn((*T)(dst), (*T)(src)) }
	}
}

// WithMove installs the assignment used to transfer an already-live
// value into another already-live slot, consuming the source.
func WithMove[T any](fn func(dst, src *T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.Move = func(dst, src unsafe.Pointer) { fn((*T)(dst), (*T)(src)) }
	}
}

// WithSwap installs an in-place exchange between two already-live
// slots, used by Chunk.swapRows instead of a byte-for-byte swap.
func WithSwap[T any](fn func(a, b *T)) RegisterOption[T] {
	return func(d *Descriptor) {
		d.Swap = func(a, b unsafe.Pointer) { fn((*T)(a), (*T)(b)) }
	}
}

// Register assigns a stable ComponentID to T within w (idempotent per
// World) and returns a typed Accessor for it. This is the Go stand-in
// for the compile-time reflection the spec assumes is available in
// the source language: registration happens once, at a call site the
// user controls, rather than through a derive macro. Options install
// non-trivial vtable entries for types that need more than a raw byte
// copy/move/compare — the optional ComponentEqual hook still covers Eq
// on its own (see comparableComponent).
func Register[T any](w *World, opts ...RegisterOption[T]) Accessor[T] {
	d := getOrCreate[T](w.descriptors)
	for _, opt := range opts {
		opt(d)
	}
	return Accessor[T]{desc: d}
}

// RegisterSoA registers T and records the given per-field byte sizes
// as its structure-of-arrays layout, in the Descriptor's
// SoAFieldSizes/SoAArity and in its ComponentID. fieldSizes is not
// checked against the Size of T, and chunk storage does not split T by
// field: every chunk still holds T's values as one contiguous array.
func RegisterSoA[T any](w *World, fieldSizes []uintptr, opts ...RegisterOption[T]) Accessor[T] {
	a := Register[T](w, opts...)
	if len(fieldSizes) == 0 {
		return a
	}
	if len(fieldSizes) > maxSoAFields {
		panic(bark.AddTrace(TooManyComponentsError{Attempted: len(fieldSizes)}))
	}
	d := a.desc
	d.SoAArity = uint8(len(fieldSizes))
	for i, sz := range fieldSizes {
		d.SoAFieldSizes[i] = sz
	}
	d.Component = makeComponentID(d.Component.ID(), d.SoAArity, d.Size, d.Align)
	return a
}
