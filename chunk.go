package gaia

import (
	"reflect"
	"unsafe"

	"github.com/TheBitDrifter/bark"
)

const maxChunkLock = 7

// Chunk is a fixed-capacity, columnar block of memory holding entities
// that all share one archetype's component set. Its backing bytes come
// from a single ChunkAllocator.Alloc call; per-component sub-arrays are
// addressed through offsets the owning Archetype computed once at
// layout time (archetype.go).
//
// Entities with slot indices [0, firstEnabledIndex) are disabled;
// [firstEnabledIndex, count) are enabled. countEnabled always equals
// count-firstEnabledIndex; it is kept as an explicit field (rather than
// derived on every read) to mirror the header layout spec.md describes.
type Chunk struct {
	archetype *Archetype
	index     int

	data unsafe.Pointer

	// pointerColumns/pointerBacking back any component kind/index whose
	// Descriptor.containsPointers is true: layoutBytes leaves no slab
	// offset for those, so their storage instead lives in a GC-visible
	// reflect.New(reflect.ArrayOf(n, T)) allocation the garbage
	// collector can trace through, keeping referents (strings, slices,
	// maps, pointers) alive for as long as the chunk itself is.
	pointerColumns [numComponentKinds][]unsafe.Pointer
	pointerBacking [numComponentKinds][]reflect.Value

	capacity          int
	count             int
	countEnabled      int
	firstEnabledIndex int

	lifespanCountdown int
	dead              bool
	lockCount         int
	sizeClass         chunkSizeClass
}

func newChunk(a *Archetype, index int) *Chunk {
	ptr := a.world.allocator.Alloc(a.layout.totalBytes)
	c := &Chunk{
		archetype: a,
		index:     index,
		data:      ptr,
		capacity:  a.layout.capacity,
		sizeClass: a.layout.sizeClass,
	}
	c.initPointerColumns()
	c.callCtors(kindUnique, 0, 1)
	return c
}

// initPointerColumns allocates the GC-visible backing array for every
// pointer-bearing component this chunk's archetype carries. Generic
// columns are sized to capacity (one slot per entity row); unique
// columns hold exactly one chunk-wide value, mirroring the byte-slab
// unique layout in layoutBytes.
func (c *Chunk) initPointerColumns() {
	for kind, descs := range c.archetype.componentsByKind {
		n := 0
		for _, d := range descs {
			if d.containsPointers {
				n++
			}
		}
		if n == 0 {
			continue
		}
		c.pointerColumns[kind] = make([]unsafe.Pointer, len(descs))
		c.pointerBacking[kind] = make([]reflect.Value, len(descs))
		rows := c.capacity
		if componentKind(kind) == kindUnique {
			rows = 1
		}
		for i, d := range descs {
			if !d.containsPointers {
				continue
			}
			backing := reflect.New(reflect.ArrayOf(rows, d.goType))
			c.pointerBacking[kind][i] = backing
			c.pointerColumns[kind][i] = backing.UnsafePointer()
		}
	}
}

func (c *Chunk) free() {
	c.callDtors(kindUnique, 0, 1)
	c.archetype.world.allocator.Free(c.data)
	c.dead = true
}

func (c *Chunk) full() bool  { return c.count >= c.capacity }
func (c *Chunk) empty() bool { return c.count == 0 }

// lock/unlock bracket iteration. Re-entrant up to maxChunkLock levels;
// while any lock is held, structural mutation through this chunk is
// forbidden.
func (c *Chunk) lock() {
	if c.lockCount >= maxChunkLock {
		panic(bark.AddTrace(ChunkLockedError{}))
	}
	c.lockCount++
}

func (c *Chunk) unlock() {
	if c.lockCount > 0 {
		c.lockCount--
	}
}

func (c *Chunk) locked() bool { return c.lockCount > 0 }

func (c *Chunk) requireUnlocked() {
	if c.locked() {
		panic(bark.AddTrace(ChunkLockedError{}))
	}
}

// entitySlice returns the chunk's full entity array, indices
// [0, capacity).
func (c *Chunk) entitySlice() []Entity {
	base := unsafe.Add(c.data, c.archetype.layout.entityOffset)
	return unsafe.Slice((*Entity)(base), c.capacity)
}

func (c *Chunk) componentData(kind componentKind, compIdx int) unsafe.Pointer {
	if c.archetype.componentsByKind[kind][compIdx].containsPointers {
		return c.pointerColumns[kind][compIdx]
	}
	return unsafe.Add(c.data, c.archetype.layout.dataOffset[kind][compIdx])
}

// rowPtr returns the address of one component's value for one slot.
// Unique components ignore slot — they store exactly one chunk-wide
// value, per the generic/unique distinction in the data model.
func (c *Chunk) rowPtr(kind componentKind, compIdx, slot int) unsafe.Pointer {
	base := c.componentData(kind, compIdx)
	if kind == kindUnique {
		return base
	}
	d := c.archetype.componentsByKind[kind][compIdx]
	return unsafe.Add(base, uintptr(slot)*d.Size)
}

func (c *Chunk) versionPtr(kind componentKind, compIdx int) *uint32 {
	base := unsafe.Add(c.data, c.archetype.layout.versionOffset[kind])
	return (*uint32)(unsafe.Add(base, uintptr(compIdx)*unsafe.Sizeof(uint32(0))))
}

// componentVersion looks up the version counter for a component id
// present in this chunk's archetype; used by the change-detection
// filter. Returns 0 if the component is absent, which never passes the
// ChangedSince filter (it requires a version above the query's
// watermark).
func (c *Chunk) componentVersion(id uint32) uint32 {
	kind, idx, ok := c.archetype.componentIndex(id)
	if !ok {
		return 0
	}
	return *c.versionPtr(kind, idx)
}

func (c *Chunk) bumpVersion(kind componentKind, compIdx int) {
	p := c.versionPtr(kind, compIdx)
	c.archetype.world.version++
	*p = c.archetype.world.version
}

// callCtors/callDtors invoke the descriptor constructor/destructor
// over [start, start+n) slots of one kind. No-ops for descriptors with
// a nil function pointer (trivial types get a zero-fill instead).
func (c *Chunk) callCtors(kind componentKind, start, n int) {
	descs := c.archetype.componentsByKind[kind]
	for i, d := range descs {
		for s := start; s < start+n; s++ {
			d.construct(c.rowPtr(kind, i, s))
		}
	}
}

func (c *Chunk) callDtors(kind componentKind, start, n int) {
	descs := c.archetype.componentsByKind[kind]
	for i, d := range descs {
		for s := start; s < start+n; s++ {
			d.destruct(c.rowPtr(kind, i, s))
		}
	}
}

// addEntity appends e at slot count, default-constructs its generic
// component row, and bumps the world version plus every component's
// version. Pre: count < capacity, chunk unlocked.
func (c *Chunk) addEntity(e Entity) int {
	c.requireUnlocked()
	slot := c.count
	c.entitySlice()[slot] = e
	c.callCtors(kindGeneric, slot, 1)
	c.count++
	c.countEnabled = c.count - c.firstEnabledIndex
	for i := range c.archetype.componentsByKind[kindGeneric] {
		c.bumpVersion(kindGeneric, i)
	}
	return slot
}

// removeEntity removes the entity at slot via swap-with-last within
// its enabled/disabled region, destructing the vacated row. It returns
// the entity that ended up at slot after the swap (BadEntity if slot
// was already the tail of its region) so the caller can fix up that
// entity's record. When slot is disabled and enabled rows follow, the
// last enabled row also moves into the freed boundary slot; removeEntity
// updates that entity's record itself.
func (c *Chunk) removeEntity(slot int) Entity {
	c.requireUnlocked()
	var moved Entity
	ents := c.entitySlice()

	if slot < c.firstEnabledIndex {
		boundary := c.firstEnabledIndex - 1
		if slot != boundary {
			c.moveRow(slot, boundary)
			moved = ents[slot]
		}
		last := c.count - 1
		if boundary != last {
			c.moveRow(boundary, last)
			if rec := c.archetype.world.recordFor(ents[boundary]); rec != nil {
				rec.idx = uint32(boundary)
			}
		}
		c.destructRow(last)
		c.firstEnabledIndex--
		c.count--
	} else {
		last := c.count - 1
		if slot != last {
			c.moveRow(slot, last)
			moved = ents[slot]
		}
		c.destructRow(last)
		c.count--
	}
	c.countEnabled = c.count - c.firstEnabledIndex
	return moved
}

func (c *Chunk) destructRow(slot int) {
	c.callDtors(kindGeneric, slot, 1)
}

// moveRow move/copy-assigns every generic component's data (and
// the entity handle) from src to dst, preferring each descriptor's
// move function so resources are transferred rather than duplicated.
func (c *Chunk) moveRow(dst, src int) {
	ents := c.entitySlice()
	ents[dst] = ents[src]
	descs := c.archetype.componentsByKind[kindGeneric]
	for i, d := range descs {
		d.moveOrCopy(c.rowPtr(kindGeneric, i, dst), c.rowPtr(kindGeneric, i, src))
	}
}

// enable moves the entity at slot across the enabled/disabled
// boundary, swapping it with whichever entity currently sits at the
// boundary. It returns the slot the entity now occupies and the
// entity that was swapped into slot's old position (BadEntity if no
// swap was needed), so the World can fix up both records.
func (c *Chunk) enable(slot int, enabled bool) (newSlot int, swapped Entity) {
	c.requireUnlocked()
	if enabled {
		if slot >= c.firstEnabledIndex {
			return slot, BadEntity
		}
		boundary := c.firstEnabledIndex - 1
		swapped = c.swapRows(boundary, slot)
		c.firstEnabledIndex--
		c.countEnabled = c.count - c.firstEnabledIndex
		return boundary, swapped
	}
	if slot < c.firstEnabledIndex {
		return slot, BadEntity
	}
	boundary := c.firstEnabledIndex
	swapped = c.swapRows(boundary, slot)
	c.firstEnabledIndex++
	c.countEnabled = c.count - c.firstEnabledIndex
	return boundary, swapped
}

// swapRows exchanges the entity handles and component data at a and b.
// Returns the entity that ended up at b (BadEntity if a == b).
func (c *Chunk) swapRows(a, b int) Entity {
	if a == b {
		return BadEntity
	}
	ents := c.entitySlice()
	ents[a], ents[b] = ents[b], ents[a]
	descs := c.archetype.componentsByKind[kindGeneric]
	for i, d := range descs {
		pa := c.rowPtr(kindGeneric, i, a)
		pb := c.rowPtr(kindGeneric, i, b)
		if d.Swap != nil {
			d.Swap(pa, pb)
		} else {
			swapBytes(pa, pb, d.Size)
		}
	}
	return ents[b]
}

func swapBytes(a, b unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	as := unsafe.Slice((*byte)(a), int(size))
	bs := unsafe.Slice((*byte)(b), int(size))
	var tmp [256]byte
	buf := tmp[:size]
	copy(buf, as)
	copy(as, bs)
	copy(bs, buf)
}

// viewMut returns the chunk-local slice for a generic component, sized
// to the chunk's current live rows [0, count), bumping the
// component's version counter. Panics if the component isn't present
// on this chunk's archetype.
func viewMut[T any](c *Chunk, d *Descriptor) []T {
	kind, idx, ok := c.archetype.componentIndex(d.Component.ID())
	if !ok {
		panic(bark.AddTrace(ComponentNotFoundError{Component: d.Component}))
	}
	c.bumpVersion(kind, idx)
	ptr := c.componentData(kind, idx)
	return unsafe.Slice((*T)(ptr), c.capacity)[:c.count]
}

// viewReadOnly is viewMut without the version bump.
func viewReadOnly[T any](c *Chunk, d *Descriptor) []T {
	kind, idx, ok := c.archetype.componentIndex(d.Component.ID())
	if !ok {
		panic(bark.AddTrace(ComponentNotFoundError{Component: d.Component}))
	}
	ptr := c.componentData(kind, idx)
	return unsafe.Slice((*T)(ptr), c.capacity)[:c.count]
}

// viewSilent is the "sview_mut" access path: a writable slice that
// does NOT bump the version counter. Nothing in the package calls it;
// World offers no silent setter.
func viewSilent[T any](c *Chunk, d *Descriptor) []T {
	return viewReadOnly[T](c, d)
}
