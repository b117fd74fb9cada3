package gaia

import (
	"unsafe"

	"github.com/TheBitDrifter/mask"
)

// minChunkCapacity is the smallest per-chunk entity capacity the layout
// planner will accept before promoting to the larger size class.
const minChunkCapacity = 8

// chunkLayout is the byte plan every chunk of one archetype shares:
// where the entity array, the per-component version counters, and each
// component's data region sit inside one allocator block. Computed
// once when the archetype is created (see computeLayout) and reused
// for every chunk the archetype ever allocates.
type chunkLayout struct {
	capacity   int
	sizeClass  chunkSizeClass
	totalBytes uintptr

	entityOffset  uintptr
	versionOffset [numComponentKinds]uintptr
	dataOffset    [numComponentKinds][]uintptr
}

func alignUp(n, align uintptr) uintptr {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// layoutBytes computes the exact byte plan for a chunk holding
// `capacity` entities with the given generic (per-entity) and unique
// (per-chunk-constant) components.
func layoutBytes(capacity int, generic, unique []*Descriptor) (entityOffset uintptr, versionOffset [numComponentKinds]uintptr, dataOffset [numComponentKinds][]uintptr, total uintptr) {
	offset := uintptr(0)

	versionOffset[kindGeneric] = offset
	offset += uintptr(len(generic)) * 4
	versionOffset[kindUnique] = offset
	offset += uintptr(len(unique)) * 4

	offset = alignUp(offset, 8)
	entityOffset = offset
	offset += uintptr(capacity) * uintptr(unsafe.Sizeof(Entity(0)))

	dataOffset[kindGeneric] = make([]uintptr, len(generic))
	for i, d := range generic {
		if d.containsPointers {
			// Pointer-bearing components never land in this byte slab
			// (see Chunk.pointerColumns); the offset slot is left
			// unused so componentIndex-derived indices stay aligned
			// with descs, but no slab bytes are reserved for it.
			continue
		}
		offset = alignUp(offset, d.Align)
		dataOffset[kindGeneric][i] = offset
		offset += d.Size * uintptr(capacity)
	}

	dataOffset[kindUnique] = make([]uintptr, len(unique))
	for i, d := range unique {
		if d.containsPointers {
			continue
		}
		offset = alignUp(offset, d.Align)
		dataOffset[kindUnique][i] = offset
		offset += d.Size
	}

	total = offset
	return
}

// computeLayout picks the smallest size class (8 KiB, then 16 KiB) that
// can hold at least minChunkCapacity entities, then maximizes capacity
// within whichever class it lands on via binary search over the
// (monotonic) byte cost function.
func computeLayout(descsByKind [numComponentKinds][]*Descriptor) chunkLayout {
	generic := descsByKind[kindGeneric]
	unique := descsByKind[kindUnique]

	estimate := func(capacity int) uintptr {
		_, _, _, total := layoutBytes(capacity, generic, unique)
		return total
	}

	class := sizeClass8KiB
	budget := uintptr(blockBytes8KiB) - pointerSize
	capacity := fitCapacity(budget, estimate)
	if capacity < minChunkCapacity {
		class = sizeClass16KiB
		budget = uintptr(blockBytes16KiB) - pointerSize
		capacity = fitCapacity(budget, estimate)
	}
	if capacity < 1 {
		capacity = 1
	}

	entityOffset, versionOffset, dataOffset, total := layoutBytes(capacity, generic, unique)
	return chunkLayout{
		capacity:      capacity,
		sizeClass:     class,
		totalBytes:    total,
		entityOffset:  entityOffset,
		versionOffset: versionOffset,
		dataOffset:    dataOffset,
	}
}

// fitCapacity returns the largest capacity whose estimated byte cost
// stays within budget, via binary search (estimate is monotonic).
func fitCapacity(budget uintptr, estimate func(int) uintptr) int {
	if estimate(1) > budget {
		return 0
	}
	lo, hi := 1, 1
	for hi < 1<<24 && estimate(hi) <= budget {
		hi *= 2
	}
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if estimate(mid) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Archetype groups every entity sharing one exact component set. It
// owns a list of fixed-capacity Chunks and the graph edges used to
// reach a neighboring archetype by adding or removing one component.
type Archetype struct {
	world *World
	id    uint32

	componentsByKind [numComponentKinds][]*Descriptor
	signature        mask.Mask256
	matcherHash      uint64

	layout chunkLayout

	chunks []*Chunk

	addEdge map[uint32]*Archetype
	delEdge map[uint32]*Archetype

	// lifespanCountdown and dead track the archetype's own dying/dead
	// state once it has no chunks left (World.tickArchetypeLifespans),
	// distinct from each individual Chunk's own lifespanCountdown.
	lifespanCountdown int
	dead              bool
}

func newArchetype(w *World, id uint32, componentsByKind [numComponentKinds][]*Descriptor) *Archetype {
	a := &Archetype{
		world:            w,
		id:               id,
		componentsByKind: componentsByKind,
		addEdge:          make(map[uint32]*Archetype),
		delEdge:          make(map[uint32]*Archetype),
	}
	for _, d := range componentsByKind[kindGeneric] {
		a.signature.Mark(int(d.Component.ID()))
		a.matcherHash |= matcherBit(d.Component.ID())
	}
	for _, d := range componentsByKind[kindUnique] {
		a.signature.Mark(int(d.Component.ID()))
		a.matcherHash |= matcherBit(d.Component.ID())
	}
	a.layout = computeLayout(componentsByKind)
	return a
}

func (a *Archetype) componentIndex(id uint32) (componentKind, int, bool) {
	for i, d := range a.componentsByKind[kindGeneric] {
		if d.Component.ID() == id {
			return kindGeneric, i, true
		}
	}
	for i, d := range a.componentsByKind[kindUnique] {
		if d.Component.ID() == id {
			return kindUnique, i, true
		}
	}
	return 0, 0, false
}

func (a *Archetype) hasComponent(id uint32) bool {
	_, _, ok := a.componentIndex(id)
	return ok
}

func (a *Archetype) componentCount() int {
	return len(a.componentsByKind[kindGeneric]) + len(a.componentsByKind[kindUnique])
}

func (a *Archetype) empty() bool {
	for _, c := range a.chunks {
		if !c.empty() {
			return false
		}
	}
	return true
}

// getOrCreateFreeChunk returns a chunk with spare capacity, allocating
// a fresh one if every existing chunk is full.
func (a *Archetype) getOrCreateFreeChunk() *Chunk {
	for _, c := range a.chunks {
		if !c.full() {
			return c
		}
	}
	c := newChunk(a, len(a.chunks))
	a.chunks = append(a.chunks, c)
	return c
}

// tickChunkLifespans advances every empty chunk's lifespanCountdown by
// one tick and releases any that reaches zero. A chunk that goes empty
// and is then repopulated before its countdown expires is revived for
// free: getOrCreateFreeChunk already treats a non-full empty chunk as
// available, so once count rises above zero the countdown below is
// simply reset rather than counted down.
func (a *Archetype) tickChunkLifespans() {
	var dying []*Chunk
	for _, c := range a.chunks {
		if !c.empty() {
			c.lifespanCountdown = 0
			continue
		}
		if c.lifespanCountdown <= 0 {
			c.lifespanCountdown = Config.ChunkLifespan
		}
		c.lifespanCountdown--
		if c.lifespanCountdown <= 0 {
			dying = append(dying, c)
		}
	}
	for _, c := range dying {
		a.releaseEmptyChunk(c)
	}
}

// releaseEmptyChunk frees an archetype chunk that has gone fully empty
// and compacts the chunk slice, fixing up the index of whichever chunk
// was moved into its place.
func (a *Archetype) releaseEmptyChunk(c *Chunk) {
	last := len(a.chunks) - 1
	idx := c.index
	if idx != last {
		a.chunks[idx] = a.chunks[last]
		a.chunks[idx].index = idx
		for _, e := range a.chunks[idx].entitySlice()[:a.chunks[idx].count] {
			if rec := a.world.recordFor(e); rec != nil {
				rec.chunk = a.chunks[idx]
			}
		}
	}
	a.chunks = a.chunks[:last]
	c.free()
}

// addComponentTarget returns (creating if necessary) the neighboring
// archetype reached by adding component id, with desc supplying its
// Descriptor and kind when a new archetype must be built.
func (a *Archetype) addComponentTarget(id uint32, desc *Descriptor, kind componentKind) *Archetype {
	if target, ok := a.addEdge[id]; ok {
		if target.dead {
			a.world.reviveArchetype(target)
		}
		return target
	}
	if a.hasComponent(id) {
		a.addEdge[id] = a
		return a
	}
	next := cloneComponentSet(a.componentsByKind)
	next[kind] = appendSorted(next[kind], desc)
	target := a.world.internArchetype(next)
	a.addEdge[id] = target
	target.delEdge[id] = a
	return target
}

// delComponentTarget returns (creating if necessary) the neighboring
// archetype reached by removing component id.
func (a *Archetype) delComponentTarget(id uint32) *Archetype {
	if target, ok := a.delEdge[id]; ok {
		if target.dead {
			a.world.reviveArchetype(target)
		}
		return target
	}
	kind, idx, ok := a.componentIndex(id)
	if !ok {
		a.delEdge[id] = a
		return a
	}
	next := cloneComponentSet(a.componentsByKind)
	next[kind] = removeAt(next[kind], idx)
	target := a.world.internArchetype(next)
	a.delEdge[id] = target
	target.addEdge[id] = a
	return target
}

func cloneComponentSet(src [numComponentKinds][]*Descriptor) [numComponentKinds][]*Descriptor {
	var dst [numComponentKinds][]*Descriptor
	for k := range src {
		dst[k] = append([]*Descriptor(nil), src[k]...)
	}
	return dst
}

func appendSorted(descs []*Descriptor, d *Descriptor) []*Descriptor {
	out := append(append([]*Descriptor(nil), descs...), d)
	for i := len(out) - 1; i > 0 && out[i].Component.ID() < out[i-1].Component.ID(); i-- {
		out[i], out[i-1] = out[i-1], out[i]
	}
	return out
}

func removeAt(descs []*Descriptor, idx int) []*Descriptor {
	out := make([]*Descriptor, 0, len(descs)-1)
	out = append(out, descs[:idx]...)
	out = append(out, descs[idx+1:]...)
	return out
}

// migrateEntity moves one row from a to dst, preferring move semantics
// for components both archetypes share, default-constructing any
// component dst adds, and letting any component only a carried get
// destructed along with the vacated source row. It returns the new
// chunk/slot for the caller to update the entity record with.
func migrateEntity(src *Archetype, srcChunk *Chunk, srcSlot int, dst *Archetype) (*Chunk, int) {
	e := srcChunk.entitySlice()[srcSlot]
	dstChunk := dst.getOrCreateFreeChunk()
	dstSlot := dstChunk.count
	dstChunk.entitySlice()[dstSlot] = e

	for i, d := range dst.componentsByKind[kindGeneric] {
		dstPtr := dstChunk.rowPtr(kindGeneric, i, dstSlot)
		if _, srcIdx, ok := src.componentIndex(d.Component.ID()); ok {
			srcPtr := srcChunk.rowPtr(kindGeneric, srcIdx, srcSlot)
			d.constructFrom(dstPtr, srcPtr)
		} else {
			d.construct(dstPtr)
		}
	}
	// Unique components are chunk-wide constants: newChunk already
	// default-constructed every unique value this archetype carries
	// when dstChunk was first allocated, so there is nothing to copy
	// per-entity here.

	dstChunk.count++
	dstChunk.countEnabled = dstChunk.count - dstChunk.firstEnabledIndex
	for i := range dst.componentsByKind[kindGeneric] {
		dstChunk.bumpVersion(kindGeneric, i)
	}

	if moved := srcChunk.removeEntity(srcSlot); moved != BadEntity {
		if rec := src.world.recordFor(moved); rec != nil {
			rec.idx = uint32(srcSlot)
		}
	}
	return dstChunk, dstSlot
}

// uniqueValuesEqual reports whether x and y carry equal values for
// every unique (per-chunk-constant) component of a, using each
// descriptor's Eq hook when present and a raw byte compare otherwise.
// Two chunks whose unique values differ must never be merged by
// defrag — doing so would silently overwrite one chunk's chunk-wide
// constant with the other's.
func (a *Archetype) uniqueValuesEqual(x, y *Chunk) bool {
	for i, d := range a.componentsByKind[kindUnique] {
		px := x.rowPtr(kindUnique, i, 0)
		py := y.rowPtr(kindUnique, i, 0)
		if d.Eq != nil {
			if !d.Eq(px, py) {
				return false
			}
			continue
		}
		if !bytesEqual(px, py, d.Size) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b unsafe.Pointer, size uintptr) bool {
	if size == 0 {
		return true
	}
	as := unsafe.Slice((*byte)(a), int(size))
	bs := unsafe.Slice((*byte)(b), int(size))
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// defrag compacts every chunk below full occupancy toward the front of
// the archetype's chunk list, moving trailing entities into gaps left
// by deletions, then releases any chunk that ends up fully empty.
// Entities only move from a chunk behind the destination chunk, and only
// enabled rows move; disabled rows stay in their chunk.
// Chunks whose unique component values differ are never merged into
// each other (see uniqueValuesEqual).
func (a *Archetype) defrag(budget int) int {
	moved := 0
	for moved < budget {
		var dstChunk *Chunk
		var dstSlot int = -1
		for _, c := range a.chunks {
			if !c.full() {
				dstChunk, dstSlot = c, c.count
				break
			}
		}
		if dstChunk == nil {
			break
		}

		var srcChunk *Chunk
		for i := len(a.chunks) - 1; i > dstChunk.index; i-- {
			cand := a.chunks[i]
			if cand == dstChunk || cand.countEnabled == 0 {
				continue
			}
			if !a.uniqueValuesEqual(dstChunk, cand) {
				continue
			}
			srcChunk = cand
			break
		}
		if srcChunk == nil {
			break
		}

		srcSlot := srcChunk.count - 1
		e := srcChunk.entitySlice()[srcSlot]
		dstChunk.entitySlice()[dstSlot] = e
		for i, d := range a.componentsByKind[kindGeneric] {
			d.moveOrCopy(dstChunk.rowPtr(kindGeneric, i, dstSlot), srcChunk.rowPtr(kindGeneric, i, srcSlot))
		}
		dstChunk.count++
		dstChunk.countEnabled = dstChunk.count - dstChunk.firstEnabledIndex
		srcChunk.destructRow(srcSlot)
		srcChunk.count--
		srcChunk.countEnabled = srcChunk.count - srcChunk.firstEnabledIndex

		if rec := a.world.recordFor(e); rec != nil {
			rec.chunk = dstChunk
			rec.idx = uint32(dstSlot)
		}
		if srcChunk.empty() {
			a.releaseEmptyChunk(srcChunk)
		}
		moved++
	}
	return moved
}
