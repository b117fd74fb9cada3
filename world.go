package gaia

import (
	"fmt"

	"github.com/TheBitDrifter/bark"
)

const maxEntityNames = 1 << 20

// World owns one process's worth of entities, archetypes, chunks, and
// queries. Worlds are never implicitly synchronized with each other or
// internally: every exported method must be called from one goroutine
// at a time, the same "externally synchronized" contract the component
// descriptor cache's design notes call for.
type World struct {
	descriptors *descriptorCache
	allocator   *ChunkAllocator

	archetypes      []*Archetype
	archetypesBySig map[uint64][]*Archetype
	root            *Archetype

	entities  []entityRecord
	freeHead  uint32
	liveCount int

	names *SimpleCache[Entity]

	queries []*compiledQuery

	cmdBuffer *CommandBuffer

	version uint32
	ticks   uint64
}

// NewWorld creates an empty World: one root archetype (the empty
// component set every entity starts in before Add[T] grows it), its
// own component descriptor cache, and its own chunk allocator.
func NewWorld() *World {
	w := &World{
		descriptors:     newDescriptorCache(),
		allocator:       NewChunkAllocator(),
		entities:        make([]entityRecord, 1),
		names:           newSimpleCache[Entity](maxEntityNames),
		archetypesBySig: make(map[uint64][]*Archetype),
	}
	w.root = w.internArchetype([numComponentKinds][]*Descriptor{})
	w.cmdBuffer = newCommandBuffer(w)
	return w
}

// Commands returns the World's deferred command buffer, used to queue
// structural mutations from inside a query's Each callback (where
// direct mutation is forbidden while the chunk is locked).
func (w *World) Commands() *CommandBuffer {
	return w.cmdBuffer
}

func (w *World) recordFor(e Entity) *entityRecord {
	id := e.ID()
	if int(id) >= len(w.entities) {
		return nil
	}
	rec := &w.entities[id]
	if !rec.live() || rec.gen != e.Gen() {
		return nil
	}
	return rec
}

// mustLive resolves e to its entityRecord or panics via bark.AddTrace
// if e is stale or was never valid — the invariant every accessor
// (Get/Set/Add/Del) depends on.
func (w *World) mustLive(e Entity) *entityRecord {
	rec := w.recordFor(e)
	if rec == nil {
		panic(bark.AddTrace(InvalidEntityError{Entity: e}))
	}
	return rec
}

// Valid reports whether e currently addresses a live entity.
func (w *World) Valid(e Entity) bool {
	return w.recordFor(e) != nil
}

// NewEntity creates an entity in the root (empty component set)
// archetype and returns its handle.
func (w *World) NewEntity() Entity {
	return w.allocEntityInto(w.root)
}

// AddEntityFrom creates an entity directly in the archetype carrying
// every one of the given component types, default-constructing each,
// and returns its handle. Registering the same type twice is a no-op
// (archetypeForIDs walks the same add-edge either way).
func AddEntityFrom(w *World, types ...AnyAccessor) Entity {
	descs := make([]*Descriptor, len(types))
	kinds := make([]componentKind, len(types))
	for i, t := range types {
		descs[i] = t.descriptor()
		kinds[i] = kindGeneric
	}
	target := w.archetypeForIDs(descs, kinds)
	return w.allocEntityInto(target)
}

func (w *World) allocEntityInto(target *Archetype) Entity {
	id, gen := w.acquireSlot()
	e := newEntity(id, gen)

	chunk := target.getOrCreateFreeChunk()
	slot := chunk.addEntity(e)

	rec := &w.entities[id]
	rec.gen = gen
	rec.archetype = target
	rec.chunk = chunk
	rec.idx = uint32(slot)
	rec.disabled = false
	return e
}

func (w *World) acquireSlot() (id, gen uint32) {
	if w.freeHead != 0 {
		id = w.freeHead
		rec := &w.entities[id]
		w.freeHead = rec.idx
		gen = rec.gen
		w.liveCount++
		return id, gen
	}
	id = uint32(len(w.entities))
	w.entities = append(w.entities, entityRecord{})
	w.liveCount++
	return id, 0
}

// Del destroys e and pushes its slot onto the world's entity free list
// with a bumped generation so stale handles are rejected. Its chunk row
// is vacated immediately but the chunk itself is only handed back to
// the allocator once World.Update finds it still empty past
// Config.ChunkLifespan ticks.
func (w *World) Del(e Entity) {
	rec := w.mustLive(e)
	if rec.name != nil {
		rec.name = nil
	}

	moved := rec.chunk.removeEntity(int(rec.idx))
	if moved != BadEntity {
		if mrec := w.recordFor(moved); mrec != nil {
			mrec.idx = rec.idx
		}
	}
	// A chunk that just went empty is not freed immediately — it sits
	// with lifespanCountdown at 0 until World.Update's sweep either
	// revives it (something migrates back in before the countdown
	// starts) or starts and exhausts its Config.ChunkLifespan.

	id := e.ID()
	w.entities[id] = entityRecord{idx: w.freeHead, gen: rec.gen + 1}
	w.freeHead = id
	w.liveCount--
	w.version++
}

// Enable toggles an entity between the enabled and disabled iteration
// partitions of its chunk without any structural (archetype) change.
func (w *World) Enable(e Entity, enabled bool) {
	rec := w.mustLive(e)
	if rec.disabled == !enabled {
		return
	}
	newSlot, swapped := rec.chunk.enable(int(rec.idx), enabled)
	if swapped != BadEntity {
		if srec := w.recordFor(swapped); srec != nil {
			srec.idx = rec.idx
		}
	}
	rec.idx = uint32(newSlot)
	rec.disabled = !enabled
}

// Name assigns e a unique name, returning NameInUseError if the name
// is already taken by a different live entity.
func (w *World) Name(e Entity, name string) error {
	rec := w.mustLive(e)
	if idx, ok := w.names.GetIndex(name); ok {
		if existing := w.names.GetItem(idx); *existing != e && w.Valid(*existing) {
			return NameInUseError{Name: name}
		}
	}
	if _, err := w.names.Register(name, e); err != nil {
		return fmt.Errorf("gaia: naming entity: %w", err)
	}
	rec.name = &name
	return nil
}

// NameRaw returns the name previously assigned to e, or "" if none.
func (w *World) NameRaw(e Entity) string {
	rec := w.mustLive(e)
	if rec.name == nil {
		return ""
	}
	return *rec.name
}

// EntityByName resolves a name registered via Name back to its entity.
func (w *World) EntityByName(name string) (Entity, bool) {
	idx, ok := w.names.GetIndex(name)
	if !ok {
		return BadEntity, false
	}
	return *w.names.GetItem(idx), true
}

// add performs the add-edge archetype transition for component d,
// migrating e's row and returning e's updated entity record so the
// caller can locate the new value's slot in the destination chunk.
func (w *World) add(e Entity, d *Descriptor, kind componentKind) *entityRecord {
	rec := w.mustLive(e)
	if rec.archetype.hasComponent(d.Component.ID()) {
		panic(bark.AddTrace(ComponentExistsError{Entity: e, Component: d.Component}))
	}
	if rec.archetype.componentCount() >= MaxComponentsPerChunk {
		panic(bark.AddTrace(TooManyComponentsError{Attempted: rec.archetype.componentCount() + 1}))
	}
	target := rec.archetype.addComponentTarget(d.Component.ID(), d, kind)
	newChunk, newSlot := migrateEntity(rec.archetype, rec.chunk, int(rec.idx), target)
	rec.archetype = target
	rec.chunk = newChunk
	rec.idx = uint32(newSlot)
	w.version++
	return rec
}

// remove performs the del-edge archetype transition for component id.
func (w *World) remove(e Entity, id uint32) {
	rec := w.mustLive(e)
	if !rec.archetype.hasComponent(id) {
		panic(bark.AddTrace(ComponentNotFoundError{Entity: e, Component: ComponentID(uint64(id))}))
	}
	target := rec.archetype.delComponentTarget(id)
	newChunk, newSlot := migrateEntity(rec.archetype, rec.chunk, int(rec.idx), target)
	rec.archetype = target
	rec.chunk = newChunk
	rec.idx = uint32(newSlot)
	w.version++
}

// Add registers T if needed, adds it (default-constructed) to e, and
// returns a pointer to the new value for the caller to initialize.
func Add[T any](w *World, e Entity) *T {
	a := Register[T](w)
	rec := w.add(e, a.desc, kindGeneric)
	slice := viewMut[T](rec.chunk, a.desc)
	return &slice[rec.idx]
}

// Set is Add followed by an assignment, mirroring the common
// "add-and-initialize" call pattern.
func Set[T any](w *World, e Entity, value T) *T {
	p := Add[T](w, e)
	*p = value
	return p
}

// RemoveComponent removes T from e. Use the package-level function
// form (rather than a method on Accessor) so callers that never
// registered T directly (e.g. a command buffer replaying a logged
// opcode by id) can still remove it.
func RemoveComponent[T any](w *World, e Entity) {
	a := Register[T](w)
	w.remove(e, a.desc.Component.ID())
}

// Get is a convenience wrapper around Register(w).Get(w, e).
func Get[T any](w *World, e Entity) *T {
	return Register[T](w).Get(w, e)
}

// Has reports whether e currently carries component T.
func Has[T any](w *World, e Entity) bool {
	a := Register[T](w)
	rec := w.mustLive(e)
	return rec.archetype.hasComponent(a.desc.Component.ID())
}

// Update advances the world by one tick: it compacts each archetype's
// chunks toward full occupancy (bounded by Config.DefragBudget) and
// releases chunks/archetypes that have stayed empty past their
// configured lifespan.
func (w *World) Update() {
	Config.zoneEvents.begin("World.Update")
	defer Config.zoneEvents.end("World.Update")

	w.ticks++
	for _, a := range w.archetypes {
		a.tickChunkLifespans()
		if a == w.root || len(a.chunks) == 0 {
			continue
		}
		a.defrag(Config.DefragBudget)
	}
	w.tickArchetypeLifespans()
}

// Query starts building a new query over this world's archetypes.
func (w *World) Query() *QueryBuilder {
	return &QueryBuilder{world: w}
}

// WorldStats summarizes live counts for diagnostics and tests.
type WorldStats struct {
	LiveEntities    int
	ArchetypeCount  int
	ChunkCount      int
	Allocator8KiB   AllocatorStats
	Allocator16KiB  AllocatorStats
}

// Stats reports a snapshot of the world's entity/archetype/chunk/
// allocator occupancy.
func (w *World) Stats() WorldStats {
	s := WorldStats{
		LiveEntities:   w.liveCount,
		ArchetypeCount: len(w.archetypes),
		Allocator8KiB:  w.allocator.Stats(sizeClass8KiB),
		Allocator16KiB: w.allocator.Stats(sizeClass16KiB),
	}
	for _, a := range w.archetypes {
		s.ChunkCount += len(a.chunks)
	}
	return s
}

func (w *World) notifyNewArchetype(a *Archetype) {
	for _, q := range w.queries {
		q.considerArchetype(a)
	}
}
