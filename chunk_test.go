package gaia

import "testing"

func newTestArchetype(t *testing.T, w *World, types ...any) *Archetype {
	t.Helper()
	var generic []*Descriptor
	for _, tt := range types {
		generic = append(generic, tt.(AnyAccessor).descriptor())
	}
	return w.internArchetype([numComponentKinds][]*Descriptor{kindGeneric: generic})
}

func TestChunkAddRemovePreservesPartitionInvariant(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	a := newTestArchetype(t, w, position)
	c := a.getOrCreateFreeChunk()

	var ents []Entity
	for i := 0; i < 10; i++ {
		e := newEntity(uint32(i+1), 0)
		c.addEntity(e)
		ents = append(ents, e)
	}

	for _, e := range ents[:4] {
		slot := -1
		for i, got := range c.entitySlice()[:c.count] {
			if got == e {
				slot = i
				break
			}
		}
		if slot < 0 {
			t.Fatalf("entity %v not found before disabling", e)
		}
		c.enable(slot, false)
	}

	if c.countEnabled != c.count-c.firstEnabledIndex {
		t.Fatalf("countEnabled=%d inconsistent with count=%d firstEnabledIndex=%d", c.countEnabled, c.count, c.firstEnabledIndex)
	}
	if c.countEnabled != 6 {
		t.Fatalf("expected 6 enabled rows, got %d", c.countEnabled)
	}
	if c.firstEnabledIndex != 4 {
		t.Fatalf("expected firstEnabledIndex 4, got %d", c.firstEnabledIndex)
	}
}

func TestChunkRemoveEntityFromDisabledRegion(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	a := newTestArchetype(t, w, position)
	c := a.getOrCreateFreeChunk()

	e0 := newEntity(1, 0)
	e1 := newEntity(2, 0)
	e2 := newEntity(3, 0)
	c.addEntity(e0)
	c.addEntity(e1)
	c.addEntity(e2)
	c.enable(0, false)
	c.enable(1, false)

	moved := c.removeEntity(0)
	if c.count != 2 {
		t.Fatalf("expected count 2 after removal, got %d", c.count)
	}
	if c.firstEnabledIndex != 1 {
		t.Fatalf("expected firstEnabledIndex 1, got %d", c.firstEnabledIndex)
	}
	if moved == BadEntity {
		t.Fatalf("expected a moved entity to fill the gap")
	}
}

func TestChunkLockReentrancyLimit(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	a := newTestArchetype(t, w, position)
	c := a.getOrCreateFreeChunk()

	for i := 0; i < maxChunkLock; i++ {
		c.lock()
	}
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic on exceeding max chunk lock depth")
		}
	}()
	c.lock()
}

func TestChunkMutationWhileLockedPanics(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	a := newTestArchetype(t, w, position)
	c := a.getOrCreateFreeChunk()
	c.addEntity(newEntity(1, 0))

	c.lock()
	defer func() {
		c.unlock()
		if r := recover(); r == nil {
			t.Fatalf("expected panic mutating a locked chunk")
		}
	}()
	c.removeEntity(0)
}

func TestComputeLayoutRegionsDoNotOverlap(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	velocity := Register[testVelocity](w)

	layout := computeLayout([numComponentKinds][]*Descriptor{
		kindGeneric: {position.desc, velocity.desc},
	})

	type span struct{ start, end uintptr }
	var spans []span
	spans = append(spans, span{layout.versionOffset[kindGeneric], layout.versionOffset[kindGeneric] + uintptr(2)*4})
	spans = append(spans, span{layout.entityOffset, layout.entityOffset + uintptr(layout.capacity)*8})
	for i, d := range []*Descriptor{position.desc, velocity.desc} {
		off := layout.dataOffset[kindGeneric][i]
		spans = append(spans, span{off, off + d.Size*uintptr(layout.capacity)})
	}

	for i := range spans {
		for j := range spans {
			if i == j {
				continue
			}
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				t.Fatalf("overlapping layout regions %d and %d: %+v %+v", i, j, spans[i], spans[j])
			}
		}
	}
	if layout.totalBytes > uintptr(layout.sizeClass.blockBytes())-pointerSize {
		t.Fatalf("layout totalBytes %d exceeds budget for size class", layout.totalBytes)
	}
}
