package gaia

import "testing"

func TestCommandBufferDeleteAndEnable(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()
	Set(w, e, testPosition{X: 1})

	cb := w.Commands()
	cb.EnableEntity(e, false)
	cb.Commit()

	rec := w.mustLive(e)
	if !rec.disabled {
		t.Fatalf("expected entity disabled after buffered EnableEntity")
	}

	cb.DeleteEntity(e)
	cb.Commit()
	if w.Valid(e) {
		t.Fatalf("expected entity invalid after buffered DeleteEntity")
	}
}

func TestCommandBufferSkipsOpsForDeletedTarget(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()
	Set(w, e, testPosition{X: 1})

	cb := w.Commands()
	cb.DeleteEntity(e)
	BufferSetComponent(cb, e, testPosition{X: 99})

	if cb.Pending() != 2 {
		t.Fatalf("expected 2 pending ops, got %d", cb.Pending())
	}
	cb.Commit()

	if w.Valid(e) {
		t.Fatalf("expected entity deleted")
	}
	if cb.Pending() != 0 {
		t.Fatalf("expected buffer drained after Commit, got %d pending", cb.Pending())
	}
}

func TestCommandBufferTempEntityAddThenRemoveLeavesNoRows(t *testing.T) {
	w := NewWorld()
	cb := w.Commands()

	t1 := cb.CreateEntity()
	BufferAddComponent(cb, t1, testPosition{X: 1})
	BufferRemoveComponent[testPosition](cb, t1)

	cb.Commit()

	count := 0
	w.Query().All(Register[testPosition](w)).Build().Each(func(it *Iterator) {
		count += it.Len()
	})
	if count != 0 {
		t.Fatalf("expected the removed component to leave no matching rows, got %d", count)
	}
}

func TestCommandBufferMultipleTempEntitiesResolveIndependently(t *testing.T) {
	w := NewWorld()
	cb := w.Commands()

	a := cb.CreateEntity()
	b := cb.CreateEntity()
	BufferAddComponent(cb, a, testPosition{X: 1})
	BufferAddComponent(cb, b, testPosition{X: 2})
	cb.Commit()

	seen := 0
	w.Query().All(Register[testPosition](w)).Build().Each(func(it *Iterator) {
		seen += it.Len()
	})
	if seen != 2 {
		t.Fatalf("expected 2 spawned entities with position, got %d", seen)
	}
}
