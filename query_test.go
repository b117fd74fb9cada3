package gaia

import "testing"

func TestChangedFilterOnlyVisitsTouchedChunks(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)

	e := w.NewEntity()
	Set(w, e, testPosition{X: 1})

	changed := w.Query().All(position).Changed(position).Build()

	// The Set above already bumped the version; first run should see it.
	if got := changed.Count(); got != 1 {
		t.Fatalf("expected 1 changed row on first run, got %d", got)
	}
	changed.Each(func(it *Iterator) {})

	if got := changed.Count(); got != 0 {
		t.Fatalf("expected 0 changed rows once caught up, got %d", got)
	}

	*Get[testPosition](w, e) = testPosition{X: 2}
	if got := changed.Count(); got != 1 {
		t.Fatalf("expected 1 changed row after a write, got %d", got)
	}
}

func TestQueryCountMatchesEachVisitCount(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	for i := 0; i < 7; i++ {
		Set(w, w.NewEntity(), testPosition{X: float64(i)})
	}

	q := w.Query().All(position).Build()
	visited := 0
	q.Each(func(it *Iterator) { visited += it.Len() })

	if visited != q.Count() {
		t.Fatalf("Each visited %d rows but Count reports %d", visited, q.Count())
	}
	if visited != 7 {
		t.Fatalf("expected 7 rows, got %d", visited)
	}
}

func TestDisabledEntitiesExcludedByDefaultMode(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	a := w.NewEntity()
	b := w.NewEntity()
	Set(w, a, testPosition{})
	Set(w, b, testPosition{})
	w.Enable(b, false)

	q := w.Query().All(position).Build()
	if got := q.Count(); got != 1 {
		t.Fatalf("expected 1 enabled row, got %d", got)
	}

	q.Mode(DisabledOnly)
	if got := q.Count(); got != 1 {
		t.Fatalf("expected 1 disabled row, got %d", got)
	}
}
