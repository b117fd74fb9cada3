package gaia

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPosition struct {
	X, Y float64
}

type testVelocity struct {
	X, Y float64
}

type testTag struct{}

func TestNewEntityStartsInRootArchetype(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()

	assert.True(t, w.Valid(e))
	rec := w.mustLive(e)
	assert.Equal(t, w.root, rec.archetype)
}

func TestAddGetSetRoundTrip(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()

	Set(w, e, testPosition{X: 1, Y: 2})
	got := Get[testPosition](w, e)
	assert.Equal(t, testPosition{X: 1, Y: 2}, *got)

	got.X = 5
	assert.Equal(t, float64(5), Get[testPosition](w, e).X)
}

func TestAddTwiceOnSameEntityPanics(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()
	Set(w, e, testPosition{})

	assert.Panics(t, func() {
		Add[testPosition](w, e)
	})
}

func TestDelMakesHandleInvalid(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()
	Set(w, e, testPosition{X: 1})

	w.Del(e)
	assert.False(t, w.Valid(e))
	assert.Panics(t, func() { w.mustLive(e) })
}

func TestDelRecyclesSlotWithBumpedGeneration(t *testing.T) {
	w := NewWorld()
	first := w.NewEntity()
	w.Del(first)
	second := w.NewEntity()

	assert.Equal(t, first.ID(), second.ID())
	assert.NotEqual(t, first.Gen(), second.Gen())
	assert.False(t, w.Valid(first))
	assert.True(t, w.Valid(second))
}

func TestRemoveComponentMigratesArchetype(t *testing.T) {
	w := NewWorld()
	e := w.NewEntity()
	Set(w, e, testPosition{X: 1, Y: 2})
	Set(w, e, testVelocity{X: 3, Y: 4})

	RemoveComponent[testVelocity](w, e)

	assert.True(t, Has[testPosition](w, e))
	assert.False(t, Has[testVelocity](w, e))
	assert.Equal(t, testPosition{X: 1, Y: 2}, *Get[testPosition](w, e))
}

func TestEnableMovesAcrossPartitionWithoutLosingData(t *testing.T) {
	w := NewWorld()
	a := w.NewEntity()
	b := w.NewEntity()
	Set(w, a, testPosition{X: 1})
	Set(w, b, testPosition{X: 2})

	w.Enable(a, false)

	q := w.Query().All(Register[testPosition](w)).Build()
	enabledCount := 0
	q.Each(func(it *Iterator) {
		enabledCount += it.Len()
	})
	assert.Equal(t, 1, enabledCount)

	allCount := 0
	w.Query().All(Register[testPosition](w)).Build().Mode(All).Each(func(it *Iterator) {
		allCount += it.Len()
	})
	assert.Equal(t, 2, allCount)

	assert.Equal(t, testPosition{X: 1}, *Get[testPosition](w, a))
	assert.Equal(t, testPosition{X: 2}, *Get[testPosition](w, b))
}

func TestNameUniqueness(t *testing.T) {
	w := NewWorld()
	a := w.NewEntity()
	b := w.NewEntity()

	assert.NoError(t, w.Name(a, "hero"))
	assert.Error(t, w.Name(b, "hero"))

	found, ok := w.EntityByName("hero")
	assert.True(t, ok)
	assert.Equal(t, a, found)
}

func TestQueryMatchesExistingAndFutureArchetypes(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)

	q := w.Query().All(position).Build()

	e1 := w.NewEntity()
	Set(w, e1, testPosition{X: 1})
	assert.Equal(t, 1, q.Count())

	e2 := w.NewEntity()
	Set(w, e2, testPosition{X: 2})
	Set(w, e2, testVelocity{X: 1})
	assert.Equal(t, 2, q.Count())
}

func TestNoneExcludesMatchingArchetypes(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	velocity := Register[testVelocity](w)

	withVel := w.NewEntity()
	Set(w, withVel, testPosition{})
	Set(w, withVel, testVelocity{})

	withoutVel := w.NewEntity()
	Set(w, withoutVel, testPosition{})

	q := w.Query().All(position).None(velocity).Build()
	assert.Equal(t, 1, q.Count())
}

func TestCommandBufferDefersStructuralMutation(t *testing.T) {
	w := NewWorld()
	position := Register[testPosition](w)
	e := w.NewEntity()
	Set(w, e, testPosition{X: 1})

	q := w.Query().All(position).Build()
	q.Each(func(it *Iterator) {
		BufferSetComponent(w.Commands(), e, testPosition{X: 42})
	})
	assert.Equal(t, float64(1), Get[testPosition](w, e).X)

	w.Commands().Commit()
	assert.Equal(t, float64(42), Get[testPosition](w, e).X)
}

func TestCommandBufferTempEntity(t *testing.T) {
	w := NewWorld()
	cb := w.Commands()

	t1 := cb.CreateEntity()
	BufferAddComponent(cb, t1, testPosition{X: 7})
	BufferAddComponent(cb, t1, testTag{})
	cb.Commit()

	count := 0
	w.Query().All(Register[testPosition](w), Register[testTag](w)).Build().Each(func(it *Iterator) {
		count += it.Len()
	})
	assert.Equal(t, 1, count)
}

func TestUpdateDefragCompactsChunks(t *testing.T) {
	w := NewWorld()
	var entities []Entity
	for i := 0; i < 20; i++ {
		e := w.NewEntity()
		Set(w, e, testPosition{X: float64(i)})
		entities = append(entities, e)
	}
	for i := 0; i < 15; i++ {
		w.Del(entities[i])
	}

	before := w.Stats().ChunkCount
	w.Update()
	after := w.Stats().ChunkCount

	assert.LessOrEqual(t, after, before)
	assert.Equal(t, 5, w.Stats().LiveEntities)
}
