/*
Package gaia is an archetype-based Entity-Component-System (ECS) core
runtime.

Gaia keeps entities that share the same component set packed together
in fixed-size chunks, so iterating a query walks contiguous memory
instead of chasing pointers. It covers the hard engineering surface of
an ECS: the chunk allocator, the archetype graph, the query compiler
and matcher, and a deferred command buffer for structural changes made
from inside iteration.

Core Concepts:

  - Entity: a lightweight 64-bit handle identifying a row in the world.
  - Component: a typed datum attached to entities, registered once per
    world via the generic Register function.
  - Archetype: the set of components shared by every entity inside its
    chunks; unique per component signature.
  - Chunk: a fixed-capacity, columnar block of memory backing one
    archetype's entities.
  - Query: a declarative {All, Any, None, Changed} filter over
    components, compiled into a matcher that tracks matching archetypes
    incrementally as the world grows.

Basic Usage:

	w := gaia.NewWorld()

	position := gaia.Register[Position](w)
	velocity := gaia.Register[Velocity](w)

	e := w.NewEntity()
	gaia.Set(w, e, Position{X: 1, Y: 2})
	gaia.Set(w, e, Velocity{X: 1, Y: 0})

	q := w.Query().All(position, velocity).Build()
	q.Each(func(it *gaia.Iterator) {
		positions := position.View(it)
		velocities := velocity.View(it)
		for i := 0; i < it.Len(); i++ {
			positions[i].X += velocities[i].X
			positions[i].Y += velocities[i].Y
		}
	})

Structural mutation (adding/removing components, creating or destroying
entities) is forbidden while a query holds a chunk locked. Schedule
those operations on a CommandBuffer from inside a callback and commit
it once iteration finishes.

Gaia is single-threaded with respect to structural mutation: a single
World must not be mutated concurrently from multiple goroutines. Read-
only iteration may run in parallel as long as nothing mutates the world
for the duration.
*/
package gaia
