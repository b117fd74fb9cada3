package gaia

// Bulk batches a sequence of Add/Remove component calls against one
// entity into a single archetype migration, committed all at once by
// Commit. Walking BulkAddComponent/BulkRemoveComponent only chases the
// add/del edge graph to find the final target archetype — cheap
// pointer follows, no data movement — deferring the actual row copy
// and value writes to one migrateEntity call in Commit instead of one
// per call, per the RAII batched-edit helper the data model calls for.
type Bulk struct {
	world  *World
	entity Entity
	target *Archetype
	after  []func(w *World, e Entity)

	committed bool
}

// Bulk starts a batched edit against e. The returned *Bulk must be
// finished with Commit; an uncommitted Bulk has no effect.
func (w *World) Bulk(e Entity) *Bulk {
	rec := w.mustLive(e)
	return &Bulk{world: w, entity: e, target: rec.archetype}
}

// BulkAddComponent queues T for addition to b's entity, walking the
// add-edge graph (registering T if needed) to update b's pending
// target archetype. The default-constructed value is overwritten with
// value once Commit performs the migration.
func BulkAddComponent[T any](b *Bulk, value T) *Bulk {
	a := Register[T](b.world)
	if !b.target.hasComponent(a.desc.Component.ID()) {
		b.target = b.target.addComponentTarget(a.desc.Component.ID(), a.desc, kindGeneric)
	}
	b.after = append(b.after, func(w *World, e Entity) {
		*a.Get(w, e) = value
	})
	return b
}

// BulkRemoveComponent queues T for removal from b's entity, walking the
// del-edge graph to update b's pending target archetype.
func BulkRemoveComponent[T any](b *Bulk) *Bulk {
	a := Register[T](b.world)
	if b.target.hasComponent(a.desc.Component.ID()) {
		b.target = b.target.delComponentTarget(a.desc.Component.ID())
	}
	return b
}

// Commit performs the single migration (if the queued adds/removes
// actually changed the target archetype) and then runs every queued
// value-setter closure against the entity's final row.
func (b *Bulk) Commit() {
	if b.committed {
		return
	}
	b.committed = true

	rec := b.world.mustLive(b.entity)
	if rec.archetype != b.target {
		newChunk, newSlot := migrateEntity(rec.archetype, rec.chunk, int(rec.idx), b.target)
		rec.archetype = b.target
		rec.chunk = newChunk
		rec.idx = uint32(newSlot)
		b.world.version++
	}
	for _, fn := range b.after {
		fn(b.world, b.entity)
	}
}
