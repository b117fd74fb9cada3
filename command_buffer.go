package gaia

// Target names the entity a buffered command applies to: either an
// already-live Entity handle, or a TempEntity referring to another
// command in the same buffer that hasn't created its entity yet.
type Target interface {
	resolve(resolved []Entity) Entity
}

// Entity itself is a valid Target — most buffered commands operate on
// an entity that already exists.
func (e Entity) resolve(resolved []Entity) Entity { return e }

// TempEntity names an entity CommandBuffer.CreateEntity will create at
// Commit time, before it exists. Passing one to AddComponent/
// SetComponent/RemoveComponent/DeleteEntity lets a single buffer
// describe "spawn this, then configure it" without a real handle.
type TempEntity int

func (t TempEntity) resolve(resolved []Entity) Entity { return resolved[t] }

type opKind uint8

const (
	opMutate opKind = iota
	opCreate
)

type bufferedOp struct {
	kind   opKind
	target Target
	apply  func(w *World, e Entity)
}

// CommandBuffer is the deferred mutation log a Query.Each callback
// writes to instead of mutating the World directly while its chunk is
// locked. Commit replays every queued command, in order, against the
// live World; a command whose target was destroyed (or never
// materialized because an enclosing TempEntity's CreateEntity was
// itself skipped) is silently dropped rather than erroring, mirroring
// the teacher's EntityOperation.Apply "not valid anymore, not an
// error" convention.
type CommandBuffer struct {
	world     *World
	tempCount int
	ops       []bufferedOp
}

func newCommandBuffer(w *World) *CommandBuffer {
	return &CommandBuffer{world: w}
}

func (cb *CommandBuffer) enqueue(target Target, apply func(w *World, e Entity)) {
	cb.ops = append(cb.ops, bufferedOp{kind: opMutate, target: target, apply: apply})
}

// CreateEntity queues creation of a new entity in the root archetype
// and returns a TempEntity referring to it for use by other commands
// queued before Commit runs.
func (cb *CommandBuffer) CreateEntity() TempEntity {
	t := TempEntity(cb.tempCount)
	cb.tempCount++
	cb.ops = append(cb.ops, bufferedOp{kind: opCreate, target: t})
	return t
}

// DeleteEntity queues destruction of target.
func (cb *CommandBuffer) DeleteEntity(target Target) {
	cb.enqueue(target, func(w *World, e Entity) { w.Del(e) })
}

// EnableEntity queues an enabled/disabled flip for target.
func (cb *CommandBuffer) EnableEntity(target Target, enabled bool) {
	cb.enqueue(target, func(w *World, e Entity) { w.Enable(e, enabled) })
}

// BufferAddComponent queues Set[T](w, target, value) — T must not
// already be present on target's archetype when the command runs.
func BufferAddComponent[T any](cb *CommandBuffer, target Target, value T) {
	cb.enqueue(target, func(w *World, e Entity) {
		Set[T](w, e, value)
	})
}

// BufferSetComponent queues writing value into target's T, adding the
// component first if target doesn't carry it yet.
func BufferSetComponent[T any](cb *CommandBuffer, target Target, value T) {
	cb.enqueue(target, func(w *World, e Entity) {
		if Has[T](w, e) {
			*Get[T](w, e) = value
			return
		}
		Set[T](w, e, value)
	})
}

// BufferRemoveComponent queues removal of T from target.
func BufferRemoveComponent[T any](cb *CommandBuffer, target Target) {
	cb.enqueue(target, func(w *World, e Entity) {
		RemoveComponent[T](w, e)
	})
}

// Commit replays every queued command against the live world, in
// order, then clears the buffer. Safe to call with an empty buffer.
func (cb *CommandBuffer) Commit() {
	Config.zoneEvents.begin("CommandBuffer.Commit")
	defer Config.zoneEvents.end("CommandBuffer.Commit")

	resolved := make([]Entity, cb.tempCount)
	for _, op := range cb.ops {
		if op.kind == opCreate {
			resolved[op.target.(TempEntity)] = cb.world.NewEntity()
			continue
		}
		e := op.target.resolve(resolved)
		if e == BadEntity || !cb.world.Valid(e) {
			continue
		}
		op.apply(cb.world, e)
	}
	cb.ops = cb.ops[:0]
	cb.tempCount = 0
}

// Pending reports how many commands are currently queued.
func (cb *CommandBuffer) Pending() int {
	return len(cb.ops)
}
