package gaia

import (
	"github.com/TheBitDrifter/mask"
)

// QueryBuilder accumulates All/Any/None/Changed rules before Build
// compiles them into a cached, incrementally-maintained Query.
type QueryBuilder struct {
	world *World

	allIDs     []uint32
	anyIDs     []uint32
	noneIDs    []uint32
	changedIDs []uint32
}

func idsOf(types []AnyAccessor) []uint32 {
	ids := make([]uint32, len(types))
	for i, t := range types {
		ids[i] = t.descriptor().Component.ID()
	}
	return ids
}

// All requires every one of the given component types.
func (b *QueryBuilder) All(types ...AnyAccessor) *QueryBuilder {
	b.allIDs = append(b.allIDs, idsOf(types)...)
	return b
}

// Any requires at least one of the given component types.
func (b *QueryBuilder) Any(types ...AnyAccessor) *QueryBuilder {
	b.anyIDs = append(b.anyIDs, idsOf(types)...)
	return b
}

// None excludes archetypes carrying any of the given component types.
func (b *QueryBuilder) None(types ...AnyAccessor) *QueryBuilder {
	b.noneIDs = append(b.noneIDs, idsOf(types)...)
	return b
}

// Changed restricts iteration to chunks where at least one of the
// given components has a version counter newer than the last time
// this compiled query ran (or has never run before).
func (b *QueryBuilder) Changed(types ...AnyAccessor) *QueryBuilder {
	b.changedIDs = append(b.changedIDs, idsOf(types)...)
	return b
}

// Build compiles the accumulated rules, matches every existing
// archetype once, registers the result with the world for incremental
// maintenance as new archetypes appear, and returns the runnable Query.
func (b *QueryBuilder) Build() *Query {
	cq := &compiledQuery{world: b.world, changedIDs: b.changedIDs}
	for _, id := range b.allIDs {
		cq.allMask.Mark(int(id))
		cq.allMatcherHash |= matcherBit(id)
	}
	for _, id := range b.anyIDs {
		cq.anyMask.Mark(int(id))
	}
	for _, id := range b.noneIDs {
		cq.noneMask.Mark(int(id))
	}
	for _, a := range b.world.archetypes {
		cq.considerArchetype(a)
	}
	b.world.queries = append(b.world.queries, cq)
	return &Query{compiled: cq}
}

// compiledQuery is the spec's QueryInfo: a pre-compiled matcher plus
// the dense list of archetypes currently known to satisfy it. New
// archetypes are folded in via considerArchetype as the world creates
// them (World.notifyNewArchetype), so a long-lived Query never needs
// to re-scan the full archetype list.
type compiledQuery struct {
	world *World

	allMask, anyMask, noneMask mask.Mask256
	allMatcherHash             uint64

	changedIDs []uint32

	matching         []*Archetype
	lastSeenVersion  uint32
}

func (q *compiledQuery) matches(a *Archetype) bool {
	if q.allMatcherHash != 0 && a.matcherHash&q.allMatcherHash != q.allMatcherHash {
		return false
	}
	if !a.signature.ContainsAll(q.allMask) {
		return false
	}
	if !q.anyMask.IsEmpty() && !a.signature.ContainsAny(q.anyMask) {
		return false
	}
	if !a.signature.ContainsNone(q.noneMask) {
		return false
	}
	return true
}

func (q *compiledQuery) considerArchetype(a *Archetype) {
	if q.matches(a) {
		q.matching = append(q.matching, a)
	}
}

// removeArchetype drops a from this query's matching list, called when
// World.unregisterArchetype retires an archetype that has sat chunkless
// past its lifespan. a rejoins matching automatically the next time
// World.reviveArchetype calls considerArchetype for it.
func (q *compiledQuery) removeArchetype(a *Archetype) {
	for i, cand := range q.matching {
		if cand == a {
			last := len(q.matching) - 1
			q.matching[i] = q.matching[last]
			q.matching = q.matching[:last]
			return
		}
	}
}

func (q *compiledQuery) chunkChanged(c *Chunk) bool {
	if len(q.changedIDs) == 0 {
		return true
	}
	for _, id := range q.changedIDs {
		if c.componentVersion(id) > q.lastSeenVersion {
			return true
		}
	}
	return false
}

// Query is a runnable, cached query: Each locks and iterates every
// chunk across its matching archetypes.
type Query struct {
	compiled *compiledQuery
	mode     IterMode
}

// Mode selects which row partition Each visits (default EnabledOnly).
func (q *Query) Mode(m IterMode) *Query {
	q.mode = m
	return q
}

// Each locks every matching, non-empty chunk in turn and invokes fn
// with an Iterator over it. Structural mutation of a locked chunk
// (add/remove component, create/destroy entity) panics; queue it
// through World.Commands() instead and Commit() after Each returns.
func (q *Query) Each(fn func(it *Iterator)) {
	cq := q.compiled
	Config.zoneEvents.begin("Query.Each")
	defer Config.zoneEvents.end("Query.Each")

	for _, a := range cq.matching {
		for _, c := range a.chunks {
			if c.empty() || !cq.chunkChanged(c) {
				continue
			}
			it := newIterator(c, q.mode)
			if it.empty() {
				continue
			}
			c.lock()
			func() {
				defer c.unlock()
				fn(it)
			}()
		}
	}
	cq.lastSeenVersion = cq.world.version
}

// Count returns the number of rows Each would currently visit, without
// calling into any chunk's data.
func (q *Query) Count() int {
	cq := q.compiled
	total := 0
	for _, a := range cq.matching {
		for _, c := range a.chunks {
			if c.empty() || !cq.chunkChanged(c) {
				continue
			}
			total += newIterator(c, q.mode).Len()
		}
	}
	return total
}

