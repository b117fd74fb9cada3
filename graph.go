package gaia

// signatureKey combines every component id and kind into one hash used
// to probe World.archetypesBySig before allocating a new Archetype —
// the (hash, set) intern table spec.md describes. Collisions are
// resolved by sameComponentSet, so the hash itself only needs to be
// cheap and well-distributed, not collision-free.
func signatureKey(componentsByKind [numComponentKinds][]*Descriptor) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for kind, descs := range componentsByKind {
		for _, d := range descs {
			h ^= uint64(d.Component.ID())<<1 | uint64(kind)
			h *= prime64
		}
	}
	return h
}

// sameComponentSet reports whether two component-by-kind sets are
// identical, descriptor for descriptor and in the same order. Since
// addComponentTarget/delComponentTarget always build next via
// appendSorted (ascending component id), any two paths that reach the
// same set of components end up with byte-identical slices here.
func sameComponentSet(a, b [numComponentKinds][]*Descriptor) bool {
	for k := range a {
		if len(a[k]) != len(b[k]) {
			return false
		}
		for i := range a[k] {
			if a[k][i] != b[k][i] {
				return false
			}
		}
	}
	return true
}

// internArchetype returns the archetype carrying exactly the given
// component set. It first probes World.archetypesBySig — the
// (hash, set)-keyed registry — so two different add/del paths that
// reach the same component set (e.g. Root→{A}→{A,B} and
// Root→{B}→{B,A}) always resolve to the same *Archetype, even though
// each source archetype only caches the edge for the path it
// personally walked. A dead archetype found this way (emptied out and
// since unregistered by tickArchetypeLifespans) is revived rather than
// shadowed by a second, duplicate object.
func (w *World) internArchetype(componentsByKind [numComponentKinds][]*Descriptor) *Archetype {
	key := signatureKey(componentsByKind)
	for _, cand := range w.archetypesBySig[key] {
		if sameComponentSet(cand.componentsByKind, componentsByKind) {
			if cand.dead {
				w.reviveArchetype(cand)
			}
			return cand
		}
	}

	id := uint32(len(w.archetypes))
	a := newArchetype(w, id, componentsByKind)
	w.archetypes = append(w.archetypes, a)
	w.archetypesBySig[key] = append(w.archetypesBySig[key], a)
	w.notifyNewArchetype(a)
	return a
}

// archetypeForIDs walks the graph from the empty root archetype, adding
// one component at a time, to reach the archetype for an explicit set
// of component ids. Used when an entity is created with its full
// component list known up front (AddEntityFrom) rather than
// through a single Add[T]/Del[T] step.
func (w *World) archetypeForIDs(descs []*Descriptor, kinds []componentKind) *Archetype {
	a := w.root
	for i, d := range descs {
		a = a.addComponentTarget(d.Component.ID(), d, kinds[i])
	}
	return a
}

// unregisterArchetype drops a into the dead state: it stops appearing
// in w.archetypes (so World.Update/Stats/Query.Build's initial scan
// skip it) and is pruned from every live query's matching list, but it
// stays in archetypesBySig and reachable through its neighbors' edge
// maps forever, so a later migration back into its component set
// revives the same object instead of building a duplicate.
func (w *World) unregisterArchetype(a *Archetype) {
	last := len(w.archetypes) - 1
	for i, cand := range w.archetypes {
		if cand == a {
			w.archetypes[i] = w.archetypes[last]
			w.archetypes = w.archetypes[:last]
			break
		}
	}
	for _, q := range w.queries {
		q.removeArchetype(a)
	}
	a.dead = true
}

// reviveArchetype undoes unregisterArchetype: a rejoins w.archetypes
// and every live query re-considers it, without rebuilding its edges
// or chunks (it has none left; the next getOrCreateFreeChunk call
// allocates a fresh one).
func (w *World) reviveArchetype(a *Archetype) {
	a.dead = false
	a.lifespanCountdown = 0
	w.archetypes = append(w.archetypes, a)
	w.notifyNewArchetype(a)
}

// tickArchetypeLifespans advances the lifespanCountdown of every
// chunkless, non-root archetype by one tick and unregisters any that
// reaches zero. An archetype that regains a chunk before its countdown
// expires has its countdown reset to zero (not dying) the next time
// this runs, mirroring Archetype.tickChunkLifespans' chunk-level
// revival check.
func (w *World) tickArchetypeLifespans() {
	var dying []*Archetype
	for _, a := range w.archetypes {
		if a == w.root {
			continue
		}
		if len(a.chunks) > 0 {
			a.lifespanCountdown = 0
			continue
		}
		if a.lifespanCountdown <= 0 {
			a.lifespanCountdown = Config.ArchetypeLifespan
		}
		a.lifespanCountdown--
		if a.lifespanCountdown <= 0 {
			dying = append(dying, a)
		}
	}
	for _, a := range dying {
		w.unregisterArchetype(a)
	}
}
