package gaia

// IterMode selects which partition of a chunk's rows an Iterator walks.
type IterMode uint8

const (
	// EnabledOnly visits only enabled rows. The default for Query.Each.
	EnabledOnly IterMode = iota
	// DisabledOnly visits only disabled rows.
	DisabledOnly
	// All visits every live row regardless of enabled state.
	All
)

// Iterator addresses one locked chunk and the contiguous slot range a
// query's iteration mode restricts it to. Accessor.View/ViewReadOnly
// slice a component's chunk-wide data down to exactly this range.
type Iterator struct {
	chunk  *Chunk
	mode   IterMode
	start  int
	length int
}

func newIterator(c *Chunk, mode IterMode) *Iterator {
	it := &Iterator{chunk: c, mode: mode}
	switch mode {
	case DisabledOnly:
		it.start, it.length = 0, c.firstEnabledIndex
	case All:
		it.start, it.length = 0, c.count
	default:
		it.start, it.length = c.firstEnabledIndex, c.countEnabled
	}
	return it
}

// Len returns the number of rows this iterator covers.
func (it *Iterator) Len() int { return it.length }

// Entity returns the entity handle at iteration-relative index i.
func (it *Iterator) Entity(i int) Entity {
	return it.chunk.entitySlice()[it.start+i]
}

func (it *Iterator) empty() bool { return it.length == 0 }
