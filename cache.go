package gaia

import "fmt"

// Cache is a generic, append-only registry keyed by string, with dense
// integer lookup for hot paths that already know the index. The World
// uses one to back Name/EntityByName: entity names are optional, so this
// stays a thin side index rather than a field on every entity record.
type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
}

// CacheLocation identifies a registered item by its original key and
// the dense index it was assigned.
type CacheLocation struct {
	Key   string
	Index uint32
}

// SimpleCache is the default Cache implementation: a flat slice plus
// a string->index map, bounded by maxCapacity.
type SimpleCache[T any] struct {
	items       []T
	itemIndices map[string]int
	maxCapacity int
}

var _ Cache[any] = &SimpleCache[any]{}

// newSimpleCache creates an empty SimpleCache bounded by capacity.
func newSimpleCache[T any](capacity int) *SimpleCache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: capacity,
	}
}

func (c *SimpleCache[T]) GetIndex(key string) (int, bool) {
	index, ok := c.itemIndices[key]
	return index, ok
}

func (c *SimpleCache[T]) GetItem(index int) *T {
	item := &c.items[index]
	return item
}

func (c *SimpleCache[T]) GetItem32(index uint32) *T {
	item := &c.items[index]
	return item
}

func (c *SimpleCache[T]) Register(key string, item T) (int, error) {
	if len(c.itemIndices) >= c.maxCapacity {
		return -1, fmt.Errorf("cache at maximum capacity (%d)", c.maxCapacity)
	}

	idx := len(c.items)
	c.itemIndices[key] = idx
	c.items = append(c.items, item)

	return idx, nil
}

func (c *SimpleCache[T]) Clear() {
	c.items = make([]T, c.maxCapacity)
	c.itemIndices = make(map[string]int)
}
