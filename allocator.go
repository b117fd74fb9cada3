package gaia

import (
	"math/bits"
	"unsafe"
)

// chunkSizeClass is one of the two fixed block sizes the allocator
// hands out. The archetype layout planner (archetype.go) picks
// whichever class fits its estimated per-chunk data size.
type chunkSizeClass uint8

const (
	sizeClass8KiB chunkSizeClass = iota
	sizeClass16KiB
	numSizeClasses
)

const (
	blockBytes8KiB  = 8 * 1024
	blockBytes16KiB = 16 * 1024
	blocksPerPage   = 62
	pageAlignment   = 16
)

func (c chunkSizeClass) blockBytes() int {
	if c == sizeClass16KiB {
		return blockBytes16KiB
	}
	return blockBytes8KiB
}

var pointerSize = unsafe.Sizeof(uintptr(0))

// classifySize picks the smallest size class whose block can hold n
// requested bytes plus the allocator's own back-pointer header.
func classifySize(n uintptr) chunkSizeClass {
	if n+pointerSize <= blockBytes8KiB {
		return sizeClass8KiB
	}
	return sizeClass16KiB
}

// allocatorPage is one heap-allocated slab backing up to
// blocksPerPage fixed-size blocks of a single size class. free is a
// 62-bit-packed bitfield: bit i set means block i is free.
type allocatorPage struct {
	class     chunkSizeClass
	data      []byte
	base      unsafe.Pointer
	free      uint64
	usedCount int
}

const allFreeMask = uint64(1)<<blocksPerPage - 1

func newAllocatorPage(class chunkSizeClass) *allocatorPage {
	blockSize := class.blockBytes()
	p := &allocatorPage{
		class: class,
		data:  make([]byte, blockSize*blocksPerPage+pageAlignment),
		free:  allFreeMask,
	}
	raw := unsafe.Pointer(&p.data[0])
	pad := (pageAlignment - uintptr(raw)%pageAlignment) % pageAlignment
	p.base = unsafe.Add(raw, pad)
	return p
}

func (p *allocatorPage) blockPtr(idx int) unsafe.Pointer {
	return unsafe.Add(p.base, idx*p.class.blockBytes())
}

func (p *allocatorPage) blockIndex(block unsafe.Pointer) int {
	offset := uintptr(block) - uintptr(p.base)
	return int(offset) / p.class.blockBytes()
}

func (p *allocatorPage) takeFreeBlock() int {
	idx := bits.TrailingZeros64(p.free)
	p.free &^= uint64(1) << idx
	p.usedCount++
	return idx
}

func (p *allocatorPage) releaseBlock(idx int) {
	p.free |= uint64(1) << idx
	p.usedCount--
}

func (p *allocatorPage) full() bool  { return p.free == 0 }
func (p *allocatorPage) empty() bool { return p.usedCount == 0 }

// AllocatorStats reports live page/block counts for one size class,
// for diagnostics and the World.Stats surface (spec §4.1).
type AllocatorStats struct {
	LivePages  int
	LiveBlocks int
}

// ChunkAllocator is a slab allocator handing out fixed-size memory
// blocks in two size classes (8 KiB / 16 KiB) with O(1) allocate/free.
// It backs every Chunk's backing store; a World owns exactly one.
type ChunkAllocator struct {
	partial [numSizeClasses][]*allocatorPage
	full    [numSizeClasses][]*allocatorPage
	stats   [numSizeClasses]AllocatorStats
}

// NewChunkAllocator creates an empty allocator with no pages yet.
func NewChunkAllocator() *ChunkAllocator {
	return &ChunkAllocator{}
}

// Alloc returns a pointer to a block whose size class is the smallest
// that fits requestedBytes; the first pointerSize bytes are reserved
// for the owning page's back-pointer, so the caller actually receives
// block+pointerSize. Fails only on host allocation failure, which in
// Go surfaces as the runtime's own out-of-memory panic — Alloc itself
// has no recoverable failure mode to return.
func (a *ChunkAllocator) Alloc(requestedBytes uintptr) unsafe.Pointer {
	class := classifySize(requestedBytes)
	page := a.acquirePartialPage(class)
	idx := page.takeFreeBlock()
	a.stats[class].LiveBlocks++
	if page.full() {
		a.movePartialToFull(class, page)
	}

	block := page.blockPtr(idx)
	*(*unsafe.Pointer)(block) = unsafe.Pointer(page)
	return unsafe.Add(block, pointerSize)
}

// Free recovers the owning page by reading the back-pointer stored
// pointerSize bytes before ptr and returns the block to that page's
// free list.
func (a *ChunkAllocator) Free(ptr unsafe.Pointer) {
	block := unsafe.Add(ptr, -int(pointerSize))
	page := (*allocatorPage)(*(*unsafe.Pointer)(block))
	wasFull := page.full()
	idx := page.blockIndex(block)
	page.releaseBlock(idx)
	a.stats[page.class].LiveBlocks--
	if wasFull {
		a.moveFullToPartial(page.class, page)
	}
}

// Flush releases any page whose used-block count is zero.
func (a *ChunkAllocator) Flush() {
	for class := chunkSizeClass(0); class < numSizeClasses; class++ {
		kept := a.partial[class][:0]
		for _, p := range a.partial[class] {
			if p.empty() {
				a.stats[class].LivePages--
				continue
			}
			kept = append(kept, p)
		}
		a.partial[class] = kept
	}
}

// Stats reports live page/block counts for one size class.
func (a *ChunkAllocator) Stats(class chunkSizeClass) AllocatorStats {
	return a.stats[class]
}

func (a *ChunkAllocator) acquirePartialPage(class chunkSizeClass) *allocatorPage {
	if n := len(a.partial[class]); n > 0 {
		return a.partial[class][n-1]
	}
	page := newAllocatorPage(class)
	a.partial[class] = append(a.partial[class], page)
	a.stats[class].LivePages++
	return page
}

func (a *ChunkAllocator) movePartialToFull(class chunkSizeClass, page *allocatorPage) {
	removePage(&a.partial[class], page)
	a.full[class] = append(a.full[class], page)
}

func (a *ChunkAllocator) moveFullToPartial(class chunkSizeClass, page *allocatorPage) {
	removePage(&a.full[class], page)
	a.partial[class] = append(a.partial[class], page)
}

func removePage(list *[]*allocatorPage, page *allocatorPage) {
	s := *list
	for i, p := range s {
		if p == page {
			s[i] = s[len(s)-1]
			*list = s[:len(s)-1]
			return
		}
	}
}
