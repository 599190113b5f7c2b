// Package pool provides a fixed-capacity object pool backed by a
// pre-sized arena.
//
// Instances live in a single contiguous slice that never grows, so
// acquiring a slot on the hot path never calls the allocator.  Free
// slots are tracked as indices in a FIFO, which spreads reuse across
// the arena instead of hammering the most recently released slot.
//
// A Pool is not safe for concurrent use.  It is meant to be owned by
// the goroutine running the accept/poll loop; callers that share it
// across goroutines must serialize access themselves.
package pool

import (
	"fmt"

	"github.com/eapache/queue"

	"gosock/internal/errors"
)

// Handle identifies one acquired slot.  The generation makes handles
// to a released slot stale, so a late Release or Get never touches
// the slot's next tenant.
type Handle struct {
	index int32
	gen   uint32
}

// Index returns the arena slot the handle refers to.
func (h Handle) Index() int { return int(h.index) }

// IsZero reports whether h was never issued by a pool.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string { return fmt.Sprintf("slot#%d/%d", h.index, h.gen) }

type slot struct {
	gen  uint32 // bumped on every acquire; 0 means never used
	refs int32  // 0 when free
}

// Pool hands out up to Cap() instances of T.
type Pool[T any] struct {
	items []T
	slots []slot
	free  *queue.Queue // of int32 slot indices
	inUse int
}

// New creates a pool with exactly capacity slots.  The slots hold the
// zero value of T until first acquired.
func New[T any](capacity int) *Pool[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("pool: capacity must be positive, got %d", capacity))
	}
	free := queue.New()
	for i := range capacity {
		free.Add(int32(i))
	}
	return &Pool[T]{
		items: make([]T, capacity),
		slots: make([]slot, capacity),
		free:  free,
	}
}

// Acquire takes a free slot, runs init on it, and returns its handle.
// Construction arguments (a socket, limits, ...) are passed by
// capturing them in init.  init sees whatever the previous tenant left
// behind and must reset every field it relies on.
//
// Returns errors.ErrPoolExhausted when all slots are in use.
func (p *Pool[T]) Acquire(init func(*T)) (Handle, *T, error) {
	if p.free.Length() == 0 {
		return Handle{}, nil, errors.ErrPoolExhausted
	}
	idx := p.free.Remove().(int32)
	s := &p.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.refs = 1
	p.inUse++

	item := &p.items[idx]
	if init != nil {
		init(item)
	}
	return Handle{index: idx, gen: s.gen}, item, nil
}

// Retain adds a shared reference to the slot behind h.  Every Retain
// must be paired with one Release.  Returns false for a stale handle.
func (p *Pool[T]) Retain(h Handle) bool {
	s, ok := p.lookup(h)
	if !ok {
		return false
	}
	s.refs++
	return true
}

// Release drops one reference to the slot behind h.  When the last
// reference goes, fini runs on the instance and the slot returns to
// the free set.  Releasing a stale or already-freed handle is a no-op,
// which makes a second Release by the same owner harmless.
//
// Reports whether the slot was reclaimed by this call.
func (p *Pool[T]) Release(h Handle, fini func(*T)) bool {
	s, ok := p.lookup(h)
	if !ok {
		return false
	}
	s.refs--
	if s.refs > 0 {
		return false
	}
	if fini != nil {
		fini(&p.items[h.index])
	}
	// Invalidate outstanding handles before the slot can be reissued.
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.refs = 0
	p.inUse--
	p.free.Add(h.index)
	return true
}

// Get returns the instance behind h, or false if h is stale.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	if _, ok := p.lookup(h); !ok {
		return nil, false
	}
	return &p.items[h.index], true
}

// Each calls fn for every in-use slot in arena order until fn returns
// false.  fn may Release the handle it is given.
func (p *Pool[T]) Each(fn func(Handle, *T) bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.refs == 0 {
			continue
		}
		if !fn(Handle{index: int32(i), gen: s.gen}, &p.items[i]) {
			return
		}
	}
}

// Len returns the number of slots currently in use.
func (p *Pool[T]) Len() int { return p.inUse }

// Cap returns the fixed number of slots.
func (p *Pool[T]) Cap() int { return len(p.items) }

// Available returns the number of free slots.
func (p *Pool[T]) Available() int { return len(p.items) - p.inUse }

func (p *Pool[T]) lookup(h Handle) (*slot, bool) {
	if h.gen == 0 || h.index < 0 || int(h.index) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[h.index]
	if s.refs == 0 || s.gen != h.gen {
		return nil, false
	}
	return s, true
}
