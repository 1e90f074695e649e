package rangeset

import (
	"sync"

	"github.com/cockroachdb/errors"
)

var ErrPoolExhausted = errors.New("rangeset: node pool exhausted")

const illegalRelease = "rangeset: release without acquire"

// NodePool supplies the storage backing the ranges of a Set.
// Acquire is all-or-nothing: it either reserves n nodes or none.
type NodePool interface {
	Acquire(n int) error
	Release(n int)
}

type unbounded struct{}

func (unbounded) Acquire(int) error { return nil }
func (unbounded) Release(int)       {}

// Unbounded never runs out of nodes.
var Unbounded NodePool = unbounded{}

// FixedPool hands out at most capacity nodes. It is safe to share between
// sets owned by different goroutines.
type FixedPool struct {
	sync.Mutex
	capacity int
	inUse    int
}

func NewFixedPool(capacity int) *FixedPool {
	return &FixedPool{capacity: capacity}
}

func (p *FixedPool) Acquire(n int) error {
	if n <= 0 {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	if p.inUse+n > p.capacity {
		return errors.Wrapf(ErrPoolExhausted, "need %d, %d of %d in use", n, p.inUse, p.capacity)
	}
	p.inUse += n
	return nil
}

func (p *FixedPool) Release(n int) {
	if n <= 0 {
		return
	}
	p.Lock()
	defer p.Unlock()
	if n > p.inUse {
		panic(illegalRelease)
	}
	p.inUse -= n
}

func (p *FixedPool) InUse() int {
	p.Lock()
	defer p.Unlock()
	return p.inUse
}

func (p *FixedPool) Capacity() int {
	return p.capacity
}

// Available returns the number of nodes that can still be acquired.
func (p *FixedPool) Available() int {
	p.Lock()
	defer p.Unlock()
	return p.capacity - p.inUse
}
