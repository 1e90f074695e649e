package space

import (
	"sort"
	"sync"
	"sync/atomic"
)

// maxBucket to shard the ids. should be a power of 2
const maxBucket = 0x20

type shard struct {
	sync.RWMutex
	m map[uint64]*Space
}

// Registry hands out ids for live spaces so they can be looked up and
// enumerated, for example by a Collector.
type Registry struct {
	bucket [maxBucket]*shard
	lastID uint64
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.bucket {
		r.bucket[i] = &shard{m: make(map[uint64]*Space)}
	}
	return r
}

func (r *Registry) shardFor(id uint64) *shard {
	return r.bucket[id&uint64(maxBucket-1)]
}

// Register stores s under a fresh id.
func (r *Registry) Register(s *Space) uint64 {
	id := atomic.AddUint64(&r.lastID, 1)
	r.Store(id, s)
	return id
}

func (r *Registry) Store(id uint64, s *Space) {
	sh := r.shardFor(id)
	sh.Lock()
	sh.m[id] = s
	sh.Unlock()
}

func (r *Registry) Load(id uint64) (*Space, bool) {
	sh := r.shardFor(id)
	sh.RLock()
	defer sh.RUnlock()
	s, ok := sh.m[id]
	return s, ok
}

func (r *Registry) LoadAndDelete(id uint64) (*Space, bool) {
	sh := r.shardFor(id)
	sh.Lock()
	defer sh.Unlock()
	s, ok := sh.m[id]
	if ok {
		delete(sh.m, id)
	}
	return s, ok
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.bucket {
		sh.RLock()
		n += len(sh.m)
		sh.RUnlock()
	}
	return n
}

// Each calls fn for every registered space in id order. fn must not call
// back into the registry.
func (r *Registry) Each(fn func(id uint64, s *Space)) {
	type entry struct {
		id uint64
		s  *Space
	}
	var all []entry
	for _, sh := range r.bucket {
		sh.RLock()
		for id, s := range sh.m {
			all = append(all, entry{id, s})
		}
		sh.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	for _, e := range all {
		fn(e.id, e.s)
	}
}
