package aggregate

import (
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// caseRuntime is the mutable state of one test case. All fields are guarded
// by mu; only the aggregator touches it.
type caseRuntime struct {
	mu sync.Mutex

	id            string
	suiteFullName string
	name          string

	activeSubtest string
	hasActive     bool
	lastSeen      float64
	subtestTotal  float64

	// completed is set before the runtime leaves the store so a goroutine
	// that raced the removal can tell it holds a stale record.
	completed bool
}

// store maps case ids to runtimes. The sharded map's locks cover only map
// access; per-case work happens under the runtime's own lock, so distinct
// ids never contend beyond a brief shard lookup.
type store struct {
	cases cmap.ConcurrentMap[string, *caseRuntime]
}

func newStore() *store {
	return &store{cases: cmap.New[*caseRuntime]()}
}

// acquire returns the locked runtime for id, creating it when absent.
// created reports whether this call inserted it.
func (s *store) acquire(id string) (*caseRuntime, bool) {
	for {
		created := false
		rt := s.cases.Upsert(id, nil, func(exists bool, cur, _ *caseRuntime) *caseRuntime {
			if exists {
				return cur
			}
			created = true
			return &caseRuntime{id: id}
		})

		rt.mu.Lock()
		if !rt.completed {
			return rt, created
		}
		rt.mu.Unlock()
	}
}

// lookup returns the locked runtime for id, or false when none is open.
func (s *store) lookup(id string) (*caseRuntime, bool) {
	rt, ok := s.cases.Get(id)
	if !ok {
		return nil, false
	}
	rt.mu.Lock()
	if rt.completed {
		rt.mu.Unlock()
		return nil, false
	}
	return rt, true
}

// remove drops rt from the store. The caller holds rt.mu.
func (s *store) remove(rt *caseRuntime) {
	rt.completed = true
	s.cases.RemoveCb(rt.id, func(_ string, cur *caseRuntime, exists bool) bool {
		return exists && cur == rt
	})
}

// ids returns the sorted ids of all open cases.
func (s *store) ids() []string {
	out := s.cases.Keys()
	sort.Strings(out)
	return out
}

// len returns the number of open cases.
func (s *store) len() int {
	return s.cases.Count()
}
