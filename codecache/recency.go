package codecache

import (
	"container/list"
	"sync"
	"weak"
)

// recencyList tracks recently executed programs. The most recent
// strongMax programs are pinned with strong references; older entries
// degrade to weak references so memory pressure can reclaim them while
// a re-run can still hit the cache if the collector has not.
type recencyList struct {
	mu        sync.Mutex
	strongMax int
	order     *list.List // front is most recent
	byID      map[string]*list.Element
}

type recencyEntry struct {
	sourceID string
	strong   *LoadedProgram
	weakRef  weak.Pointer[LoadedProgram]
}

func newRecencyList(strongMax int) *recencyList {
	if strongMax < 1 {
		strongMax = 1
	}
	return &recencyList{
		strongMax: strongMax,
		order:     list.New(),
		byID:      make(map[string]*list.Element),
	}
}

// Touch records prog as the most recently executed program for its
// source, demoting entries pushed out of the strong window.
func (r *recencyList) Touch(sourceID string, prog *LoadedProgram) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.byID[sourceID]; ok {
		ent := el.Value.(*recencyEntry)
		ent.strong = prog
		ent.weakRef = weak.Make(prog)
		r.order.MoveToFront(el)
	} else {
		ent := &recencyEntry{sourceID: sourceID, strong: prog, weakRef: weak.Make(prog)}
		r.byID[sourceID] = r.order.PushFront(ent)
	}
	r.demoteLocked()
}

// demoteLocked drops strong references outside the window. Caller holds
// r.mu.
func (r *recencyList) demoteLocked() {
	n := 0
	for el := r.order.Front(); el != nil; el = el.Next() {
		ent := el.Value.(*recencyEntry)
		n++
		if n > r.strongMax {
			ent.strong = nil
		}
	}
}

// Lookup returns the cached program for the source if it is still
// reachable. A hit counts as a use: the entry moves to the front and is
// re-promoted into the strong window, so demotion tracks least-recent
// use rather than insertion order. Entries whose weak referent was
// collected are dropped.
func (r *recencyList) Lookup(sourceID string) (*LoadedProgram, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.byID[sourceID]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*recencyEntry)
	prog := ent.strong
	if prog == nil {
		prog = ent.weakRef.Value()
	}
	if prog == nil {
		r.order.Remove(el)
		delete(r.byID, sourceID)
		return nil, false
	}
	ent.strong = prog
	r.order.MoveToFront(el)
	r.demoteLocked()
	return prog, true
}

// Len reports how many entries the list currently tracks, including
// weak-only ones.
func (r *recencyList) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
