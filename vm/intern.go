package vm

import "sync"

// ---------------------------------------------------------------------------
// Interned strings and the callable registry
// ---------------------------------------------------------------------------

// The NaN payload carries an ID, not a pointer: a raw pointer stored in
// a uint64 is invisible to the garbage collector, so the referent could
// be collected while the Value is live. Boxed strings intern into a
// table (equal strings share one ID) and boxed callables register into
// a table of their own.

// stringTable interns boxed string text to unique IDs.
type stringTable struct {
	mu     sync.RWMutex
	byText map[string]uint32
	byID   []string
}

var boxedStrings = &stringTable{byText: make(map[string]uint32)}

// intern returns the ID for text, creating a new one if needed.
func (st *stringTable) intern(text string) uint32 {
	st.mu.RLock()
	if id, ok := st.byText[text]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring the write lock.
	if id, ok := st.byText[text]; ok {
		return id
	}
	id := uint32(len(st.byID))
	st.byText[text] = id
	st.byID = append(st.byID, text)
	return id
}

// text returns the interned string for an ID, or "" if invalid.
func (st *stringTable) text(id uint32) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// funcTable registers boxed callables.
type funcTable struct {
	mu   sync.RWMutex
	byID []Callable
}

var boxedFuncs = &funcTable{}

// register adds a callable and returns its ID.
func (ft *funcTable) register(c Callable) uint32 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	id := uint32(len(ft.byID))
	ft.byID = append(ft.byID, c)
	return id
}

// lookup returns the callable for an ID, or nil if invalid.
func (ft *funcTable) lookup(id uint32) Callable {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	if int(id) >= len(ft.byID) {
		return nil
	}
	return ft.byID[id]
}

// boxedObjects pins every object that has been boxed into a Value. The
// 48-bit payload for objects is still a pointer (property slots need
// pointer-speed access), so the referent must stay reachable by the
// collector for as long as any Value may decode it.
var boxedObjects = struct {
	mu  sync.Mutex
	set map[*ScriptObject]struct{}
}{set: make(map[*ScriptObject]struct{})}

func pinObject(obj *ScriptObject) {
	boxedObjects.mu.Lock()
	boxedObjects.set[obj] = struct{}{}
	boxedObjects.mu.Unlock()
}
