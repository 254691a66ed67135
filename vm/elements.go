package vm

import "sync"

// ---------------------------------------------------------------------------
// ElementStorage: array backing storage on the representation lattice
// ---------------------------------------------------------------------------

// ElementStorage holds an array's elements in the narrowest
// representation that has been needed so far. Widening is one-directional
// and monotonic: once storage has widened it never narrows back
// implicitly. A widen preserves every element's value and the logical
// length.
//
// FastGet and FastSet are the speculative hooks: they reject wrong-kind
// or out-of-capacity access with a representation failure, handing
// control back to the generic Get/Set path, which converts and retries.
type ElementStorage struct {
	mu     sync.Mutex
	kind   Kind
	length int

	ints []int64
	nums []float64
	vals []Value
}

// NewElementStorage creates int-kind storage with the given length.
func NewElementStorage(length int) *ElementStorage {
	return &ElementStorage{kind: KindInt, length: length, ints: make([]int64, length)}
}

// Kind returns the storage's current representation.
func (s *ElementStorage) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Len returns the logical length.
func (s *ElementStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// ---------------------------------------------------------------------------
// Fast paths
// ---------------------------------------------------------------------------

// FastSet stores v at index i without conversion. It raises a
// representation failure when the index is out of capacity or v does not
// fit the current representation; the caller falls back to Set.
func (s *ElementStorage) FastSet(i int, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 {
		return NewRangeError("element index %d out of range", i)
	}
	if i >= s.length {
		// Out of capacity: the generic path grows the array.
		return failureFor(v, NoLocation, Widest(s.kind, KindNumber))
	}

	switch s.kind {
	case KindInt:
		if v.IsSmallInt() {
			s.ints[i] = v.AsInt()
			return nil
		}
		return NewSpeculationFailure(v, NoLocation)
	case KindNumber:
		if v.IsNumber() {
			s.nums[i] = v.AsFloat()
			return nil
		}
		return NewSpeculationFailure(v, NoLocation)
	default:
		s.vals[i] = v
		return nil
	}
}

// FastGet loads the element at index i. It raises a representation
// failure for out-of-range access so the generic path can decide.
func (s *ElementStorage) FastGet(i int) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= s.length {
		return Undefined, failureFor(Undefined, NoLocation, KindObject)
	}
	return s.loadLocked(i), nil
}

// ---------------------------------------------------------------------------
// Generic, always-correct paths
// ---------------------------------------------------------------------------

// Set stores v at index i, widening the representation and growing the
// array as needed.
func (s *ElementStorage) Set(i int, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 {
		return NewRangeError("element index %d out of range", i)
	}
	s.widenLocked(Widest(s.kind, KindOf(v)))
	if i >= s.length {
		s.growLocked(i + 1)
	}

	switch s.kind {
	case KindInt:
		s.ints[i] = v.AsInt()
	case KindNumber:
		s.nums[i] = v.AsFloat()
	default:
		s.vals[i] = v
	}
	return nil
}

// Get loads the element at index i; out-of-range reads are undefined.
func (s *ElementStorage) Get(i int) Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.length {
		return Undefined
	}
	return s.loadLocked(i)
}

// Widen forces the representation up to at least kind. Narrowing
// requests are ignored.
func (s *ElementStorage) Widen(kind Kind) {
	s.mu.Lock()
	s.widenLocked(kind)
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *ElementStorage) loadLocked(i int) Value {
	switch s.kind {
	case KindInt:
		return FromInt(s.ints[i])
	case KindNumber:
		return FromFloat(s.nums[i])
	default:
		return s.vals[i]
	}
}

// widenLocked converts storage to a broader representation, preserving
// element values and logical length. The cell size differs between every
// pair of representations here, so each step copies.
func (s *ElementStorage) widenLocked(kind Kind) {
	if kind <= s.kind {
		return
	}

	switch {
	case s.kind == KindInt && kind == KindNumber:
		nums := make([]float64, s.length)
		for i, n := range s.ints {
			nums[i] = float64(n)
		}
		s.nums, s.ints = nums, nil

	case s.kind == KindInt && kind == KindObject:
		vals := make([]Value, s.length)
		for i, n := range s.ints {
			vals[i] = FromInt(n)
		}
		s.vals, s.ints = vals, nil

	case s.kind == KindNumber && kind == KindObject:
		vals := make([]Value, s.length)
		for i, f := range s.nums {
			vals[i] = FromFloat(f)
		}
		s.vals, s.nums = vals, nil
	}
	s.kind = kind
}

func (s *ElementStorage) growLocked(length int) {
	if length <= s.length {
		return
	}
	switch s.kind {
	case KindInt:
		grown := make([]int64, length)
		copy(grown, s.ints)
		s.ints = grown
	case KindNumber:
		grown := make([]float64, length)
		copy(grown, s.nums)
		s.nums = grown
	default:
		grown := make([]Value, length)
		copy(grown, s.vals)
		for i := s.length; i < length; i++ {
			grown[i] = Undefined
		}
		s.vals = grown
	}
	s.length = length
}
