package codecache

import (
	"sync"
	"testing"
)

func TestSourceIDConcurrent(t *testing.T) {
	src := NewSource("t.kes", "1 + 1")
	want := src.ID()

	// A shared Source is read from several compilation goroutines at
	// once; every reader must see the same identity.
	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = src.ID()
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if id != want {
			t.Errorf("Reader %d saw id %q, want %q", i, id, want)
		}
	}
}
