package queue

import (
	"sync"
	"testing"
)

func TestFlushRunsPendingInOrder(t *testing.T) {
	var q Queue[string]
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		q.Add(func(v string) {
			if v != "ready" {
				t.Fatalf("callback %d got %q", i, v)
			}
			got = append(got, i)
		})
	}
	if q.Len() != 3 {
		t.Fatalf("Len=%d want 3", q.Len())
	}
	q.Flush("ready")
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("order: got %v", got)
	}
	if q.Len() != 0 || !q.Flushed() {
		t.Fatalf("queue should be drained and flushed")
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	var q Queue[int]
	calls := 0
	q.Add(func(int) { calls++ })
	q.Flush(1)
	q.Flush(2)
	if calls != 1 {
		t.Fatalf("callback ran %d times", calls)
	}

	// late Add observes the first flushed value, synchronously
	var late int
	q.Add(func(v int) { late = v })
	if late != 1 {
		t.Fatalf("late Add got %d want 1", late)
	}
}

func TestAddNilIgnored(t *testing.T) {
	var q Queue[int]
	q.Add(nil)
	if q.Len() != 0 {
		t.Fatalf("nil callback should not be buffered")
	}
	q.Flush(0)
	q.Add(nil)
}

func TestConcurrentAddAndFlushNeverLoses(t *testing.T) {
	for round := 0; round < 50; round++ {
		var q Queue[int]
		var mu sync.Mutex
		seen := 0

		var wg sync.WaitGroup
		const n = 32
		wg.Add(n + 1)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				q.Add(func(int) {
					mu.Lock()
					seen++
					mu.Unlock()
				})
			}()
		}
		go func() {
			defer wg.Done()
			q.Flush(7)
		}()
		wg.Wait()

		if seen != n {
			t.Fatalf("round %d: %d callbacks ran, want %d", round, seen, n)
		}
	}
}
