package queue

import (
	"sync"
	"testing"
)

type reading struct {
	Zone  string
	Score float64
}

func TestQueue_NewIsEmpty(t *testing.T) {
	for _, capacity := range []int{0, 3} {
		q := New[reading](capacity)
		if q.Len() != 0 {
			t.Errorf("cap %d: expected length 0, got %d", capacity, q.Len())
		}
		if got := q.Items(); len(got) != 0 {
			t.Errorf("cap %d: expected no items, got %v", capacity, got)
		}
	}
}

func TestQueue_UnboundedKeepsEverything(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	q.Push(100, 101)

	items := q.Items()
	if len(items) != 102 || items[0] != 0 || items[101] != 101 {
		t.Errorf("unexpected items: len %d", len(items))
	}
}

func TestQueue_RingOverwritesOldest(t *testing.T) {
	q := New[int](3)

	q.Push(1, 2, 3)
	q.Push(4)

	items := q.Items()
	if len(items) != 3 || items[0] != 2 || items[1] != 3 || items[2] != 4 {
		t.Errorf("expected [2 3 4], got %v", items)
	}

	// a single push larger than capacity keeps only the newest
	q.Push(5, 6, 7, 8, 9)
	items = q.Items()
	if len(items) != 3 || items[0] != 7 || items[1] != 8 || items[2] != 9 {
		t.Errorf("expected [7 8 9], got %v", items)
	}
}

func TestQueue_ItemsIsCopy(t *testing.T) {
	q := New[reading](2)
	q.Push(reading{Zone: "Zone 1", Score: 40})

	items := q.Items()
	items[0].Score = 99

	if q.Items()[0].Score != 40 {
		t.Error("mutating Items() result changed the queue")
	}
}

func TestQueue_ClearThenReuse(t *testing.T) {
	for _, capacity := range []int{0, 2} {
		q := New[reading](capacity)
		q.Push(reading{Zone: "Zone 1"}, reading{Zone: "Zone 2"}, reading{Zone: "Zone 3"})

		q.Clear()
		if q.Len() != 0 {
			t.Errorf("cap %d: expected empty queue after clear", capacity)
		}

		q.Push(reading{Zone: "Zone 4"})
		items := q.Items()
		if len(items) != 1 || items[0].Zone != "Zone 4" {
			t.Errorf("cap %d: unexpected items after reuse: %+v", capacity, items)
		}
	}
}

func TestQueue_ConcurrentBounded(t *testing.T) {
	q := New[int](50)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.Push(id)
			_ = q.Items()
		}(i)
	}
	wg.Wait()

	if q.Len() != 50 {
		t.Errorf("expected 50 items, got %d", q.Len())
	}
	seen := map[int]bool{}
	for _, v := range q.Items() {
		if seen[v] {
			t.Errorf("duplicate item %d", v)
		}
		seen[v] = true
	}
}
