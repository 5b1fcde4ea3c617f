package sequenced

import (
	"sort"
	"sync"
	"testing"
)

func TestCounter_Next(t *testing.T) {
	c := NewAllocator(10)
	if got := c.Next(); got != 11 {
		t.Errorf("Next() = %d, want 11", got)
	}
	if got := c.Next(); got != 12 {
		t.Errorf("Next() = %d, want 12", got)
	}
	if got := c.Last(); got != 12 {
		t.Errorf("Last() = %d, want 12", got)
	}
}

func TestCounter_NegativeStart(t *testing.T) {
	c := NewAllocator(-5)
	if got := c.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
}

func TestCounter_ConcurrentUnique(t *testing.T) {
	c := NewAllocator(0)

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	var all []int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			prev := int64(0)
			for j := 0; j < perWorker; j++ {
				id := c.Next()
				if id <= prev {
					t.Errorf("id %d not increasing after %d", id, prev)
				}
				prev = id
				local = append(local, id)
			}
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("duplicate id %d", all[i])
		}
	}
	if len(all) != workers*perWorker {
		t.Errorf("len = %d, want %d", len(all), workers*perWorker)
	}
}

func TestSetDefault(t *testing.T) {
	prev := SetDefault(NewAllocator(100))
	defer SetDefault(prev)

	v := New("payload")
	if v.ID != 101 {
		t.Errorf("ID = %d, want 101", v.ID)
	}
	if v.Value != "payload" {
		t.Errorf("Value = %q, want payload", v.Value)
	}
	if NextID() != 102 {
		t.Error("NextID should use the injected allocator")
	}
}

func TestSequenced_SameSequence(t *testing.T) {
	a := NewWithID(1, 7)
	b := NewWithID(2, 7)
	c := NewFrom(NewAllocator(7), 1)

	if !a.SameSequence(b) {
		t.Error("values with equal ids should share a sequence")
	}
	if a.SameSequence(c) {
		t.Error("values with different ids should not share a sequence")
	}
}
