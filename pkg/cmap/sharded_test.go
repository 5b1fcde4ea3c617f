package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{2, 2},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[int]()

	m.Set("rx://a", 1)
	m.Set("rx://b", 2)
	m.Set("rx://a", 10)

	if v, ok := m.Get("rx://a"); !ok || v != 10 {
		t.Errorf("Get(rx://a) = (%d, %v), want (10, true)", v, ok)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	m.Delete("rx://a")
	if _, ok := m.Get("rx://a"); ok {
		t.Error("Get(rx://a) after Delete should report false")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", m.Count())
	}
}

func TestSetIfAbsentAndPop(t *testing.T) {
	m := New[string]()

	if !m.SetIfAbsent("k", "first") {
		t.Fatal("SetIfAbsent on empty map should succeed")
	}
	if m.SetIfAbsent("k", "second") {
		t.Fatal("SetIfAbsent on existing key should fail")
	}
	if v, _ := m.Get("k"); v != "first" {
		t.Errorf("Get(k) = %q, want first", v)
	}

	v, ok := m.Pop("k")
	if !ok || v != "first" {
		t.Errorf("Pop(k) = (%q, %v), want (first, true)", v, ok)
	}
	if _, ok := m.Pop("k"); ok {
		t.Error("second Pop should report false")
	}
}

func TestKeysAndSortedAreOrdered(t *testing.T) {
	m := NewWithShards[int](4)
	for i, k := range []string{"c", "a", "d", "b"} {
		m.Set(k, i)
	}

	keys := m.Keys()
	want := []string{"a", "b", "c", "d"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}

	sorted := m.Sorted()
	for i, e := range sorted {
		if e.Key != want[i] {
			t.Errorf("Sorted()[%d].Key = %q, want %q", i, e.Key, want[i])
		}
	}
	if sorted[0].Value != 1 {
		t.Errorf("Sorted()[0].Value = %d, want 1", sorted[0].Value)
	}
}

func TestRangeEarlyStop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	n := 0
	m.Range(func(string, int) bool {
		n++
		return n < 10
	})
	if n != 10 {
		t.Errorf("Range visited %d items, want 10", n)
	}
}

func TestShardIndexIsStable(t *testing.T) {
	a := NewWithShards[int](8)
	b := NewWithShards[int](8)
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("rx://subscriptions/%d", i)
		if a.shardIndex(k) != b.shardIndex(k) {
			t.Fatalf("shardIndex(%q) differs between maps", k)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	const goroutines, ops = 50, 200

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				k := fmt.Sprintf("%d/%d", base, j)
				m.Set(k, j)
				m.Get(k)
				m.Pop(k)
				m.Set(k, j)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != goroutines*ops {
		t.Errorf("Count() = %d, want %d", m.Count(), goroutines*ops)
	}
}
