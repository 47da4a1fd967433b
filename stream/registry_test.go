package stream

import (
	"sync"
	"testing"
)

func TestRegistry_AddIdempotent(t *testing.T) {
	r := NewRegistry()

	if !r.Add(1) {
		t.Error("first Add should report newly added")
	}
	if r.Add(1) {
		t.Error("second Add of same contract should report already present")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Add(1)
	r.Add(2)

	if !r.Remove(1) {
		t.Error("Remove of present contract should report removed")
	}
	if r.Remove(1) {
		t.Error("Remove of absent contract should report not present")
	}
	if r.Contains(1) {
		t.Error("contract 1 should be gone")
	}
	if !r.Contains(2) {
		t.Error("contract 2 should remain")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int64{30, 10, 20} {
		r.Add(id)
	}

	got := r.Snapshot()
	want := []int64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("Snapshot len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot[%d] = %d, want %d (sorted)", i, got[i], want[i])
		}
	}

	// Snapshot is a copy
	got[0] = 999
	if !r.Contains(10) {
		t.Error("mutating the snapshot should not affect the registry")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for j := int64(0); j < 100; j++ {
				r.Add(base*100 + j)
				r.Contains(base*100 + j)
			}
		}(int64(i))
	}
	wg.Wait()

	if r.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", r.Len())
	}
}
