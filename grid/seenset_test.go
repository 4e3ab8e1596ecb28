package grid

import (
	"fmt"
	"testing"
)

func TestSeenSetAddAndDuplicate(t *testing.T) {
	s := newSeenSet(10)

	if !s.Add("a") {
		t.Error("first add should report new")
	}
	if s.Add("a") {
		t.Error("second add of same id should report duplicate")
	}
	if !s.Has("a") {
		t.Error("expected id to be present")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 member, got %d", s.Len())
	}
}

func TestSeenSetFIFOEviction(t *testing.T) {
	s := newSeenSet(3)
	s.Add("a")
	s.Add("b")
	s.Add("c")
	s.Add("d") // evicts "a"

	if s.Has("a") {
		t.Error("oldest id should have been evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !s.Has(id) {
			t.Errorf("expected %s to survive eviction", id)
		}
	}
	if s.Len() != 3 {
		t.Errorf("expected capacity-bounded size 3, got %d", s.Len())
	}

	// evicted id can be re-added and counts as new again
	if !s.Add("a") {
		t.Error("re-adding an evicted id should report new")
	}
}

func TestSeenSetBoundedUnderChurn(t *testing.T) {
	s := newSeenSet(1000)
	for i := 0; i < 5000; i++ {
		s.Add(fmt.Sprintf("order-%d", i))
	}
	if s.Len() != 1000 {
		t.Errorf("expected size pinned at 1000, got %d", s.Len())
	}
	if s.Has("order-0") {
		t.Error("earliest ids should have been evicted")
	}
	if !s.Has("order-4999") {
		t.Error("latest id should be present")
	}
}
