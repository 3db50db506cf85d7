package market

import "testing"

func TestIndex_AddRemove(t *testing.T) {
	x := newIndex()

	x.add(1)
	x.add(2)
	x.add(3)
	x.add(2) // duplicate add is a no-op

	if x.len() != 3 {
		t.Fatalf("len = %d, want 3", x.len())
	}

	x.remove(1)
	if x.contains(1) {
		t.Error("id 1 still present after remove")
	}
	if x.len() != 2 {
		t.Errorf("len = %d, want 2", x.len())
	}

	// Swap-with-last must keep the position map consistent.
	for _, id := range x.ids {
		if got := x.ids[x.pos[id]]; got != id {
			t.Errorf("pos[%d] points at %d", id, got)
		}
	}
}

func TestIndex_RemoveAbsent(t *testing.T) {
	x := newIndex()
	x.add(7)

	x.remove(99) // no-op

	if x.len() != 1 || !x.contains(7) {
		t.Errorf("index disturbed by absent removal: len=%d", x.len())
	}
}

func TestIndex_RemoveLast(t *testing.T) {
	x := newIndex()
	x.add(1)
	x.add(2)

	x.remove(2)

	if x.contains(2) {
		t.Error("id 2 still present")
	}
	if !x.contains(1) {
		t.Error("id 1 lost")
	}
}

func TestIndex_Churn(t *testing.T) {
	x := newIndex()

	for id := uint64(0); id < 100; id++ {
		x.add(id)
	}
	for id := uint64(0); id < 100; id += 2 {
		x.remove(id)
	}

	if x.len() != 50 {
		t.Fatalf("len = %d, want 50", x.len())
	}
	for id := uint64(0); id < 100; id++ {
		want := id%2 == 1
		if got := x.contains(id); got != want {
			t.Errorf("contains(%d) = %v, want %v", id, got, want)
		}
	}
	for _, id := range x.ids {
		if got := x.ids[x.pos[id]]; got != id {
			t.Errorf("pos[%d] points at %d", id, got)
		}
	}
}
