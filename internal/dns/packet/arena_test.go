package packet

import "testing"

func TestArenaStableBeforeGrowth(t *testing.T) {
	a := newArena(2, 2)
	r1 := a.newRRset()
	r2 := a.newRRset()
	r1.hash = 1
	r2.hash = 2
	if r1.hash != 1 || r2.hash != 2 {
		t.Fatalf("pre-growth pointers not stable")
	}
}

func TestArenaGrowthKeepsEarlierPointersValid(t *testing.T) {
	a := newArena(1, 1)
	first := a.newRR()
	first.ttl = 42
	// force growth past the pre-sized capacity
	for i := 0; i < 5; i++ {
		a.newRR()
	}
	if first.ttl != 42 {
		t.Fatalf("growth invalidated an earlier pointer: ttl = %d, want 42", first.ttl)
	}
}

func TestArenaFreeAll(t *testing.T) {
	a := newArena(4, 4)
	a.newRRset()
	a.freeAll()
	if a.rrsets != nil || a.rrs != nil {
		t.Fatalf("freeAll did not release backing slices")
	}
}
