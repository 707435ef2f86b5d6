package service

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestAllocateMintsSequentialIdentifiers(t *testing.T) {
	a := NewIdentifierAllocator()
	for i, want := range []string{"ISO-1", "ISO-2", "ISO-3"} {
		if got := a.Allocate(nil); got != want {
			t.Fatalf("allocation %d = %q, want %q", i, got, want)
		}
	}
	if a.Minted() != 3 {
		t.Fatalf("Minted() = %d, want 3", a.Minted())
	}
}

func TestReleaseUnreferencedReusesLowestFirst(t *testing.T) {
	a := NewIdentifierAllocator()
	for i := 0; i < 4; i++ {
		a.Allocate(nil)
	}
	a.Release("ISO-3", false)
	a.Release("ISO-2", false)

	if got := a.Allocate(nil); got != "ISO-2" {
		t.Fatalf("first reuse = %q, want ISO-2", got)
	}
	if got := a.Allocate(nil); got != "ISO-3" {
		t.Fatalf("second reuse = %q, want ISO-3", got)
	}
	if got := a.Allocate(nil); got != "ISO-5" {
		t.Fatalf("after pool drained = %q, want ISO-5", got)
	}
}

func TestReleaseReferencedReserves(t *testing.T) {
	a := NewIdentifierAllocator()
	a.Allocate(nil)
	a.Allocate(nil)

	a.Release("ISO-1", true)

	if !a.Reserved("ISO-1") {
		t.Fatal("ISO-1 should be reserved")
	}
	if len(a.Free()) != 0 {
		t.Fatalf("reserved identifier landed in pool: %v", a.Free())
	}
	if got := a.Allocate(nil); got != "ISO-3" {
		t.Fatalf("Allocate() = %q, want ISO-3", got)
	}
}

func TestAllocateSkipsPooledIdentifiersWithResults(t *testing.T) {
	a := NewIdentifierAllocator()
	a.Allocate(nil)
	a.Allocate(nil)
	a.Release("ISO-1", false)
	a.Release("ISO-2", false)

	// ISO-1 picked up a result from an in-flight request after release.
	referenced := func(id string) bool { return id == "ISO-1" }

	if got := a.Allocate(referenced); got != "ISO-2" {
		t.Fatalf("Allocate() = %q, want ISO-2", got)
	}
	if got := a.Allocate(referenced); got != "ISO-3" {
		t.Fatalf("Allocate() = %q, want ISO-3", got)
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	a := NewIdentifierAllocator()
	a.Allocate(nil)
	a.Allocate(nil)
	a.Release("ISO-1", true)
	a.Release("ISO-2", false)

	a.Reset()

	if !reflect.DeepEqual(a, NewIdentifierAllocator()) {
		t.Fatalf("reset allocator differs from a fresh one: %+v", a)
	}
	if got := a.Allocate(nil); got != "ISO-1" {
		t.Fatalf("Allocate() after reset = %q, want ISO-1", got)
	}
}

func TestNoIdentifierAllocatedTwiceWhileLive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewIdentifierAllocator()
	live := map[string]bool{}
	withResults := map[string]bool{}
	referenced := func(id string) bool { return withResults[id] }

	for step := 0; step < 2000; step++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			id := a.Allocate(referenced)
			if live[id] {
				t.Fatalf("step %d: %q allocated while still live", step, id)
			}
			if a.Reserved(id) {
				t.Fatalf("step %d: reserved %q handed out", step, id)
			}
			live[id] = true
			if rng.Intn(4) == 0 {
				withResults[id] = true
			}
			continue
		}
		for id := range live {
			delete(live, id)
			a.Release(id, withResults[id])
			break
		}
	}
}
