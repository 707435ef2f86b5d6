package service

import (
	"sort"
	"strconv"
	"strings"
)

// IdentifierPrefix prefixes every point identifier.
const IdentifierPrefix = "ISO-"

// IdentifierAllocator hands out point identifiers ISO-1, ISO-2, ...
//
// Identifiers released by removed points are reused, lowest number first,
// unless an isochrone result already carries them; those are reserved and never
// handed out again so exported data stays unambiguous. Not safe for concurrent
// use; the owning session serialises access.
type IdentifierAllocator struct {
	counter  int
	free     []string
	reserved map[string]struct{}
}

// NewIdentifierAllocator returns an allocator in its initial state.
func NewIdentifierAllocator() *IdentifierAllocator {
	a := &IdentifierAllocator{}
	a.Reset()
	return a
}

// Allocate returns the lowest-numbered pooled identifier that no result
// references, or mints a new one. referenced may be nil.
func (a *IdentifierAllocator) Allocate(referenced func(id string) bool) string {
	for i, id := range a.free {
		if referenced != nil && referenced(id) {
			continue
		}
		a.free = append(a.free[:i], a.free[i+1:]...)
		return id
	}
	id := IdentifierPrefix + strconv.Itoa(a.counter)
	a.counter++
	return id
}

// Release returns id to the pool, or reserves it when a result references it.
func (a *IdentifierAllocator) Release(id string, referenced bool) {
	if referenced {
		a.reserved[id] = struct{}{}
		for i, pooled := range a.free {
			if pooled == id {
				a.free = append(a.free[:i], a.free[i+1:]...)
				break
			}
		}
		return
	}
	if _, ok := a.reserved[id]; ok {
		return
	}
	for _, existing := range a.free {
		if existing == id {
			return
		}
	}
	a.free = append(a.free, id)
	sort.Slice(a.free, func(i, j int) bool {
		return identifierNumber(a.free[i]) < identifierNumber(a.free[j])
	})
}

// Reserved reports whether id is permanently excluded from reuse.
func (a *IdentifierAllocator) Reserved(id string) bool {
	_, ok := a.reserved[id]
	return ok
}

// Free returns a copy of the reuse pool in allocation order.
func (a *IdentifierAllocator) Free() []string {
	return append([]string(nil), a.free...)
}

// Minted returns how many identifiers have ever been created.
func (a *IdentifierAllocator) Minted() int {
	return a.counter - 1
}

// Reset restores the initial state: empty pool, nothing reserved, counter 1.
func (a *IdentifierAllocator) Reset() {
	a.counter = 1
	a.free = nil
	a.reserved = make(map[string]struct{})
}

func identifierNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, IdentifierPrefix))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
