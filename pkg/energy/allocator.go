package energy

import (
	"fmt"
	"sync"
)

// AllocKind names what a reservation is for.
type AllocKind int

const (
	AllocModel     AllocKind = iota // one EnergyModel header
	AllocCapStates                  // n capacity states of a table
	AllocDomain                     // one FrequencyDomain record
	AllocCPUTable                   // n per-CPU model slots
)

func (k AllocKind) String() string {
	switch k {
	case AllocModel:
		return "model"
	case AllocCapStates:
		return "cap_states"
	case AllocDomain:
		return "domain"
	case AllocCPUTable:
		return "cpu_table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Allocator accounts for every object the model builder creates. Each
// successful Alloc is matched by exactly one Free of the same kind and size
// when the object is discarded.
type Allocator interface {
	Alloc(kind AllocKind, n int) error
	Free(kind AllocKind, n int)
}

// HeapAllocator leaves memory management to the Go runtime and never fails.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(AllocKind, int) error { return nil }
func (HeapAllocator) Free(AllocKind, int)        {}

// CountingAllocator tracks outstanding reservations and can be told to fail.
// It is safe for concurrent use.
type CountingAllocator struct {
	// FailAt makes the FailAt-th call to Alloc (1-based) fail. 0 disables.
	FailAt int
	// FailKind, when FailOnKind is set, makes every Alloc of that kind fail.
	FailKind   AllocKind
	FailOnKind bool
	// Limit caps the total outstanding units across kinds. 0 disables.
	Limit int

	mu          sync.Mutex
	calls       int
	frees       int
	outstanding map[AllocKind]int
}

func (a *CountingAllocator) Alloc(kind AllocKind, n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.FailAt > 0 && a.calls == a.FailAt {
		return fmt.Errorf("%w: %s x%d (injected)", ErrAlloc, kind, n)
	}
	if a.FailOnKind && kind == a.FailKind {
		return fmt.Errorf("%w: %s x%d (injected)", ErrAlloc, kind, n)
	}
	if a.Limit > 0 && a.total()+n > a.Limit {
		return fmt.Errorf("%w: %s x%d exceeds limit %d", ErrAlloc, kind, n, a.Limit)
	}
	if a.outstanding == nil {
		a.outstanding = make(map[AllocKind]int)
	}
	a.outstanding[kind] += n
	return nil
}

func (a *CountingAllocator) Free(kind AllocKind, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frees++
	if a.outstanding == nil {
		a.outstanding = make(map[AllocKind]int)
	}
	a.outstanding[kind] -= n
}

// Outstanding returns the units of kind currently reserved.
func (a *CountingAllocator) Outstanding(kind AllocKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding[kind]
}

// Total returns the units currently reserved across kinds.
func (a *CountingAllocator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total()
}

// Calls returns how many Alloc and Free calls were made.
func (a *CountingAllocator) Calls() (allocs, frees int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls, a.frees
}

func (a *CountingAllocator) total() int {
	t := 0
	for _, n := range a.outstanding {
		t += n
	}
	return t
}
