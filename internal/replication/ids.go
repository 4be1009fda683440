// Package replication maps NetworkIDs to local entities on both peers and
// holds the capability interfaces and type registry used to spawn them.
package replication

import (
	"math/rand/v2"
	"sync"

	"github.com/energizer-project/netsync/internal/protocol"
)

// Allocator hands out NetworkIDs. Implementations never return zero.
// Allocators do not check ids against live sessions or entities.
type Allocator interface {
	Allocate() protocol.NetworkID
}

// RandomAllocator draws ids uniformly from the non-zero uint32 range.
type RandomAllocator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAllocator creates an allocator seeded from the runtime source.
func NewRandomAllocator() *RandomAllocator {
	return &RandomAllocator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededAllocator creates a reproducible allocator.
func NewSeededAllocator(seed uint64) *RandomAllocator {
	return &RandomAllocator{rng: rand.New(rand.NewPCG(seed, seed+1))}
}

// Allocate returns a random non-zero id.
func (a *RandomAllocator) Allocate() protocol.NetworkID {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		if id := protocol.NetworkID(a.rng.Uint32()); id != 0 {
			return id
		}
	}
}

// SequenceAllocator returns 1, 2, 3, ... and is used where ids must be
// predictable.
type SequenceAllocator struct {
	mu   sync.Mutex
	next protocol.NetworkID
}

// NewSequenceAllocator starts the sequence at first (or 1 when first is 0).
func NewSequenceAllocator(first protocol.NetworkID) *SequenceAllocator {
	if first == 0 {
		first = 1
	}
	return &SequenceAllocator{next: first}
}

// Allocate returns the next id in sequence, skipping zero on wrap.
func (a *SequenceAllocator) Allocate() protocol.NetworkID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	if a.next == 0 {
		a.next = 1
	}
	return id
}
