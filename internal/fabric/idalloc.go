package fabric

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// maxAllocAttempts bounds the collision-retry loop in Allocate, matching
// the teacher's DiscriminatorAllocator (internal/bfd/discriminator.go).
const maxAllocAttempts = 100

// ErrAllocatorExhausted is returned when no free identifier could be found
// within maxAllocAttempts random draws.
var ErrAllocatorExhausted = fmt.Errorf("link id allocator: exhausted %d attempts", maxAllocAttempts)

// LinkIDAllocator hands out unique, nonzero uint32 virtual-link endpoint
// identifiers, matching the teacher's BFD discriminator allocator: random
// draws via crypto/rand with collision retry rather than a monotonic
// counter, so identifiers don't leak allocation order or count.
type LinkIDAllocator struct {
	mu        sync.Mutex
	allocated map[uint32]struct{}
}

// NewLinkIDAllocator returns an empty allocator.
func NewLinkIDAllocator() *LinkIDAllocator {
	return &LinkIDAllocator{allocated: make(map[uint32]struct{})}
}

// Allocate returns a fresh nonzero uint32 not currently held by any other
// endpoint.
func (a *LinkIDAllocator) Allocate() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for range maxAllocAttempts {
		id, err := randomNonzeroUint32()
		if err != nil {
			return 0, fmt.Errorf("generate link id: %w", err)
		}
		if _, taken := a.allocated[id]; taken {
			continue
		}
		a.allocated[id] = struct{}{}
		return id, nil
	}

	return 0, ErrAllocatorExhausted
}

// Release frees id for future reuse, called when an endpoint is torn down.
func (a *LinkIDAllocator) Release(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, id)
}

// IsAllocated reports whether id is currently held.
func (a *LinkIDAllocator) IsAllocated(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.allocated[id]
	return ok
}

func randomNonzeroUint32() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v != 0 {
			return v, nil
		}
	}
}
