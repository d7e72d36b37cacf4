// ABOUTME: Generational handles naming sources across the control/render boundary
// ABOUTME: Indices are allocated by control and returned by render when freed
package sound

import (
	"fmt"
	"sync"
)

// Handle names a source. The low 32 bits hold the slot index and the high
// 32 bits its generation, so a handle to a destroyed source never matches
// the slot's next occupant. The zero Handle is never valid.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32      { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	return fmt.Sprintf("source(%d.%d)", h.index(), h.generation())
}

// BusHandle names a bus. Bus 0 is the master bus.
type BusHandle uint32

// MasterBus receives every other bus
const MasterBus BusHandle = 0

// EffectHandle names an effect within its bus chain
type EffectHandle uint32

// handleAllocator hands out source slots on the control side
type handleAllocator struct {
	mu       sync.Mutex
	gens     []uint32
	free     []uint32
	released <-chan uint32
}

func newHandleAllocator(size int, released <-chan uint32) *handleAllocator {
	a := &handleAllocator{
		gens:     make([]uint32, size),
		free:     make([]uint32, 0, size),
		released: released,
	}
	for i := size - 1; i >= 0; i-- {
		a.gens[i] = 1
		a.free = append(a.free, uint32(i))
	}
	return a
}

// alloc reserves a slot, first reclaiming slots the render side released
func (a *handleAllocator) alloc() (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reclaimLocked()
	if len(a.free) == 0 {
		return 0, ErrTooManySources
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	return makeHandle(idx, a.gens[idx]), nil
}

// abandon returns a slot whose create command never reached the render side
func (a *handleAllocator) abandon(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retireLocked(h.index())
}

func (a *handleAllocator) reclaimLocked() {
	for {
		select {
		case idx := <-a.released:
			a.retireLocked(idx)
		default:
			return
		}
	}
}

func (a *handleAllocator) retireLocked(idx uint32) {
	a.gens[idx]++
	if a.gens[idx] == 0 {
		a.gens[idx] = 1
	}
	a.free = append(a.free, idx)
}
