/*Package dma models the transfer primitives of the readout board's DMA
controller: the ring descriptor that governs circular addressing, and the
software ring the capture engine writes through.

The descriptor keeps the hardware's power-of-two address-mask bookkeeping
because the values it produces (wrap modulus, restore offset) are part of
the board bring-up contract and are worth validating.  The Ring type does
not inherit that restriction; a software ring wraps with ordinary modulo
arithmetic and any capacity is legal.
*/
package dma

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrModulusNotPow2 is generated when a descriptor's wrap modulus is
	// not a power of two
	ErrModulusNotPow2 = errors.New("wrap modulus is not a power of two")

	// ErrModulusTooSmall is generated when a descriptor's wrap modulus is
	// smaller than its element count
	ErrModulusTooSmall = errors.New("wrap modulus smaller than element count")
)

// NextPow2 returns the smallest power of two greater than or equal to n.
// n < 1 returns 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(bits.Len(uint(n-1)))
}

// Descriptor holds the circular-addressing fields of one transfer engine:
// the element stride in bytes, the number of elements per major loop, and
// the power-of-two wrap modulus the address-mask hardware uses.
type Descriptor struct {
	// Stride is the byte offset between consecutive elements
	Stride int

	// Count is the number of elements transferred per major loop
	Count int

	// Modulus is the element wrap modulus, always a power of two >= Count
	Modulus int
}

// NewDescriptor builds a descriptor for count elements of the given byte
// stride, computing the wrap modulus once at setup time
func NewDescriptor(stride, count int) (Descriptor, error) {
	if stride <= 0 || count <= 0 {
		return Descriptor{}, fmt.Errorf("descriptor stride (%d) and count (%d) must be positive", stride, count)
	}
	return Descriptor{Stride: stride, Count: count, Modulus: NextPow2(count)}, nil
}

// Validate checks the descriptor invariants: Modulus is a power of two
// and is at least Count
func (d Descriptor) Validate() error {
	if d.Modulus < 1 || d.Modulus&(d.Modulus-1) != 0 {
		return ErrModulusNotPow2
	}
	if d.Modulus < d.Count {
		return ErrModulusTooSmall
	}
	return nil
}

// Restore is the signed byte offset applied to the engine's address
// pointer at the end of a major loop.  It is exactly -(Stride*Count), so
// the pointer lands back on the buffer base with zero drift.
func (d Descriptor) Restore() int {
	return -(d.Stride * d.Count)
}

// Span is the byte length of the masked address window, Stride*Modulus
func (d Descriptor) Span() int {
	return d.Stride * d.Modulus
}

// WrapOffset reduces a byte offset from the buffer base into the masked
// window; an offset of exactly Span wraps to the base
func (d Descriptor) WrapOffset(off int) int {
	return off % d.Span()
}

// Ring is a fixed-capacity write cursor over a preallocated word buffer.
// The i-th Put lands in slot i mod capacity.
type Ring struct {
	buf  []uint16
	next int
}

// NewRing wraps buf; the ring writes in place, it does not copy
func NewRing(buf []uint16) *Ring {
	return &Ring{buf: buf}
}

// Put writes v into the next slot and advances the cursor, wrapping to
// slot zero after the last slot
func (r *Ring) Put(v uint16) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
	}
}

// Cursor returns the index of the slot the next Put will write
func (r *Ring) Cursor() int {
	return r.next
}

// Cap returns the ring's capacity in words
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset returns the cursor to slot zero without touching the data
func (r *Ring) Reset() {
	r.next = 0
}
