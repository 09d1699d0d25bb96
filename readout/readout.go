/*Package readout implements the acquisition core of the line-sensor
readout controller: three chained transfer engines that move each scan
off the sensor bus and into a summation buffer, and the controller that
drives them from trigger events.

On the board this chain is three DMA channels wired completion-to-start
with no processor involvement.  Here the chain is an explicit state
machine serviced by a single event loop; because the loop serializes the
engines' service routines, engine N's full cycle still happens before
engine N+1 begins, which is the ordering guarantee the hardware wiring
provided.

The timing contract is unchanged from the hardware design and none of
its violations are detected at runtime:

  - the capture engine must be armed before the sensor starts scanning,
    or the first edges are lost
  - the exposure-completion trigger must arrive only after a full scan,
    or the aggregated line is a mixture of two exposures
  - the consumer must clear the data-ready flag before the next
    aggregation completes, or the unread line is silently overwritten
  - a trigger source that stops stalls the chain forever; a watchdog, if
    wanted, belongs above this package
*/
package readout

import "time"

const (
	// NPIX is the number of active pixels in the sensor
	NPIX = 3000

	// NBIT is the number of significant bits the ADC drives onto the bus
	NBIT = 12

	// Padding is the count of extra words per scan that absorb the
	// sensor's start and end of scan timing artifacts
	Padding = 100

	// BufSize is the transfer length of one full scan in words
	BufSize = NPIX + Padding

	// DataReady is the sentinel the signal engine writes into the flag
	// cell when an aggregated line is available
	DataReady byte = 0x01

	// ShortExposure is the exposure time below which a single scan's
	// signal to noise ratio is poor enough to make averaging attractive
	ShortExposure = 3 * time.Millisecond
)

// Register is a 16-bit readable bus register.  The value is assumed
// stable for the duration of one transfer; only the low NBIT bits are
// significant.
type Register interface {
	Read() uint16
}

// Store owns the pipeline's buffers and data-ready flag.  All buffers
// are allocated once and live for the process lifetime; each has exactly
// one writer engine during normal operation.
type Store struct {
	// Capture receives one word per pixel-clock edge from the capture engine
	Capture []uint16

	// Staging is the consumer's working copy, zeroed before each run
	Staging []uint16

	// Sum receives whole scans from the aggregation engine.  It is twice
	// the scan length so two consecutive exposures fit before the
	// consumer reads it.
	Sum []uint16

	flag byte
}

// NewStore allocates the buffer set, zero-filled
func NewStore() *Store {
	return &Store{
		Capture: make([]uint16, BufSize),
		Staging: make([]uint16, BufSize),
		Sum:     make([]uint16, 2*BufSize),
	}
}

// Flag returns the current value of the data-ready flag
func (s *Store) Flag() byte {
	return s.flag
}

// ClearFlag resets the data-ready flag.  Only the consumer calls this;
// it must do so before the next aggregation cycle completes or the
// unread line is overwritten.
func (s *Store) ClearFlag() {
	s.flag = 0
}

// ready is the signal engine's single-byte transfer
func (s *Store) ready() {
	s.flag = DataReady
}
