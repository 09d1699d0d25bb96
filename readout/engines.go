package readout

import "github.com/spectrobench/linescan/dma"

// CaptureEngine copies the bus register into successive capture slots,
// one word per pixel-clock edge, wrapping after a full scan.
type CaptureEngine struct {
	bus   Register
	ring  *dma.Ring
	desc  dma.Descriptor
	armed bool
}

// NewCaptureEngine wires a capture engine between the bus register and
// the capture buffer
func NewCaptureEngine(bus Register, dst []uint16) (*CaptureEngine, error) {
	desc, err := dma.NewDescriptor(2, len(dst))
	if err != nil {
		return nil, err
	}
	return &CaptureEngine{bus: bus, ring: dma.NewRing(dst), desc: desc}, nil
}

// Arm enables the engine.  Arm must be called strictly before the sensor
// is allowed to start scanning; an edge that fires first is lost, and
// that loss is not detected.
func (e *CaptureEngine) Arm() {
	e.armed = true
}

// Disarm disables the engine between cycles.  There is no mid-cycle
// cancellation.
func (e *CaptureEngine) Disarm() {
	e.armed = false
}

// Armed returns true if the engine will service edges
func (e *CaptureEngine) Armed() bool {
	return e.armed
}

// Edge services one pixel-clock trigger: one word from the bus register
// into the next capture slot.  A mistimed edge silently produces a stale
// or duplicate sample; that is the sensor's timing contract, not an
// error this engine can observe.
func (e *CaptureEngine) Edge() {
	if !e.armed {
		return
	}
	e.ring.Put(e.bus.Read())
}

// Descriptor returns the engine's ring descriptor
func (e *CaptureEngine) Descriptor() dma.Descriptor {
	return e.desc
}

// AggregationEngine moves the whole capture buffer into the summation
// buffer in one major cycle per exposure-completion trigger, then re-arms
// itself with its pointers back at the buffer bases.
type AggregationEngine struct {
	src []uint16
	dst []uint16

	// samples is the number of consecutive exposures accumulated per
	// line; 1 means a straight copy
	samples int

	// pass counts exposures accumulated toward the current line
	pass int

	onComplete func()
}

// NewAggregationEngine wires an aggregation engine between the capture
// and summation buffers in single-sample mode
func NewAggregationEngine(src, dst []uint16) *AggregationEngine {
	return &AggregationEngine{src: src, dst: dst, samples: 1}
}

// SetSamples configures how many consecutive exposures accumulate into
// one line.  1 selects the straight-copy mode.  The hardware variant was
// fixed at two; the software engine takes any positive count.
func (e *AggregationEngine) SetSamples(n int) {
	if n < 1 {
		n = 1
	}
	e.samples = n
	e.pass = 0
}

// Samples returns the configured exposures per line
func (e *AggregationEngine) Samples() int {
	return e.samples
}

// MidCycle returns true while the summation buffer holds a partial
// accumulation, between the first and last pass of an averaged line
func (e *AggregationEngine) MidCycle() bool {
	return e.pass != 0
}

// TriggerAtCompletion wires fn to run when a full line has been
// aggregated; this is how the signal engine chains off this one
func (e *AggregationEngine) TriggerAtCompletion(fn func()) {
	e.onComplete = fn
}

// Fire services one exposure-completion trigger.  In single-sample mode
// it is one straight copy into the first half of the summation buffer.
// In averaging mode each pass adds the capture buffer into the same
// destination words; pulling the source cursor back to the capture base
// between passes replaces the mid-cycle source-reset interrupt the
// hardware needed.  The completion trigger fires only once the line is
// whole, so downstream never observes a partial state.
func (e *AggregationEngine) Fire() {
	if e.samples == 1 {
		copy(e.dst[:len(e.src)], e.src)
		e.complete()
		return
	}
	if e.pass == 0 {
		for i := range e.dst[:len(e.src)] {
			e.dst[i] = 0
		}
	}
	for i, v := range e.src {
		e.dst[i] += v
	}
	e.pass++
	if e.pass >= e.samples {
		e.pass = 0
		e.complete()
	}
}

func (e *AggregationEngine) complete() {
	if e.onComplete != nil {
		e.onComplete()
	}
}

// SignalEngine performs the chain's final transfer: a single sentinel
// byte into the data-ready flag cell.
type SignalEngine struct {
	store *Store
}

// NewSignalEngine wires the signal engine to the store's flag cell
func NewSignalEngine(store *Store) *SignalEngine {
	return &SignalEngine{store: store}
}

// Fire writes the sentinel.  The write is a single byte, so the flag
// transition is atomic from the consumer's point of view.  Firing again
// before the consumer clears the flag re-sets it as if fresh; the unread
// line is silently discarded.
func (e *SignalEngine) Fire() {
	e.store.ready()
}
