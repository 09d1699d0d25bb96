package readout

import (
	"context"
	"errors"
	"sync"
)

// ErrConfigWhileArmed is generated when a configuration change is
// attempted while the chain is armed; variant selection is a setup-time
// choice, not runtime-dynamic
var ErrConfigWhileArmed = errors.New("configuration cannot change while the chain is armed")

// State is the controller's position in the transfer chain
type State int

const (
	// Capturing means the chain is between exposures, servicing
	// pixel-clock edges
	Capturing State = iota

	// Aggregating means an exposure-completion trigger is being serviced
	Aggregating

	// Signaling means the aggregation cycle completed and the data-ready
	// transfer is in flight
	Signaling
)

func (s State) String() string {
	switch s {
	case Capturing:
		return "capturing"
	case Aggregating:
		return "aggregating"
	case Signaling:
		return "signaling"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the chain for monitoring
type Status struct {
	State string `json:"state"`

	Armed bool `json:"armed"`

	// Samples is the number of exposures accumulated per line; 1 means
	// averaging is off
	Samples int `json:"samples"`

	// Lines counts completed aggregation cycles since startup.  The
	// counter is a software supervisory extension; the board itself has
	// no equivalent and cannot detect a dropped line.
	Lines uint64 `json:"lines"`

	DataReady bool `json:"dataReady"`
}

/*Controller owns the pixel store and wires the three engines into the
fixed capture -> aggregate -> signal pipeline.

Run is the replacement for the board's trigger fabric: it services edge
and exposure events from channels, and because one goroutine services
everything in order, each engine's full cycle happens before the next
engine starts.  The chain is exactly this topology; it is not a general
transfer scheduler.
*/
type Controller struct {
	mu sync.Mutex

	store   *Store
	capture *CaptureEngine
	agg     *AggregationEngine
	sig     *SignalEngine

	state State
	armed bool
	lines uint64

	ready chan struct{}
}

// NewController builds the pipeline over a fresh store, reading samples
// from bus.  The chain comes up disarmed, in single-sample mode.
func NewController(bus Register) (*Controller, error) {
	store := NewStore()
	ce, err := NewCaptureEngine(bus, store.Capture)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		store:   store,
		capture: ce,
		agg:     NewAggregationEngine(store.Capture, store.Sum),
		sig:     NewSignalEngine(store),
		ready:   make(chan struct{}, 1),
	}
	// completion chaining: aggregation's major-cycle completion starts
	// the signal engine, which flags the consumer
	c.agg.TriggerAtCompletion(func() {
		c.state = Signaling
		c.sig.Fire()
		c.lines++
		select {
		case c.ready <- struct{}{}:
		default:
			// consumer is behind; the flag alone carries the (coalesced)
			// notification, same as on the board
		}
	})
	return c, nil
}

// Arm enables the chain.  It must be called before the sensor starts
// scanning; edges that arrive first are lost without detection.
func (c *Controller) Arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	c.capture.Arm()
}

// Disarm disables the chain between cycles
func (c *Controller) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
	c.capture.Disarm()
}

// Armed returns true if the chain is armed
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// SetAveraging selects how many consecutive exposures accumulate into
// one line; n <= 1 selects single-sample mode.  Only allowed while the
// chain is disarmed.
func (c *Controller) SetAveraging(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed {
		return ErrConfigWhileArmed
	}
	c.agg.SetSamples(n)
	return nil
}

// Averaging returns the configured exposures per line
func (c *Controller) Averaging() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.Samples()
}

// Ready yields one (possibly coalesced) notification per completed line
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Flag returns the data-ready flag value
func (c *Controller) Flag() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Flag()
}

// ClearFlag resets the data-ready flag on the consumer's behalf
func (c *Controller) ClearFlag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.ClearFlag()
}

// stage copies the aggregated line into the staging buffer and applies
// the averaging division.  While an averaged line is mid-accumulation
// the summation buffer holds a partial sum; the staging buffer then
// still holds the last completed line and is returned untouched, so
// consumers never observe a partial state.  Callers hold c.mu.
func (c *Controller) stage() []uint16 {
	if c.agg.MidCycle() {
		return c.store.Staging
	}
	copy(c.store.Staging, c.store.Sum[:BufSize])
	if n := c.agg.Samples(); n > 1 {
		for i := range c.store.Staging {
			c.store.Staging[i] /= uint16(n)
		}
	}
	return c.store.Staging
}

// Line returns an owned copy of the most recent completed line with the
// averaging division applied.  It does not clear the data-ready flag.
func (c *Controller) Line() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, BufSize)
	copy(out, c.stage())
	return out
}

// ConsumeLine stages the most recent line and clears the data-ready
// flag, the read-then-clear the consumer contract requires.  The
// returned slice aliases the staging buffer and is valid until the next
// ConsumeLine call; there is exactly one consumer.
func (c *Controller) ConsumeLine() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := c.stage()
	c.store.ClearFlag()
	return line
}

// Sum returns an owned copy of the raw summation buffer, pre-division
func (c *Controller) Sum() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, len(c.store.Sum))
	copy(out, c.store.Sum)
	return out
}

// Status snapshots the chain
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state.String(),
		Armed:     c.armed,
		Samples:   c.agg.Samples(),
		Lines:     c.lines,
		DataReady: c.store.Flag() == DataReady,
	}
}

// edge services one pixel-clock trigger
func (c *Controller) edge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture.Edge()
}

// exposure services one exposure-completion trigger.  The sensor emits
// this only after a full scan, which is what keeps the aggregation from
// tearing a half-written capture buffer; nothing here re-checks that.
func (c *Controller) exposure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return
	}
	c.state = Aggregating
	c.agg.Fire()
	c.state = Capturing
}

// Run services trigger events until ctx is done.  Edges and exposures
// arrive on separate channels from the trigger source; a source that
// stops stalls the loop indefinitely, exactly as it would the board.
func (c *Controller) Run(ctx context.Context, edges, exposures <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-edges:
			c.edge()
		case <-exposures:
			c.exposure()
		}
	}
}
