/*Package ccd simulates the line sensor's front end: the ADC driving a
parallel bus register, the pixel clock, and the exposure (shutter)
trigger.

The simulator stands in for the board's trigger fabric during
development and testing.  It emits one pixel-clock edge per sample and
one exposure-completion event per full scan, on channels, so the
acquisition chain downstream sees exactly the event stream the hardware
would deliver.  The bus register is a plain atomic word; a consumer that
reads it late gets a stale sample, which is the same timing contract the
physical bus has.
*/
package ccd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/spectrobench/linescan/readout"
)

// ErrBadExposure is generated when a non-positive exposure time is commanded
var ErrBadExposure = errors.New("exposure time must be positive")

// Pattern produces the 12-bit sample driven onto the bus for pixel i of
// a scan.  Values are masked to NBIT bits.
type Pattern func(i int) uint16

// Ramp is the default test pattern, a sawtooth over the scan
func Ramp(i int) uint16 {
	return uint16(i)
}

// Simulator is a software line sensor.  Create with NewSimulator.
type Simulator struct {
	mu       sync.Mutex
	exposure time.Duration
	pattern  Pattern

	reg uint32 // the bus register; atomic

	limiter   *rate.Limiter
	edges     chan struct{}
	exposures chan struct{}
}

// NewSimulator returns a simulator clocking pixels at pixelHz with the
// given pattern.  pixelHz <= 0 runs the pixel clock unthrottled; pattern
// nil selects Ramp.
func NewSimulator(pixelHz float64, pattern Pattern) *Simulator {
	lim := rate.NewLimiter(rate.Inf, 1)
	if pixelHz > 0 {
		lim = rate.NewLimiter(rate.Limit(pixelHz), 1)
	}
	if pattern == nil {
		pattern = Ramp
	}
	return &Simulator{
		exposure:  10 * time.Millisecond,
		pattern:   pattern,
		limiter:   lim,
		edges:     make(chan struct{}),
		exposures: make(chan struct{}),
	}
}

// Read returns the current bus register value; 12 significant bits
func (s *Simulator) Read() uint16 {
	return uint16(atomic.LoadUint32(&s.reg))
}

// Edges yields one event per pixel-clock edge
func (s *Simulator) Edges() <-chan struct{} {
	return s.edges
}

// Exposures yields one event per completed scan
func (s *Simulator) Exposures() <-chan struct{} {
	return s.exposures
}

// SetExposureTime sets the exposure time
func (s *Simulator) SetExposureTime(d time.Duration) error {
	if d <= 0 {
		return ErrBadExposure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposure = d
	return nil
}

// GetExposureTime gets the exposure time
func (s *Simulator) GetExposureTime() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure, nil
}

// Scan drives one full exposure: BufSize samples onto the bus, one edge
// each, then the exposure-completion trigger.  The completion event is
// emitted only after every edge of the scan has been consumed, which is
// the sequencing that keeps the downstream aggregation from tearing.
func (s *Simulator) Scan(ctx context.Context) error {
	for i := 0; i < readout.BufSize; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		atomic.StoreUint32(&s.reg, uint32(s.pattern(i)&((1<<readout.NBIT)-1)))
		select {
		case s.edges <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case s.exposures <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Run scans continuously until ctx is done, idling for the configured
// exposure time between scans
func (s *Simulator) Run(ctx context.Context) error {
	for {
		if err := s.Scan(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		idle := s.exposure
		s.mu.Unlock()
		select {
		case <-time.After(idle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
