package readout_test

import (
	"context"
	"testing"
	"time"

	"github.com/spectrobench/linescan/readout"
)

// rampRegister plays back a deterministic 12-bit ramp, one value per read
type rampRegister struct {
	i int
}

func (r *rampRegister) Read() uint16 {
	v := uint16(r.i) & 0x0FFF
	r.i++
	return v
}

// fixedRegister always reads the same value
type fixedRegister uint16

func (r fixedRegister) Read() uint16 {
	return uint16(r)
}

func TestCaptureOrderPreservation(t *testing.T) {
	store := readout.NewStore()
	eng, err := readout.NewCaptureEngine(&rampRegister{}, store.Capture)
	if err != nil {
		t.Fatal(err)
	}
	eng.Arm()
	// more edges than slots; the i-th edge lands in slot i mod BufSize
	n := readout.BufSize + 250
	for i := 0; i < n; i++ {
		eng.Edge()
	}
	for slot := 0; slot < readout.BufSize; slot++ {
		want := uint16(slot) & 0x0FFF
		if slot < n-readout.BufSize {
			want = uint16(slot+readout.BufSize) & 0x0FFF
		}
		if store.Capture[slot] != want {
			t.Fatalf("slot %d = %d, want %d", slot, store.Capture[slot], want)
		}
	}
}

func TestCaptureEdgeBeforeArmIsLost(t *testing.T) {
	store := readout.NewStore()
	eng, err := readout.NewCaptureEngine(fixedRegister(0x0123), store.Capture)
	if err != nil {
		t.Fatal(err)
	}
	eng.Edge() // not armed; the edge is dropped
	if store.Capture[0] != 0 {
		t.Errorf("unarmed edge wrote %d into slot 0", store.Capture[0])
	}
	eng.Arm()
	eng.Edge()
	if store.Capture[0] != 0x0123 {
		t.Errorf("slot 0 = %d, want %d", store.Capture[0], 0x0123)
	}
	// the unarmed edge did not advance the cursor either
	if store.Capture[1] != 0 {
		t.Errorf("slot 1 = %d, want 0", store.Capture[1])
	}
}

func TestAggregationFullCycleCopy(t *testing.T) {
	store := readout.NewStore()
	for i := range store.Capture {
		store.Capture[i] = uint16(i) & 0x0FFF
	}
	eng := readout.NewAggregationEngine(store.Capture, store.Sum)
	eng.Fire()
	for i := range store.Capture {
		if store.Sum[i] != store.Capture[i] {
			t.Fatalf("sum[%d] = %d, want %d", i, store.Sum[i], store.Capture[i])
		}
	}
	// second half untouched in single-sample mode
	for i := readout.BufSize; i < 2*readout.BufSize; i++ {
		if store.Sum[i] != 0 {
			t.Fatalf("sum[%d] = %d, want 0", i, store.Sum[i])
		}
	}
}

func TestAggregationAveragingAccumulates(t *testing.T) {
	store := readout.NewStore()
	eng := readout.NewAggregationEngine(store.Capture, store.Sum)
	eng.SetSamples(2)

	a := make([]uint16, readout.BufSize)
	b := make([]uint16, readout.BufSize)
	for i := range a {
		a[i] = uint16(i % 1000)
		b[i] = uint16((i * 7) % 1000)
	}

	copy(store.Capture, a)
	eng.Fire()
	copy(store.Capture, b)
	eng.Fire()

	for i := 0; i < readout.BufSize; i++ {
		if store.Sum[i] != a[i]+b[i] {
			t.Fatalf("sum[%d] = %d, want %d", i, store.Sum[i], a[i]+b[i])
		}
	}
}

func TestAveragingCompletesOncePerLine(t *testing.T) {
	store := readout.NewStore()
	eng := readout.NewAggregationEngine(store.Capture, store.Sum)
	eng.SetSamples(2)
	completions := 0
	eng.TriggerAtCompletion(func() { completions++ })
	for i := 0; i < 4; i++ {
		eng.Fire()
	}
	if completions != 2 {
		t.Errorf("completions = %d after 4 exposures at 2 samples/line, want 2", completions)
	}
}

func TestFlagSetClearSetRoundTrip(t *testing.T) {
	store := readout.NewStore()
	sig := readout.NewSignalEngine(store)
	if store.Flag() != 0 {
		t.Fatalf("flag nonzero before first fire: %d", store.Flag())
	}
	sig.Fire()
	first := store.Flag()
	if first != readout.DataReady {
		t.Fatalf("flag = %#x, want %#x", first, readout.DataReady)
	}
	store.ClearFlag()
	if store.Flag() != 0 {
		t.Fatal("flag not cleared")
	}
	sig.Fire()
	if store.Flag() != first {
		t.Errorf("second set (%#x) differs from first (%#x)", store.Flag(), first)
	}
}

// Two aggregation completions with no intervening flag clear leave only
// the second line in the summation buffer.  This is the designed
// lost-update behavior, not a bug; the consumer owns clearing the flag
// in time.
func TestUnclearedFlagLosesFirstLine(t *testing.T) {
	store := readout.NewStore()
	agg := readout.NewAggregationEngine(store.Capture, store.Sum)
	sig := readout.NewSignalEngine(store)
	agg.TriggerAtCompletion(sig.Fire)

	for i := range store.Capture {
		store.Capture[i] = 111
	}
	agg.Fire()
	for i := range store.Capture {
		store.Capture[i] = 222
	}
	agg.Fire()

	for i := 0; i < readout.BufSize; i++ {
		if store.Sum[i] != 222 {
			t.Fatalf("sum[%d] = %d, want 222 (second line only)", i, store.Sum[i])
		}
	}
	if store.Flag() != readout.DataReady {
		t.Error("flag not re-set after second completion")
	}
}

func TestControllerChain(t *testing.T) {
	c, err := readout.NewController(&rampRegister{})
	if err != nil {
		t.Fatal(err)
	}
	c.Arm()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	edges := make(chan struct{})
	exposures := make(chan struct{})
	go c.Run(ctx, edges, exposures)

	// one full scan, then the exposure-completion trigger
	for i := 0; i < readout.BufSize; i++ {
		edges <- struct{}{}
	}
	exposures <- struct{}{}

	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("no line-ready notification")
	}

	if c.Flag() != readout.DataReady {
		t.Fatalf("flag = %#x, want %#x", c.Flag(), readout.DataReady)
	}
	line := c.Line()
	for i := range line {
		if line[i] != uint16(i)&0x0FFF {
			t.Fatalf("line[%d] = %d, want %d", i, line[i], uint16(i)&0x0FFF)
		}
	}
	st := c.Status()
	if st.Lines != 1 {
		t.Errorf("lines = %d, want 1", st.Lines)
	}
	if !st.DataReady {
		t.Error("status does not show data ready")
	}
}

func TestControllerAveragingDivision(t *testing.T) {
	c, err := readout.NewController(fixedRegister(100))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetAveraging(2); err != nil {
		t.Fatal(err)
	}
	c.Arm()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	edges := make(chan struct{})
	exposures := make(chan struct{})
	go c.Run(ctx, edges, exposures)

	for exp := 0; exp < 2; exp++ {
		for i := 0; i < readout.BufSize; i++ {
			edges <- struct{}{}
		}
		exposures <- struct{}{}
	}
	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("no line-ready notification")
	}

	// raw sum is 2x the sample; the consumed line is divided back down
	line := c.ConsumeLine()
	if line[0] != 100 {
		t.Errorf("averaged line[0] = %d, want 100", line[0])
	}
	if c.Flag() != 0 {
		t.Error("ConsumeLine did not clear the flag")
	}
	sum := c.Sum()
	if sum[0] != 200 {
		t.Errorf("raw sum[0] = %d, want 200", sum[0])
	}
}

// A read between the accumulate passes of an averaged line must not see
// the partial sum; it gets the last completed line instead.
func TestLineMidAccumulationNotPartial(t *testing.T) {
	c, err := readout.NewController(fixedRegister(100))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetAveraging(2); err != nil {
		t.Fatal(err)
	}
	c.Arm()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	edges := make(chan struct{})
	exposures := make(chan struct{})
	go c.Run(ctx, edges, exposures)

	for i := 0; i < readout.BufSize; i++ {
		edges <- struct{}{}
	}
	exposures <- struct{}{}
	// one more unbuffered send; its acceptance means the exposure above
	// has been fully serviced
	edges <- struct{}{}

	// no line has completed yet; the read must not leak sum/2 = 50
	if v := c.Line()[0]; v != 0 {
		t.Fatalf("mid-accumulation line[0] = %d, want 0", v)
	}
	if c.Flag() != 0 {
		t.Fatal("flag set before the line completed")
	}

	for i := 0; i < readout.BufSize-1; i++ {
		edges <- struct{}{}
	}
	exposures <- struct{}{}
	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("no line-ready notification")
	}
	if v := c.Line()[0]; v != 100 {
		t.Errorf("completed line[0] = %d, want 100", v)
	}
}

func TestSetAveragingRejectedWhileArmed(t *testing.T) {
	c, err := readout.NewController(fixedRegister(1))
	if err != nil {
		t.Fatal(err)
	}
	c.Arm()
	if err := c.SetAveraging(2); err != readout.ErrConfigWhileArmed {
		t.Errorf("expected ErrConfigWhileArmed, got %v", err)
	}
	c.Disarm()
	if err := c.SetAveraging(2); err != nil {
		t.Errorf("unexpected error after disarm: %v", err)
	}
}
