package ccd_test

import (
	"context"
	"testing"
	"time"

	"github.com/spectrobench/linescan/ccd"
	"github.com/spectrobench/linescan/readout"
)

func TestScanEmitsFullScanThenExposure(t *testing.T) {
	sim := ccd.NewSimulator(0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- sim.Scan(ctx) }()

	edges := 0
	for {
		select {
		case <-sim.Edges():
			edges++
		case <-sim.Exposures():
			if edges != readout.BufSize {
				t.Fatalf("exposure after %d edges, want %d", edges, readout.BufSize)
			}
			if err := <-errc; err != nil {
				t.Fatal(err)
			}
			return
		case <-ctx.Done():
			t.Fatal("scan did not complete")
		}
	}
}

func TestRegisterIsTwelveBits(t *testing.T) {
	sim := ccd.NewSimulator(0, func(i int) uint16 { return 0xFFFF })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sim.Scan(ctx)
	<-sim.Edges()
	if v := sim.Read(); v != 0x0FFF {
		t.Errorf("register = %#x, want %#x", v, 0x0FFF)
	}
	cancel()
}

func TestExposureTimeValidation(t *testing.T) {
	sim := ccd.NewSimulator(0, nil)
	if err := sim.SetExposureTime(-time.Millisecond); err != ccd.ErrBadExposure {
		t.Errorf("expected ErrBadExposure, got %v", err)
	}
	if err := sim.SetExposureTime(2 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	d, err := sim.GetExposureTime()
	if err != nil {
		t.Fatal(err)
	}
	if d != 2*time.Millisecond {
		t.Errorf("exposure = %v, want 2ms", d)
	}
}
