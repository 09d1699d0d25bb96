package transmit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spectrobench/linescan/transmit"
)

func TestFrameRoundTrip(t *testing.T) {
	line := make([]uint16, 3100)
	for i := range line {
		line[i] = uint16(i) & 0x0FFF
	}
	frame := transmit.Frame(line)
	got, err := transmit.Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(line) {
		t.Fatalf("decoded %d words, want %d", len(got), len(line))
	}
	for i := range line {
		if got[i] != line[i] {
			t.Fatalf("word %d = %d, want %d", i, got[i], line[i])
		}
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	frame := transmit.Frame([]uint16{1, 2, 3})
	// flip a payload bit
	frame[len(transmit.SOT)+1] ^= 0x01
	if _, err := transmit.Decode(frame); err != transmit.ErrCRCMismatch {
		t.Errorf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestDecodeRejectsMissingSentinels(t *testing.T) {
	if _, err := transmit.Decode([]byte("garbage")); err != transmit.ErrNoStart {
		t.Errorf("expected ErrNoStart, got %v", err)
	}
	frame := transmit.Frame([]uint16{1})
	if _, err := transmit.Decode(frame[:len(frame)-len(transmit.EOT)]); err != transmit.ErrNoEnd {
		t.Errorf("expected ErrNoEnd, got %v", err)
	}
}

func TestDecodeRejectsOutOfOrderSentinels(t *testing.T) {
	// a stale EOT ahead of the SOT, as seen mid-resync on a garbled stream
	frame := append([]byte(transmit.EOT), []byte(transmit.SOT)...)
	if _, err := transmit.Decode(frame); err != transmit.ErrNoEnd {
		t.Errorf("expected ErrNoEnd, got %v", err)
	}
}

// fakeSource hands out a fixed line and records the consume count, which
// stands in for the flag clear
type fakeSource struct {
	line     []uint16
	consumed int
}

func (f *fakeSource) ConsumeLine() []uint16 {
	f.consumed++
	return f.line
}

// fakeLink records frames
type fakeLink struct {
	frames [][]byte
}

func (f *fakeLink) Send(b []byte) error {
	f.frames = append(f.frames, b)
	return nil
}

// brokenLink fails every send
type brokenLink struct{}

func (brokenLink) Send([]byte) error {
	return errors.New("write: broken pipe")
}

func TestTransmitterStopsOnSendError(t *testing.T) {
	src := &fakeSource{line: []uint16{1}}
	tx := transmit.NewTransmitter(src, brokenLink{})

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- tx.Run(context.Background(), ready) }()

	ready <- struct{}{}
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil after a failed send")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transmitter did not stop on send error")
	}
	if tx.Sent() != 0 {
		t.Errorf("Sent() = %d after a failed send, want 0", tx.Sent())
	}
}

func TestTransmitterForwardsOnReady(t *testing.T) {
	src := &fakeSource{line: []uint16{10, 20, 30}}
	link := &fakeLink{}
	tx := transmit.NewTransmitter(src, link)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- tx.Run(ctx, ready) }()

	ready <- struct{}{}
	ready <- struct{}{}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transmitter did not stop")
	}

	if src.consumed != 2 {
		t.Errorf("consumed %d lines, want 2", src.consumed)
	}
	if len(link.frames) != 2 {
		t.Fatalf("sent %d frames, want 2", len(link.frames))
	}
	got, err := transmit.Decode(link.frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Errorf("decoded %v, want [10 20 30]", got)
	}
	if tx.Sent() != 2 {
		t.Errorf("Sent() = %d, want 2", tx.Sent())
	}
}
