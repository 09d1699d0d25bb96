/*Package transmit implements the transmission stage: the consumer on
the other side of the data-ready flag.  Each time the acquisition chain
completes a line, the transmitter reads it out of the summation buffer,
clears the flag, and forwards it to the host in one delimited frame.

Frames are encoded as [SOT][payload][CRC][EOT].  The payload is the line
as little-endian 16-bit words; the CRC is CRC-16/XMODEM over the payload,
big-endian.  SOT and EOT are fixed sentinel strings the host scanner
locks onto, chosen to be vanishingly unlikely to appear in pixel data.
*/
package transmit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

const (
	// SOT marks the start of one transmitted line
	SOT = "7eae261d-dde2-4eed-a293-a7cd17e4379a"

	// EOT marks the end of one transmitted line
	EOT = "476070cc-2bc0-498d-834d-3b9dfc6e79bf\n"
)

var (
	// ErrNoStart is generated when a frame lacks the SOT sentinel
	ErrNoStart = errors.New("start-of-transmission sentinel not found")

	// ErrNoEnd is generated when a frame lacks the EOT sentinel
	ErrNoEnd = errors.New("end-of-transmission sentinel not found")

	// ErrShortFrame is generated when a frame is too short to carry a CRC
	ErrShortFrame = errors.New("frame too short")

	// ErrCRCMismatch is generated when a frame fails its checksum;
	// significant data was lost in transmission
	ErrCRCMismatch = errors.New("CRC mismatch")

	// dataOrder is the payload byte order
	dataOrder = binary.LittleEndian

	crcTable = crc.NewTable(crc.XMODEM)
)

// crcHelper computes the two-byte CRC value in a concurrent safe way and one line
func crcHelper(buf []byte) []byte {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf)
	crcBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(crcBytes, crcTable.CRC16(crcUint))
	return crcBytes
}

// Frame encodes one aggregated line for the host
func Frame(line []uint16) []byte {
	payload := make([]byte, 2*len(line))
	for i, v := range line {
		dataOrder.PutUint16(payload[2*i:], v)
	}
	out := make([]byte, 0, len(SOT)+len(payload)+2+len(EOT))
	out = append(out, SOT...)
	out = append(out, payload...)
	out = append(out, crcHelper(payload)...)
	out = append(out, EOT...)
	return out
}

// Decode parses a frame back into pixel words, verifying the sentinels
// and checksum.  It is the host side of Frame and exists mostly so the
// protocol can be exercised end to end without a host attached.
func Decode(frame []byte) ([]uint16, error) {
	iStart := bytes.Index(frame, []byte(SOT))
	if iStart < 0 {
		return nil, ErrNoStart
	}
	iEnd := bytes.Index(frame, []byte(EOT))
	if iEnd < 0 {
		return nil, ErrNoEnd
	}
	// a resynchronizing stream can carry a stale EOT ahead of the SOT
	if iEnd < iStart+len(SOT) {
		return nil, ErrNoEnd
	}
	body := frame[iStart+len(SOT) : iEnd]
	if len(body) < 2 {
		return nil, ErrShortFrame
	}
	payload, crcRecv := body[:len(body)-2], body[len(body)-2:]
	if !bytes.Equal(crcRecv, crcHelper(payload)) {
		return nil, ErrCRCMismatch
	}
	out := make([]uint16, len(payload)/2)
	for i := range out {
		out[i] = dataOrder.Uint16(payload[2*i:])
	}
	return out, nil
}

// LineSource is what the transmitter needs from the acquisition core: a
// read of the completed line that also clears the data-ready flag
type LineSource interface {
	ConsumeLine() []uint16
}

// Sender forwards one complete frame to the host
type Sender interface {
	Send([]byte) error
}

// Transmitter forwards each completed line over the host link.  It is
// the single consumer of the data-ready flag; if it falls behind the
// chain, lines are overwritten without notice, which is the documented
// flag contract.
type Transmitter struct {
	src  LineSource
	link Sender

	sent uint64
}

// NewTransmitter wires a transmitter between the acquisition core and
// the host link
func NewTransmitter(src LineSource, link Sender) *Transmitter {
	return &Transmitter{src: src, link: link}
}

// Sent returns the number of lines forwarded so far
func (t *Transmitter) Sent() uint64 {
	return t.sent
}

// Run consumes line-ready notifications until ctx is done.  Each
// notification triggers read, clear, frame, send, in that order; the
// flag is cleared before the send so a slow link does not hold the
// clear past the next aggregation cycle.
func (t *Transmitter) Run(ctx context.Context, ready <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
			line := t.src.ConsumeLine()
			if err := t.link.Send(Frame(line)); err != nil {
				return fmt.Errorf("transmit: %w", err)
			}
			t.sent++
		}
	}
}
