/*Package comm provides the host-link transport used by the transmission
stage: a serial or TCP connection with retrying open semantics.

Most usages boil down to:

	link := comm.NewHostLink("/dev/ttyACM0", true)
	if err := link.Open(); err != nil {
		log.Fatal(err)
	}
	defer link.Close()
	err := link.Send(frame)
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when Conn is nil and Send is called
	ErrNotConnected = errors.New("conn is nil, not connected to host")
)

// Sender has a Send method that passes along a byte slice
type Sender interface {
	Send([]byte) error
}

// HostLink is a connection to the host computer that consumes the
// aggregated lines.  It implements Sender and io.Closer.
type HostLink struct {
	// Addr is the serial device node, or host:port for TCP
	Addr string

	// IsSerial selects a serial connection instead of TCP
	IsSerial bool

	// Baud is the serial line rate; 0 takes the default of 115200
	Baud int

	// Conn is the underlying connection, nil until Open succeeds
	Conn io.ReadWriteCloser
}

// NewHostLink creates a new HostLink instance
func NewHostLink(addr string, isSerial bool) *HostLink {
	return &HostLink{Addr: addr, IsSerial: isSerial}
}

// SerialConf yields a serial config for use with serial.OpenPort; 8N1
// with a one second read timeout
func (h *HostLink) SerialConf() *serial.Config {
	baud := h.Baud
	if baud == 0 {
		baud = 115200
	}
	return &serial.Config{
		Name:        h.Addr,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// Open the connection, setting the Conn variable.  Opens are retried
// with an exponential backoff; hosts enumerating a USB CDC device can
// take a moment to expose the port.
func (h *HostLink) Open() error {
	wasTimeout := false
	op := func() error {
		err := h.open()
		if err != nil {
			errS := strings.ToLower(err.Error())
			if strings.Contains(errS, "refused") {
				return err
			}
			wasTimeout = true
			return nil
		}
		return nil
	}

	// backoff ceases on a timeout so we don't wait forever; check
	// wasTimeout afterward
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err == nil && !wasTimeout {
		return nil
	}
	if wasTimeout {
		return fmt.Errorf("connection timeout to %s", h.Addr)
	}
	return err
}

func (h *HostLink) open() error {
	var (
		err  error
		conn io.ReadWriteCloser
	)
	if h.IsSerial {
		conn, err = serial.OpenPort(h.SerialConf())
	} else {
		conn, err = TCPSetup(h.Addr, 3*time.Second)
	}
	if err != nil {
		return err
	}
	h.Conn = conn
	return nil
}

// Close the connection, nil-ing the Conn variable
func (h *HostLink) Close() error {
	if h.Conn == nil {
		return nil
	}
	err := h.Conn.Close()
	if err == nil {
		h.Conn = nil
	}
	return err
}

// Send writes one complete frame to the host
func (h *HostLink) Send(b []byte) error {
	if h.Conn == nil {
		return ErrNotConnected
	}
	_, err := h.Conn.Write(b)
	return err
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
