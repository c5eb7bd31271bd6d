// Package slcan implements the Lawicel/SLCAN ASCII serial protocol spoken
// by the USBtin adapter bridging the Buderus WPS CAN bus (spec §4.A).
package slcan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/logging"
	"github.com/kstaniek/buderus-wps/internal/metrics"
)

// Link-layer sentinel errors, surfaced verbatim from Open or raised during
// a session (spec §7).
var (
	ErrDeviceNotFound    = errors.New("slcan: device not found")
	ErrDevicePermission  = errors.New("slcan: permission denied opening device")
	ErrDeviceUnavailable = errors.New("slcan: device unavailable")
	ErrDeviceDisconnected = errors.New("slcan: device disconnected")
	ErrTimeout           = errors.New("slcan: timeout waiting for frame")
	ErrReadOnly          = errors.New("slcan: link is read-only")
)

const (
	// DefaultBaud is the USBtin serial rate; the bus itself always runs at
	// 125 kbit/s regardless of this link-level baud (spec §4.A/§6).
	DefaultBaud   = 115200
	busSpeedCmd   = "S4" // 125 kbit/s, the speed this heat pump's bus runs at
	initSettleGap = 100 * time.Millisecond
	readPollEvery = 10 * time.Millisecond
)

// Link is the bidirectional byte-framed ASCII channel to the USBtin
// adapter. It owns the underlying Port exclusively (spec §5): a single
// Link performs RTR reads, writes and broadcast captures strictly in the
// order they are invoked, with no internal concurrency.
type Link struct {
	port     Port
	readOnly bool
	buf      bytes.Buffer
}

// Open connects to the adapter at dev/baud and runs the connection
// lifecycle from spec §4.A: close, set bus speed, open, discarding input
// after the close and after the open step.
func Open(dev string, baud int, readOnly bool) (*Link, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := OpenPort(dev, baud, readPollEvery)
	if err != nil {
		return nil, classifyOpenErr(err)
	}
	l := &Link{port: port, readOnly: readOnly}

	if err := l.writeLine("C"); err != nil {
		_ = port.Close()
		return nil, err
	}
	time.Sleep(initSettleGap)
	l.discardInput()

	if err := l.writeLine(busSpeedCmd); err != nil {
		_ = port.Close()
		return nil, err
	}
	time.Sleep(initSettleGap)

	if err := l.writeLine("O"); err != nil {
		_ = port.Close()
		return nil, err
	}
	time.Sleep(initSettleGap)
	l.discardInput()

	logging.L().Info("slcan_open", "device", dev, "baud", baud, "read_only", readOnly)
	return l, nil
}

// Close tears down the channel per spec §4.A: write "C" then close the port.
func (l *Link) Close() error {
	_ = l.writeLine("C")
	return l.port.Close()
}

func (l *Link) writeLine(cmd string) error {
	_, err := l.port.Write([]byte(cmd + "\r"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	}
	return nil
}

// discardInput drains whatever is currently buffered/available without
// blocking for more; used around the init sequence.
func (l *Link) discardInput() {
	l.buf.Reset()
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

// FlushInput discards all buffered and available serial bytes; callers use
// this before an RTR to avoid crosstalk from broadcast frames (spec §4.A).
func (l *Link) FlushInput() {
	l.discardInput()
}

// Send transmits frame. Only "T"/"R" lines are ever sent (no raw command
// passthrough). Transmitting a non-RTR data frame is forbidden when the
// link is read-only (spec §4.A, §5).
func (l *Link) Send(f can.Frame) error {
	if l.readOnly && !f.RTR {
		return ErrReadOnly
	}
	return l.writeLine(Encode(f))
}

// Receive blocks up to timeout for the next fully decoded frame. Partial
// lines are buffered across calls; complete lines already available are
// parsed one at a time until a frame decodes, and any lines after it stay
// buffered for the next call.
func (l *Link) Receive(timeout time.Duration) (can.Frame, error) {
	deadline := time.Now().Add(timeout)
	var result *can.Frame
	for {
		for result == nil {
			i := bytes.IndexByte(l.buf.Bytes(), '\r')
			if i < 0 {
				break
			}
			line := bytes.NewBuffer(append([]byte(nil), l.buf.Next(i+1)...))
			if err := DecodeStream(line, func(fr can.Frame) {
				cp := fr
				result = &cp
			}); err != nil {
				// Malformed line: surfaced once, but we keep trying to find a
				// usable frame within the deadline (resync already happened).
				logging.L().Warn("slcan_protocol_error", "error", err)
			}
		}
		if result != nil {
			return *result, nil
		}
		if time.Now().After(deadline) {
			return can.Frame{}, ErrTimeout
		}

		remaining := time.Until(deadline)
		wait := readPollEvery
		if remaining < wait {
			wait = remaining
		}
		n, err := l.readSome(wait)
		if err != nil {
			return can.Frame{}, err
		}
		if n == 0 {
			continue
		}
	}
}

// ReceiveMatching waits up to timeout for a frame whose CAN ID equals
// wantID, dropping any mismatched frames (spec §4.E step 4).
func (l *Link) ReceiveMatching(timeout time.Duration, wantID uint32) (can.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return can.Frame{}, ErrTimeout
		}
		fr, err := l.Receive(remaining)
		if err != nil {
			return can.Frame{}, err
		}
		if fr.ID&can.EFFMask == wantID&can.EFFMask {
			return fr, nil
		}
	}
}

func (l *Link) readSome(timeout time.Duration) (int, error) {
	tmp := make([]byte, 256)
	n, err := l.port.Read(tmp)
	if n > 0 {
		l.buf.Write(tmp[:n])
		metrics.AddLinkBytes(n)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, nil // typical ReadTimeout expiry on tarm/serial
		}
		var perr *os.PathError
		if errors.As(err, &perr) {
			return n, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
		}
		return n, nil
	}
	return n, nil
}

func classifyOpenErr(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrDevicePermission, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}
