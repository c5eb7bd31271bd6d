// Package engine drives the three CAN flows against a single owned link
// (spec §4.E, §5): RTR parameter reads, point-to-point writes, and passive
// broadcast capture. There is no internal scheduler — callers invoking
// Read/Write/Capture concurrently from multiple goroutines on the same
// Engine would race the link; the single-threaded CLI commands in
// cmd/buderus-wps are the only intended callers.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/codec"
	"github.com/kstaniek/buderus-wps/internal/logging"
	"github.com/kstaniek/buderus-wps/internal/metrics"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// DefaultReadTimeout bounds how long an RTR read waits for its response
// frame before giving up (spec §4.E).
const DefaultReadTimeout = 2 * time.Second

// Link is the minimal transport the engine needs; *slcan.Link satisfies
// it, and tests substitute a fake.
type Link interface {
	Send(f can.Frame) error
	Receive(timeout time.Duration) (can.Frame, error)
	ReceiveMatching(timeout time.Duration, wantID uint32) (can.Frame, error)
	FlushInput()
}

// ErrDegenerateResponse is returned by Read when the device answers an RTR
// with a 1-byte payload for a temperature-shaped parameter — a known
// quirk the FHEM reference works around by falling back to broadcast
// capture (spec §4.H, §7).
var ErrDegenerateResponse = errors.New("engine: degenerate RTR response")

// Engine performs addressed reads and writes over a link; the parameter
// descriptors are passed in per call.
type Engine struct {
	link    Link
	timeout time.Duration
}

// New returns an Engine bound to link, using DefaultReadTimeout unless
// overridden with SetTimeout.
func New(link Link) *Engine {
	return &Engine{link: link, timeout: DefaultReadTimeout}
}

// SetTimeout overrides the per-request response timeout.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

// Read issues an RTR read for p and decodes the response (spec §4.E step
// "RTR read"). When the response has a 1-byte payload for a
// temperature-shaped parameter, the payload is still decoded and returned
// alongside ErrDegenerateResponse (spec §4.H, §7: "the original (degenerate)
// value is returned with a warning") rather than discarded, so a caller
// whose broadcast-fallback healing strategy turns up nothing can still
// report the original reading instead of failing outright.
func (e *Engine) Read(p param.Parameter) (codec.Decoded, error) {
	e.link.FlushInput()
	req, err := can.New(p.ReadCANID(), true, nil)
	if err != nil {
		return codec.Decoded{}, err
	}
	if err := e.link.Send(req); err != nil {
		return codec.Decoded{}, fmt.Errorf("engine: send rtr: %w", err)
	}
	metrics.IncRTRRead()

	resp, err := e.link.ReceiveMatching(e.timeout, p.WriteCANID())
	if err != nil {
		return codec.Decoded{}, fmt.Errorf("engine: read %s: %w", p.Name, err)
	}

	if resp.Len == 1 && p.Format.IsTemperature() {
		d, derr := codec.Decode(p.Format, resp.Payload())
		if derr != nil {
			return codec.Decoded{}, derr
		}
		return d, fmt.Errorf("%w: %s returned %d byte(s)", ErrDegenerateResponse, p.Name, resp.Len)
	}

	return codec.Decode(p.Format, resp.Payload())
}

// Write resolves input (a decimal number, an engineering-unit value, or a
// selector name/number per spec §4.D) for p, validates the resolved value
// against p's range, and transmits a write frame at its read CAN ID (spec
// §4.E step "write": "writes use the read base"). Inconsistent-range
// parameters (max < min) are refused unconditionally.
func (e *Engine) Write(p param.Parameter, input string) error {
	if !p.Writable() {
		return fmt.Errorf("engine: %s is read-only", p.Name)
	}
	raw, err := codec.ResolveInt(p.Format, input)
	if err != nil {
		return fmt.Errorf("engine: resolve %s: %w", p.Name, err)
	}
	if err := p.Validate(int(raw)); err != nil {
		return err
	}
	payload, err := codec.Encode(p.Format, input)
	if err != nil {
		return fmt.Errorf("engine: encode %s: %w", p.Name, err)
	}
	frame, err := can.New(p.ReadCANID(), false, payload)
	if err != nil {
		return err
	}
	if err := e.link.Send(frame); err != nil {
		return fmt.Errorf("engine: send write: %w", err)
	}
	metrics.IncWrite()
	logging.L().Info("engine_write", "param", p.Name, "value", input)
	return nil
}

// Capture listens for broadcast frames for up to duration, invoking onFrame
// for each one observed (spec §4.E step "broadcast capture"). It performs
// no filtering by CAN ID; callers interested in specific parameters should
// pass the frames to internal/broadcast's Monitor.
func (e *Engine) Capture(duration time.Duration, onFrame func(can.Frame)) error {
	deadline := time.Now().Add(duration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		fr, err := e.link.Receive(remaining)
		if err != nil {
			continue
		}
		metrics.IncBroadcastFrame()
		onFrame(fr)
	}
}
