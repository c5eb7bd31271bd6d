package slcan

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/metrics"
)

// ErrMalformedLine is wrapped with the offending line text per spec §4.A:
// "malformed hex in a frame line fails with a ProtocolError carrying the
// offending line".
var ErrMalformedLine = errors.New("slcan: malformed frame line")

// ProtocolError carries the raw line that failed to parse.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("slcan: protocol error on line %q: %v", e.Line, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// Encode renders a frame as its SLCAN wire line, without the trailing CR
// (Link appends that on write). Extended data frames use "T", extended RTR
// frames use "R" with no data payload, per spec §4.A.
func Encode(f can.Frame) string {
	if f.RTR {
		return fmt.Sprintf("R%08X%X", f.ID&can.EFFMask, f.Len)
	}
	return fmt.Sprintf("T%08X%X%s", f.ID&can.EFFMask, f.Len, hex.EncodeToString(f.Data[:f.Len]))
}

// DecodeStream consumes complete CR-terminated lines from buf, emitting a
// decoded frame via onFrame for each "T"/"R" line and silently dropping
// ACK lines ("z"/"Z"), exactly as spec §4.A requires. It buffers any
// trailing partial line in place (bytes already consumed are dropped from
// buf) so callers can feed it arbitrarily chunked reads.
//
// It returns a *ProtocolError (non-fatal to the stream — the offending
// line is discarded and parsing resumes at the next line) the first time
// malformed hex is encountered in a frame line.
func DecodeStream(buf *bytes.Buffer, onFrame func(can.Frame)) error {
	var firstErr error
	for {
		data := buf.Bytes()
		i := bytes.IndexByte(data, '\r')
		if i < 0 {
			return firstErr
		}
		line := string(data[:i])
		buf.Next(i + 1)

		if line == "" {
			continue
		}
		switch line[0] {
		case 'z', 'Z':
			continue
		case 'T', 'R':
			fr, err := decodeLine(line)
			if err != nil {
				metrics.IncMalformed()
				if firstErr == nil {
					firstErr = &ProtocolError{Line: line, Err: err}
				}
				continue
			}
			onFrame(fr)
			metrics.IncLinkRx()
		default:
			// unknown adapter status line; ignored per spec §4.A
			continue
		}
	}
}

func decodeLine(line string) (can.Frame, error) {
	// Minimum: type(1) + id(8) + dlc(1) = 10 chars.
	if len(line) < 10 {
		return can.Frame{}, ErrMalformedLine
	}
	idBytes, err := hex.DecodeString(line[1:9])
	if err != nil {
		return can.Frame{}, ErrMalformedLine
	}
	id := uint32(idBytes[0])<<24 | uint32(idBytes[1])<<16 | uint32(idBytes[2])<<8 | uint32(idBytes[3])
	id &= can.EFFMask

	dlcNibble, err := hex.DecodeString("0" + line[9:10])
	if err != nil {
		return can.Frame{}, ErrMalformedLine
	}
	dlc := int(dlcNibble[0])
	if dlc > 8 {
		return can.Frame{}, ErrMalformedLine
	}

	rtr := line[0] == 'R'
	var data []byte
	if !rtr {
		if len(line) < 10+dlc*2 {
			return can.Frame{}, ErrMalformedLine
		}
		data, err = hex.DecodeString(line[10 : 10+dlc*2])
		if err != nil {
			return can.Frame{}, ErrMalformedLine
		}
	}

	fr, err := can.New(id, rtr, data)
	if err != nil {
		return can.Frame{}, err
	}
	if rtr {
		fr.Len = uint8(dlc)
	}
	return fr, nil
}
