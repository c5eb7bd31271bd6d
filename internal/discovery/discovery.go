// Package discovery implements the bulk parameter-enumeration handshake
// (spec §4.F): an element-count request/response followed by chunked
// element-data request/response, binary-parsed per the FHEM reference's
// "nH14NNc" struct layout (original_source/tests/contract/test_binary_parsing.py,
// tests/unit/test_discovery.py).
package discovery

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/logging"
	"github.com/kstaniek/buderus-wps/internal/metrics"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// Discovery-specific CAN identifiers, reproduced bit-exact from the FHEM
// reference (spec §4.F, §6): a fixed element-count request/response pair
// and a chunked element-data request/response pair.
const (
	ElementCountReqID  uint32 = 0x01FD7FE0
	ElementCountRespID uint32 = 0x09FD7FE0
	ElementDataReqID   uint32 = 0x01FD3FE0
	ElementDataRespID  uint32 = 0x09FDBFE0

	headerSize   = 18
	minNameLen   = 2
	maxNameLen   = 99
	chunkLen     = 4096
	chunkTimeout = 2 * time.Second
)

// ErrIncomplete is returned when a discovery run parsed fewer elements
// than MinCompleteFraction of the advertised element count. Callers may
// still choose to accept a partial result; the returned Result carries the
// parsed parameters regardless.
var ErrIncomplete = errors.New("discovery: incomplete enumeration")

// Link is the minimal CAN transport discovery needs, satisfied by
// *slcan.Link; kept as an interface so discovery can be unit tested
// without a real adapter.
type Link interface {
	Send(f can.Frame) error
	ReceiveMatching(timeout time.Duration, wantID uint32) (can.Frame, error)
}

// Option configures a Run.
type Option func(*options)

type options struct {
	minComplete float64
	chunkSize   int
	timeout     time.Duration
}

// WithMinCompleteFraction sets the partial-acceptance threshold (spec
// supplement): a run finishing with fewer than this fraction of the
// advertised element count parsed is reported via ErrIncomplete, but still
// returns whatever it parsed. Default 0.95.
func WithMinCompleteFraction(f float64) Option {
	return func(o *options) { o.minComplete = f }
}

// WithChunkSize overrides the number of bytes requested per element-data
// chunk request (default 4096, per spec §4.F step 2).
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithTimeout overrides the per-chunk response timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Result is the outcome of a discovery run.
type Result struct {
	Parameters   []param.Parameter
	Advertised   int
	Parsed       int
}

// Run performs the full handshake: request the element count, then
// request and parse element-data chunks until the device's advertised
// count is reached or the link stops responding usefully.
func Run(ctx context.Context, link Link, opts ...Option) (Result, error) {
	o := options{minComplete: 0.95, chunkSize: chunkLen, timeout: chunkTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	count, err := requestElementCount(link, o.timeout)
	if err != nil {
		return Result{}, fmt.Errorf("discovery: element count: %w", err)
	}
	logging.L().Info("discovery_start", "advertised_count", count)

	var params []param.Parameter
	var pending []byte
	offset := 0

	for len(params) < count {
		select {
		case <-ctx.Done():
			return finalize(params, count, o.minComplete), ctx.Err()
		default:
		}

		chunk, err := requestChunk(link, offset, o.chunkSize, o.timeout)
		if err != nil {
			logging.L().Warn("discovery_chunk_error", "offset", offset, "error", err)
			break
		}
		metrics.IncDiscoveryChunk()
		pending = append(pending, chunk...)
		offset += len(chunk)

		for {
			el, next, ok := parseElement(pending, 0)
			if !ok {
				break
			}
			params = append(params, el)
			pending = pending[next:]
		}
		if len(chunk) == 0 {
			break
		}
	}

	res := finalize(params, count, o.minComplete)
	if float64(len(params)) < float64(count)*o.minComplete {
		return res, fmt.Errorf("%w: parsed %d of advertised %d", ErrIncomplete, len(params), count)
	}
	return res, nil
}

func finalize(params []param.Parameter, advertised int, _ float64) Result {
	return Result{Parameters: params, Advertised: advertised, Parsed: len(params)}
}

// requestElementCount sends the RTR on ElementCountReqID and reads the
// element count as the first four big-endian bytes of the response (spec
// §4.F step 1).
func requestElementCount(link Link, timeout time.Duration) (int, error) {
	req, err := can.New(ElementCountReqID, true, nil)
	if err != nil {
		return 0, err
	}
	if err := link.Send(req); err != nil {
		return 0, err
	}
	resp, err := link.ReceiveMatching(timeout, ElementCountRespID)
	if err != nil {
		return 0, err
	}
	if resp.Len < 4 {
		return 0, fmt.Errorf("discovery: element count response too short (len=%d)", resp.Len)
	}
	return int(binary.BigEndian.Uint32(resp.Data[:4])), nil
}

// requestChunk issues one element-data request for chunkSize bytes
// starting at offset, whose payload is "size (4B BE) || offset (4B BE)"
// (spec §4.F step 2), then collects every ElementDataRespID frame that
// arrives within timeout, concatenating their payloads in arrival order.
// A device that has nothing further to send simply stops transmitting;
// the collection window closes on the first receive timeout rather than a
// declared frame count, matching "Collect all frames ... for several
// seconds" in spec §4.F.
func requestChunk(link Link, offset, chunkSize int, timeout time.Duration) ([]byte, error) {
	var data [8]byte
	binary.BigEndian.PutUint32(data[0:4], uint32(chunkSize))
	binary.BigEndian.PutUint32(data[4:8], uint32(offset))
	req, err := can.New(ElementDataReqID, false, data[:])
	if err != nil {
		return nil, err
	}
	if err := link.Send(req); err != nil {
		return nil, err
	}

	var out []byte
	deadline := time.Now().Add(timeout)
	for len(out) < chunkSize {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		resp, err := link.ReceiveMatching(remaining, ElementDataRespID)
		if err != nil {
			break // timeout: device has nothing further for this request
		}
		if resp.Len == 0 {
			break
		}
		out = append(out, resp.Payload()...)
	}
	return out, nil
}

// parseElement parses one binary element starting at offset within data,
// mirroring ParameterDiscovery.parse_element: an 18-byte header
// (idx uint16 BE, extid 7 bytes, max int32 BE, min int32 BE, namelen int8)
// followed by namelen bytes of ASCII name with a trailing NUL. Rejects
// namelen outside (1, 99] and truncated buffers.
func parseElement(data []byte, offset int) (param.Parameter, int, bool) {
	if offset < 0 || offset+headerSize > len(data) {
		return param.Parameter{}, -1, false
	}
	h := data[offset : offset+headerSize]

	idx := int(binary.BigEndian.Uint16(h[0:2]))
	extid := hex.EncodeToString(h[2:9])
	maxV := int(int32(binary.BigEndian.Uint32(h[9:13])))
	minV := int(int32(binary.BigEndian.Uint32(h[13:17])))
	nameLen := int(int8(h[17]))

	if nameLen < minNameLen || nameLen > maxNameLen {
		return param.Parameter{}, -1, false
	}
	if offset+headerSize+nameLen > len(data) {
		return param.Parameter{}, -1, false
	}
	nameBytes := data[offset+headerSize : offset+headerSize+nameLen]
	name := trimNul(nameBytes)

	p := param.Parameter{
		Index:  idx,
		ExtID:  upperHex(extid),
		Min:    minV,
		Max:    maxV,
		Format: param.FormatInt,
		Read:   0,
		Name:   name,
	}
	return p, offset + headerSize + nameLen, true
}

func trimNul(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

func upperHex(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
