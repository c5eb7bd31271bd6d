// Package codec implements the value codec (spec §4.D): raw CAN payload
// bytes to/from typed, scaled values, driven by the closed format registry
// reproduced from %KM273_format in fhem/26_KM273v018.pm.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kstaniek/buderus-wps/internal/metrics"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// DeadValue is the raw signed 16-bit sentinel (0xDEAD) a disconnected
// sensor reports in place of a real temperature reading.
const DeadValue int32 = -8531

// formatSpec carries the scale factor and unit string for one format tag.
type formatSpec struct {
	factor float64
	unit   string
}

// registry mirrors FHEM_FORMATS exactly; selector options live in
// param.Selectors rather than duplicated here.
var registry = map[param.Format]formatSpec{
	param.FormatInt: {factor: 1, unit: ""},
	param.FormatT15: {factor: 1, unit: ""},
	param.FormatHM1: {factor: 1, unit: "s"},
	param.FormatHM2: {factor: 10, unit: "s"},
	param.FormatTem: {factor: 0.1, unit: "°C"},
	param.FormatPW2: {factor: 0.01, unit: "kW"},
	param.FormatPW3: {factor: 0.001, unit: "kW"},
	param.FormatSW1: {factor: 1, unit: ""},
	param.FormatSW2: {factor: 1, unit: ""},
	param.FormatRP1: {factor: 1, unit: ""},
	param.FormatRP2: {factor: 1, unit: ""},
	param.FormatDP1: {factor: 1, unit: ""},
	param.FormatDP2: {factor: 1, unit: ""},
}

// ErrUnknownFormat is returned for a format tag absent from the registry.
var ErrUnknownFormat = errors.New("codec: unknown format")

// Kind discriminates the shape of a Decoded value.
type Kind int

const (
	KindInt Kind = iota
	KindScaled
	KindSelector
	KindDisconnected
)

// Decoded is the tagged result of decoding a raw payload (spec §4.D). Raw
// and Unit are set for every Kind; Scaled and Selector only for their own
// Kind.
type Decoded struct {
	Kind     Kind
	Raw      int32
	Scaled   float64 // valid when Kind == KindScaled
	Selector string  // valid when Kind == KindSelector, e.g. "0:Automatic"
	Unit     string
}

// Unit returns the display unit for a format tag, "" if the format is
// unknown or dimensionless.
func Unit(f param.Format) string {
	return registry[f].unit
}

// rawSigned reinterprets data as a big-endian two's-complement integer
// sized by its length (1, 2 or 4 bytes), matching spec §4.D: "Signed
// integer decoding uses big-endian two's complement sized by dlc (1, 2, or
// 4 bytes)."
func rawSigned(data []byte) int32 {
	switch len(data) {
	case 0:
		return 0
	case 1:
		return int32(int8(data[0]))
	case 2:
		return int32(int16(uint16(data[0])<<8 | uint16(data[1])))
	case 3:
		u := uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		if u&0x800000 != 0 {
			u |= 0xFF000000
		}
		return int32(u)
	default:
		return int32(uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]))
	}
}

// Decode converts a response payload for a parameter of the given format
// into its typed, scaled representation (spec §4.D). Dead-sensor detection
// (raw == 0xDEAD) only applies to temperature-shaped formats, matching
// is_dead_value's use sites in the FHEM reference, and is checked before
// scaling is applied.
func Decode(f param.Format, data []byte) (Decoded, error) {
	spec, ok := registry[f]
	if !ok {
		metrics.IncDecodeError()
		return Decoded{}, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	raw := rawSigned(data)

	if raw == int32(DeadValue) && f.IsTemperature() {
		return Decoded{Kind: KindDisconnected, Raw: raw, Unit: spec.unit}, nil
	}

	if opts, isSelector := param.Selectors[f]; isSelector {
		return Decoded{Kind: KindSelector, Raw: raw, Selector: decodeSelector(raw, opts), Unit: spec.unit}, nil
	}

	if spec.factor == 1 {
		return Decoded{Kind: KindInt, Raw: raw, Unit: spec.unit}, nil
	}
	return Decoded{Kind: KindScaled, Raw: raw, Scaled: float64(raw) * spec.factor, Unit: spec.unit}, nil
}

// decodeSelector matches the FHEM "find the option whose prefix is
// '<raw>:'" rule, falling back to the bare numeral when no option matches.
func decodeSelector(raw int32, opts []string) string {
	prefix := strconv.FormatInt(int64(raw), 10) + ":"
	for _, opt := range opts {
		if strings.HasPrefix(opt, prefix) {
			return opt
		}
	}
	return strconv.FormatInt(int64(raw), 10)
}

// ErrCannotEncode is returned by Encode when input cannot be resolved to a
// raw value for the given format (e.g. an unmatched selector name).
var ErrCannotEncode = errors.New("codec: cannot encode value")

// Encode converts user input (a decimal string, an engineering-unit string
// for scaled formats, or a selector name/number) into the canonical-width
// raw payload for a write (spec §4.D): "tem" always encodes to 2 bytes;
// every other format defaults to 1 byte unless the value exceeds 8-bit
// range, in which case the minimum width that fits (2 or 4 bytes) is used.
// For selector formats it accepts a bare number, "N:Name", or a bare
// "Name" substring match, in that order, mirroring encode_select_value.
func Encode(f param.Format, input string) ([]byte, error) {
	raw, err := ResolveInt(f, input)
	if err != nil {
		return nil, err
	}
	return encodeWidth(f, raw), nil
}

// ResolveInt resolves user input into the raw integer an Encode call would
// transmit, without producing the wire bytes. The CLI write command uses
// this to validate against a parameter's [min,max] range before encoding
// (spec §4.D, §4.E "write" step 1).
func ResolveInt(f param.Format, input string) (int32, error) {
	spec, ok := registry[f]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}

	if opts, isSelector := param.Selectors[f]; isSelector {
		return encodeSelector(input, opts)
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 32); err == nil {
		return int32(n), nil
	}
	fv, ferr := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if ferr != nil || spec.factor == 1 {
		return 0, fmt.Errorf("%w: %q for format %q", ErrCannotEncode, input, f)
	}
	return int32(fv/spec.factor + sign(fv)*0.5), nil
}

// encodeWidth picks the canonical payload width and renders raw as
// big-endian bytes of that width (spec §4.D encoder notes).
func encodeWidth(f param.Format, raw int32) []byte {
	width := canonicalWidth(f, raw)
	out := make([]byte, width)
	u := uint32(raw)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(u)
		u >>= 8
	}
	return out
}

func canonicalWidth(f param.Format, raw int32) int {
	if f == param.FormatTem {
		return 2
	}
	if raw >= -128 && raw <= 127 {
		return 1
	}
	if raw >= -32768 && raw <= 32767 {
		return 2
	}
	return 4
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func encodeSelector(value string, opts []string) (int32, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 32); err == nil {
		return int32(n), nil
	}
	if idx := strings.Index(value, ":"); idx >= 0 {
		if n, err := strconv.ParseInt(value[:idx], 10, 32); err == nil {
			return int32(n), nil
		}
	}
	for _, opt := range opts {
		if strings.Contains(opt, value) {
			idx := strings.Index(opt, ":")
			if idx >= 0 {
				if n, err := strconv.ParseInt(opt[:idx], 10, 32); err == nil {
					return int32(n), nil
				}
			}
		}
	}
	return 0, fmt.Errorf("%w: %q not in selector set", ErrCannotEncode, value)
}
