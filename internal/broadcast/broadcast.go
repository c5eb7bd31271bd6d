// Package broadcast implements the passive broadcast monitor (spec §4.H):
// decoding periodic sensor frames by their (base, idx) address and looking
// named parameters up among the captured readings. The degenerate-RTR
// fallback that uses these lookups lives in the CLI's read command.
//
// KNOWN_BROADCASTS and PARAM_TO_BROADCAST below are reproduced from
// original_source/tests/unit/test_broadcast_monitor.py, the only place in
// the retrieval pack carrying concrete (base, idx) -> name mappings.
package broadcast

import (
	"strings"
	"time"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/codec"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// Reading is one decoded broadcast observation (spec §3 "Broadcast
// reading").
type Reading struct {
	CANID     uint32
	Base      uint16
	Idx       uint16
	DLC       uint8
	RawBytes  [8]byte
	RawValue  int32
	Timestamp time.Time
}

// IsTemperature reports whether the reading looks like a tenths-of-a-degree
// temperature sample: a 2-byte payload in [-50.0, 150.0] deg C (spec §3).
func (r Reading) IsTemperature() bool {
	return r.DLC == 2 && r.RawValue >= -500 && r.RawValue <= 1500
}

// Temperature decodes RawValue as tenths of a degree Celsius.
func (r Reading) Temperature() float64 { return float64(r.RawValue) / 10 }

// Circuit extracts the heating-circuit number encoded in the low bits of
// Base, matching BroadcastReading.circuit in the reference.
func (r Reading) Circuit() int { return int(r.Base & 0x3) }

// key identifies a broadcast slot by its base and idx.
type key struct {
	base uint16
	idx  uint16
}

type entry struct {
	name   string
	format param.Format
}

// KnownBroadcasts maps (base, idx) to the sensor name and format known to
// be carried there, reproduced from the Python reference's
// KNOWN_BROADCASTS table.
var KnownBroadcasts = map[key]entry{
	{base: 0x0060, idx: 12}: {name: "OUTDOOR_TEMP_C0", format: param.FormatTem},
	{base: 0x0060, idx: 0}:  {name: "RC10_C1_ROOM_TEMP", format: param.FormatTem},
	{base: 0x0060, idx: 18}: {name: "RC10_C1_DEMAND_TEMP", format: param.FormatTem},
	{base: 0x0402, idx: 55}: {name: "RC10_C3_ROOM_TEMP_ALT", format: param.FormatTem},
	{base: 0x0402, idx: 107}: {name: "RC10_C3_DEMAND_TEMP", format: param.FormatTem},
	{base: 0x0402, idx: 78}: {name: "DHW_TEMP_ACTUAL", format: param.FormatTem},
}

// paramToBroadcast maps an upper-cased parameter name to the (base, idx)
// it is broadcast at. A nil base pointer means "search all four
// heating-circuit bases" (0x0060-0x0063), matching GT2_TEMP's wildcard
// entry in the reference. Parameters absent from this map (e.g. GT3_TEMP,
// the DHW tank probe) are not observable via broadcast at all and must be
// read via RTR.
var paramToBroadcast = map[string]struct {
	base *uint16
	idx  uint16
}{
	"GT2_TEMP": {base: nil, idx: 12},
}

const (
	circuitBaseLow  uint16 = 0x0060
	circuitBaseHigh uint16 = 0x0063
)

// KnownName returns the sensor name known for r's (base, idx) slot, or ""
// if the slot is not in KnownBroadcasts.
func KnownName(r Reading) string {
	if e, ok := KnownBroadcasts[key{base: r.Base, idx: r.Idx}]; ok {
		return e.name
	}
	return ""
}

// FormatFor returns the format known for r's (base, idx) slot; ok is false
// (and the format empty) if the slot is not in KnownBroadcasts.
func FormatFor(r Reading) (param.Format, bool) {
	if e, ok := KnownBroadcasts[key{base: r.Base, idx: r.Idx}]; ok {
		return e.format, true
	}
	return "", false
}

// LookupParameter returns the (base, idx) a named parameter is broadcast
// at. If the parameter's entry has a wildcard base, onBase is nil and
// callers should try WildcardBases() in turn. ok is false if the parameter
// is not observable via broadcast at all.
func LookupParameter(name string) (onBase *uint16, idx uint16, ok bool) {
	e, found := paramToBroadcast[strings.ToUpper(strings.TrimSpace(name))]
	if !found {
		return nil, 0, false
	}
	return e.base, e.idx, true
}

// WildcardBases enumerates the heating-circuit bases a wildcard
// PARAM_TO_BROADCAST entry should be tried against, in order.
func WildcardBases() []uint16 {
	bases := make([]uint16, 0, 4)
	for b := circuitBaseLow; b <= circuitBaseHigh; b++ {
		bases = append(bases, b)
	}
	return bases
}

// ToReading converts a raw captured frame into a Reading.
func ToReading(f can.Frame, ts time.Time) Reading {
	var raw int32
	if f.Len >= 2 {
		raw = int32(int16(uint16(f.Data[0])<<8 | uint16(f.Data[1])))
	} else if f.Len == 1 {
		raw = int32(int8(f.Data[0]))
	}
	return Reading{
		CANID: f.ID, Base: f.Base(), Idx: f.Idx(), DLC: f.Len,
		RawBytes: f.Data, RawValue: raw, Timestamp: ts,
	}
}

// Monitor accumulates broadcast readings captured off a Capture loop and
// answers lookups against them.
type Monitor struct {
	byKey map[key]Reading
}

// NewMonitor returns an empty Monitor.
func NewMonitor() *Monitor { return &Monitor{byKey: make(map[key]Reading)} }

// Observe records r, keyed by its (base, idx), overwriting any prior
// reading at the same slot (only the most recent sample is kept).
func (m *Monitor) Observe(r Reading) { m.byKey[key{base: r.Base, idx: r.Idx}] = r }

// Lookup returns the most recent reading observed for (base, idx).
func (m *Monitor) Lookup(base, idx uint16) (Reading, bool) {
	r, ok := m.byKey[key{base: base, idx: idx}]
	return r, ok
}

// FindParameter returns the most recent reading for a named parameter,
// trying every wildcard base in order when the parameter's broadcast
// entry does not pin a single base.
func (m *Monitor) FindParameter(name string) (Reading, bool) {
	base, idx, ok := LookupParameter(name)
	if !ok {
		return Reading{}, false
	}
	if base != nil {
		return m.Lookup(*base, idx)
	}
	for _, b := range WildcardBases() {
		if r, ok := m.Lookup(b, idx); ok {
			return r, true
		}
	}
	return Reading{}, false
}

// Decode decodes a reading's raw value using the format known for its
// slot, or param.FormatTem if unknown (every broadcast slot observed so
// far is a temperature sample, per spec §4.H).
func Decode(r Reading) (codec.Decoded, error) {
	f, ok := FormatFor(r)
	if !ok {
		f = param.FormatTem
	}
	return codec.Decode(f, r.RawBytes[:r.DLC])
}
