// Package param implements the parameter descriptor and table (spec §3,
// §4.C): the addressing scheme and range-validation rules for the ~1800
// named points on the Buderus WPS CAN bus.
package param

import (
	"errors"
	"fmt"
	"strings"
)

// CAN ID construction constants, reproduced bit-exact from the FHEM
// reference (spec §4.C, §6).
const (
	ReadIDBase  uint32 = 0x04003FE0
	WriteIDBase uint32 = 0x0C003FE0
	idxShift           = 14
)

// Format is the closed set of wire-format tags a descriptor can carry.
type Format string

const (
	FormatInt Format = "int"
	FormatT15 Format = "t15"
	FormatHM1 Format = "hm1"
	FormatHM2 Format = "hm2"
	FormatTem Format = "tem"
	FormatPW2 Format = "pw2"
	FormatPW3 Format = "pw3"
	FormatSW1 Format = "sw1"
	FormatSW2 Format = "sw2"
	FormatRP1 Format = "rp1"
	FormatRP2 Format = "rp2"
	FormatDP1 Format = "dp1"
	FormatDP2 Format = "dp2"
)

// IsTemperature reports whether a format denotes a temperature reading,
// including the "temp*" variants spec §4.H's degenerate-response check
// allows for (the embedded fallback table only ever emits "tem", but
// discovery-only descriptors default to "int" and external tables could
// plausibly use a "temp"-prefixed tag).
func (f Format) IsTemperature() bool {
	s := string(f)
	return s == string(FormatTem) || strings.HasPrefix(s, "temp")
}

// Selectors lists the option tuples ("<n>:<Name>") for rp1/rp2/dp1/dp2
// formats, matching %KM273_format in the FHEM reference.
var Selectors = map[Format][]string{
	FormatRP1: {
		"0:HP_Optimized", "1:Program_1", "2:Program_2", "3:Family",
		"4:Morning", "5:Evening", "6:Seniors",
	},
	FormatRP2: {
		"0:Automatic", "1:Normal", "2:Exception", "3:HeatingOff",
	},
	FormatDP1: {
		"0:Always_On", "1:Program_1", "2:Program_2",
	},
	FormatDP2: {
		"0:Automatic", "1:Always_On", "2:Always_Off",
	},
}

// Parameter is an immutable descriptor for one addressable data point.
// Construct it as a struct literal; there are no setters, matching the FHEM reference's
// frozen dataclass (original_source/buderus_wps/parameter.py).
type Parameter struct {
	Index  int
	ExtID  string // 14-hex-char opaque identifier, integrity/lookup only
	Min    int
	Max    int
	Format Format
	Read   int // 0 = writable, non-zero = read-only; preserved verbatim
	Name   string
}

// Writable reports whether read == 0.
func (p Parameter) Writable() bool { return p.Read == 0 }

// RangeConsistent reports whether max >= min. Descriptors with max < min
// are preserved verbatim from the reference table but are write-blocked
// (spec §3, §4.C, §9 open question (b)).
func (p Parameter) RangeConsistent() bool { return p.Max >= p.Min }

// ReadCANID returns the CAN identifier used to request this parameter's
// current value (spec §4.C, §6): 0x04003FE0 | (index << 14).
func (p Parameter) ReadCANID() uint32 { return ReadIDBase | uint32(p.Index)<<idxShift }

// WriteCANID returns the CAN identifier used both to write this parameter
// and as the response identifier to a read request (spec §4.C, §6):
// 0x0C003FE0 | (index << 14).
func (p Parameter) WriteCANID() uint32 { return WriteIDBase | uint32(p.Index)<<idxShift }

var (
	// ErrOutOfRange is returned by Validate for in-range-consistent
	// parameters whose value falls outside [min, max].
	ErrOutOfRange = errors.New("param: value out of range")
	// ErrInconsistentRange is returned for descriptors where max < min;
	// such parameters are refused for writes regardless of the value
	// (spec §4.C, §7, §9).
	ErrInconsistentRange = errors.New("param: inconsistent min/max, write blocked")
)

// Validate applies spec §4.C's validate(value, param): if max >= min,
// accept iff min <= value <= max; otherwise refuse unconditionally.
func (p Parameter) Validate(value int) error {
	if !p.RangeConsistent() {
		return fmt.Errorf("%w: %s has min=%d max=%d", ErrInconsistentRange, p.Name, p.Min, p.Max)
	}
	if value < p.Min || value > p.Max {
		return fmt.Errorf("%w: %s=%d not in [%d,%d]", ErrOutOfRange, p.Name, value, p.Min, p.Max)
	}
	return nil
}
