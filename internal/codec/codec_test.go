package codec

import (
	"strconv"
	"testing"

	"github.com/kstaniek/buderus-wps/internal/param"
)

func TestDecode_IntFormat(t *testing.T) {
	// spec §8 scenario 2: response 0x02 for an "int" parameter decodes to 2.
	d, err := Decode(param.FormatInt, []byte{0x02})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindInt || d.Raw != 2 {
		t.Fatalf("got %+v, want Raw=2 Kind=KindInt", d)
	}
}

func TestDecode_Temperature(t *testing.T) {
	// spec §8 scenario 3: raw 0x0069 (105) for "tem" decodes to 10.5°C.
	d, err := Decode(param.FormatTem, []byte{0x00, 0x69})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindScaled || d.Scaled != 10.5 {
		t.Fatalf("got %+v, want Scaled=10.5", d)
	}
}

func TestDecode_DeadSensorSentinel(t *testing.T) {
	// 0xDEAD as signed 16-bit is -8531, the dead-sensor sentinel.
	d, err := Decode(param.FormatTem, []byte{0xDE, 0xAD})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindDisconnected {
		t.Fatalf("got Kind=%v, want KindDisconnected", d.Kind)
	}
}

func TestDecode_DeadValueOnlyAppliesToTemperature(t *testing.T) {
	// -8531 on a non-temperature format is just a regular integer.
	d, err := Decode(param.FormatInt, []byte{0xDE, 0xAD})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind == KindDisconnected {
		t.Fatal("non-temperature format should never report disconnected")
	}
}

func TestDecode_Selector(t *testing.T) {
	d, err := Decode(param.FormatRP1, []byte{0x03})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindSelector || d.Selector != "3:Family" {
		t.Fatalf("got %+v, want Selector=3:Family", d)
	}
}

func TestDecode_SelectorFallsBackToRawNumber(t *testing.T) {
	d, err := Decode(param.FormatRP1, []byte{0x63})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindSelector || d.Selector != "99" {
		t.Fatalf("got %+v, want Selector=99 (no matching option)", d)
	}
}

func TestDecode_UnknownFormat(t *testing.T) {
	if _, err := Decode(param.Format("bogus"), []byte{0x01}); err == nil {
		t.Fatal("want error for unknown format")
	}
}

func TestEncode_CanonicalWidth(t *testing.T) {
	cases := []struct {
		format    param.Format
		input     string
		wantWidth int
	}{
		{param.FormatTem, "10.5", 2},   // tem always 2 bytes
		{param.FormatInt, "5", 1},      // fits in 8 bits
		{param.FormatInt, "300", 2},    // exceeds 8 bits
		{param.FormatInt, "100000", 4}, // exceeds 16 bits
	}
	for _, c := range cases {
		got, err := Encode(c.format, c.input)
		if err != nil {
			t.Fatalf("Encode(%v, %q): %v", c.format, c.input, err)
		}
		if len(got) != c.wantWidth {
			t.Fatalf("Encode(%v, %q): width=%d, want %d", c.format, c.input, len(got), c.wantWidth)
		}
	}
}

func TestEncode_Selector(t *testing.T) {
	for _, input := range []string{"Family", "3", "3:Family"} {
		got, err := Encode(param.FormatRP1, input)
		if err != nil {
			t.Fatalf("Encode(%q): %v", input, err)
		}
		if len(got) != 1 || got[0] != 3 {
			t.Fatalf("Encode(%q)=% X, want [03]", input, got)
		}
	}
}

func TestEncode_UnmatchedSelectorFails(t *testing.T) {
	if _, err := Encode(param.FormatRP1, "Nonexistent"); err == nil {
		t.Fatal("want error for unmatched selector name")
	}
}

func TestDecodeEncodeIdempotence_IntFormats(t *testing.T) {
	// spec §8: decode(f, encode(f, decode(f, r))) == decode(f, r). For
	// unscaled formats the raw value round-trips through its decimal string.
	formats := []param.Format{param.FormatInt, param.FormatT15, param.FormatHM1}
	raws := [][]byte{{0x05}, {0x00, 0x69}, {0xFF, 0x9C}}
	for _, f := range formats {
		for _, raw := range raws {
			d1, err := Decode(f, raw)
			if err != nil {
				t.Fatalf("Decode(%v, % X): %v", f, raw, err)
			}
			input := formatFloat(float64(d1.Raw))
			encoded, err := Encode(f, input)
			if err != nil {
				t.Fatalf("Encode(%v, %q): %v", f, input, err)
			}
			d2, err := Decode(f, encoded)
			if err != nil {
				t.Fatalf("Decode round 2: %v", err)
			}
			if d1.Kind != d2.Kind || d1.Raw != d2.Raw {
				t.Fatalf("not idempotent for %v raw=% X: d1=%+v d2=%+v", f, raw, d1, d2)
			}
		}
	}
}

func TestDecodeEncodeIdempotence_Temperature(t *testing.T) {
	// Fractional engineering-unit round trip: 0x0069 -> 10.5°C -> "10.5" -> 0x0069.
	raw := []byte{0x00, 0x69}
	d1, err := Decode(param.FormatTem, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	encoded, err := Encode(param.FormatTem, formatFloat(d1.Scaled))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d2, err := Decode(param.FormatTem, encoded)
	if err != nil {
		t.Fatalf("Decode round 2: %v", err)
	}
	if d1.Raw != d2.Raw || d1.Scaled != d2.Scaled {
		t.Fatalf("not idempotent: d1=%+v d2=%+v", d1, d2)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
