package slcan

import (
	"bytes"
	"testing"

	"github.com/kstaniek/buderus-wps/internal/can"
)

func TestEncode_DataFrame(t *testing.T) {
	// spec §8 scenario 2: response frame "T 0C007FE0 1 02".
	fr, err := can.New(0x0C007FE0, false, []byte{0x02})
	if err != nil {
		t.Fatal(err)
	}
	got := Encode(fr)
	want := "T0C007FE0102"
	if got != want {
		t.Fatalf("Encode=%q, want %q", got, want)
	}
}

func TestEncode_RTRFrame(t *testing.T) {
	fr, err := can.New(0x04007FE0, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := Encode(fr)
	want := "R04007FE00"
	if got != want {
		t.Fatalf("Encode=%q, want %q", got, want)
	}
}

func TestDecodeStream_ParsesCompleteLine(t *testing.T) {
	buf := bytes.NewBufferString("T0C007FE0102\r")
	var got []can.Frame
	if err := DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if got[0].ID != 0x0C007FE0 || got[0].Payload()[0] != 0x02 {
		t.Fatalf("decoded %+v", got[0])
	}
}

func TestDecodeStream_BuffersPartialLine(t *testing.T) {
	buf := bytes.NewBufferString("T0C007FE0102")
	var got []can.Frame
	if err := DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("a line with no trailing CR must not decode yet")
	}
	buf.WriteString("\r")
	if err := DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames after completing the line, want 1", len(got))
	}
}

func TestDecodeStream_SkipsAckLines(t *testing.T) {
	buf := bytes.NewBufferString("z\rZ\rT0C007FE0102\r")
	var got []can.Frame
	if err := DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1 (ack lines must be ignored)", len(got))
	}
}

func TestDecodeStream_MalformedLineReturnsProtocolError(t *testing.T) {
	buf := bytes.NewBufferString("TZZZZZZZZ1\r")
	var got []can.Frame
	err := DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) })
	if err == nil {
		t.Fatal("want a ProtocolError for malformed hex")
	}
	var perr *ProtocolError
	if !asProtocolError(err, &perr) {
		t.Fatalf("err=%v, want *ProtocolError", err)
	}
	if perr.Line != "TZZZZZZZZ1" {
		t.Fatalf("ProtocolError.Line=%q, want the offending line", perr.Line)
	}
}

func asProtocolError(err error, target **ProtocolError) bool {
	if pe, ok := err.(*ProtocolError); ok {
		*target = pe
		return true
	}
	return false
}

func TestDecodeStream_ResyncsAfterMalformedLine(t *testing.T) {
	buf := bytes.NewBufferString("TZZZZZZZZ1\rT0C007FE0102\r")
	var got []can.Frame
	_ = DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) })
	if len(got) != 1 {
		t.Fatalf("got %d frames, want the valid line after the malformed one to still decode", len(got))
	}
}
