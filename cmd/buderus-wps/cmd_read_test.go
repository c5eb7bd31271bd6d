package main

import (
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// fakeReadLink is a minimal engine.Link double: it answers the RTR read
// with a queued frame and never produces anything for Capture, so
// broadcast fallback always comes up empty.
type fakeReadLink struct {
	rtrResp can.Frame
}

func (f *fakeReadLink) Send(fr can.Frame) error { return nil }

func (f *fakeReadLink) Receive(timeout time.Duration) (can.Frame, error) {
	return can.Frame{}, errors.New("fakeReadLink: no broadcast frames")
}

func (f *fakeReadLink) ReceiveMatching(timeout time.Duration, wantID uint32) (can.Frame, error) {
	return f.rtrResp, nil
}

func (f *fakeReadLink) FlushInput() {}

func gt2Temp() param.Parameter {
	return param.Parameter{Index: 10, Name: "GT2_TEMP", Min: -300, Max: 1000, Format: param.FormatTem, Read: 1}
}

func TestReadViaRTR_DegenerateResponseWithFallbackFailureReturnsOriginalValue(t *testing.T) {
	// spec §4.H step 4 / §7: when the RTR response is degenerate and the
	// broadcast fallback also finds nothing, the original (degenerate)
	// value is returned with a warning rather than an error.
	p := gt2Temp()
	resp, err := can.New(p.WriteCANID(), false, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	link := &fakeReadLink{rtrResp: resp}

	res, err := readViaRTR(link, p, 10*time.Millisecond, 10*time.Millisecond, false)
	if err != nil {
		t.Fatalf("readViaRTR: %v, want nil error (degenerate value should still be returned)", err)
	}
	if res.Source != "rtr" {
		t.Fatalf("Source=%q, want %q", res.Source, "rtr")
	}
	if res.Name != p.Name {
		t.Fatalf("Name=%q, want %q", res.Name, p.Name)
	}
}

func TestReadViaRTR_NoFallbackSkipsBroadcastOnDegenerateResponse(t *testing.T) {
	p := gt2Temp()
	resp, err := can.New(p.WriteCANID(), false, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	link := &fakeReadLink{rtrResp: resp}

	res, err := readViaRTR(link, p, 10*time.Millisecond, time.Second, true)
	if err != nil {
		t.Fatalf("readViaRTR: %v, want nil error", err)
	}
	if res.Source != "rtr" {
		t.Fatalf("Source=%q, want %q", res.Source, "rtr")
	}
}
