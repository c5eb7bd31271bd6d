package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/buderus-wps/internal/can"
	"github.com/kstaniek/buderus-wps/internal/codec"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// fakeLink is a minimal Link substitute driven entirely by test setup: a
// queue of frames to hand back from Receive/ReceiveMatching, and a record
// of everything sent, so engine tests don't need a real adapter.
type fakeLink struct {
	toSend    []can.Frame
	sent      []can.Frame
	flushed   int
	recvErr   error
}

func (f *fakeLink) Send(fr can.Frame) error {
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeLink) Receive(timeout time.Duration) (can.Frame, error) {
	if len(f.toSend) == 0 {
		return can.Frame{}, errors.New("fakeLink: no frames queued")
	}
	fr := f.toSend[0]
	f.toSend = f.toSend[1:]
	return fr, nil
}

func (f *fakeLink) ReceiveMatching(timeout time.Duration, wantID uint32) (can.Frame, error) {
	if f.recvErr != nil {
		return can.Frame{}, f.recvErr
	}
	for i, fr := range f.toSend {
		if fr.ID&can.EFFMask == wantID&can.EFFMask {
			f.toSend = append(f.toSend[:i], f.toSend[i+1:]...)
			return fr, nil
		}
	}
	return can.Frame{}, errors.New("fakeLink: no matching frame queued")
}

func (f *fakeLink) FlushInput() { f.flushed++ }

func accessLevel() param.Parameter {
	// spec §8 scenario 1: ACCESS_LEVEL, index=1.
	return param.Parameter{Index: 1, Name: "ACCESS_LEVEL", Min: 0, Max: 5, Format: param.FormatInt, Read: 0}
}

func TestEngine_Read_DecodesMatchingResponse(t *testing.T) {
	// spec §8 scenario 2: RTR on 0x04007FE0, response T 0C007FE0 1 02 -> 2.
	p := accessLevel()
	resp, err := can.New(p.WriteCANID(), false, []byte{0x02})
	if err != nil {
		t.Fatal(err)
	}
	link := &fakeLink{toSend: []can.Frame{resp}}
	e := New(link)

	d, err := e.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if d.Raw != 2 {
		t.Fatalf("Raw=%d, want 2", d.Raw)
	}
	if link.flushed != 1 {
		t.Fatalf("flushed=%d, want 1 (flush before every RTR)", link.flushed)
	}
	if len(link.sent) != 1 || !link.sent[0].RTR || link.sent[0].ID != p.ReadCANID() {
		t.Fatalf("sent=%+v, want one RTR frame at read CAN ID", link.sent)
	}
}

func TestEngine_Read_Timeout(t *testing.T) {
	p := accessLevel()
	link := &fakeLink{recvErr: errors.New("timeout")}
	e := New(link)
	if _, err := e.Read(p); err == nil {
		t.Fatal("want error when no matching response arrives")
	}
}

func TestEngine_Read_DegenerateTemperatureResponse(t *testing.T) {
	// spec §4.H: a 1-byte reply to a "tem" parameter is degenerate, but the
	// payload is still decoded and returned (spec §7: "the original
	// (degenerate) value is returned with a warning") rather than discarded.
	p := param.Parameter{Index: 10, Name: "GT2_TEMP", Min: -300, Max: 1000, Format: param.FormatTem, Read: 1}
	resp, err := can.New(p.WriteCANID(), false, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	link := &fakeLink{toSend: []can.Frame{resp}}
	e := New(link)

	d, err := e.Read(p)
	if !errors.Is(err, ErrDegenerateResponse) {
		t.Fatalf("err=%v, want ErrDegenerateResponse", err)
	}
	if d.Kind != codec.KindScaled || d.Raw != 1 {
		t.Fatalf("degenerate Read returned %+v, want the decoded 1-byte payload, not a zero value", d)
	}
}

func TestEngine_Write_UsesReadCANID(t *testing.T) {
	// spec §4.E "write": writes use the read base, not the write base.
	p := accessLevel()
	link := &fakeLink{}
	e := New(link)

	if err := e.Write(p, "3"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(link.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(link.sent))
	}
	fr := link.sent[0]
	if fr.ID != p.ReadCANID() {
		t.Fatalf("write frame ID=%#x, want read CAN ID %#x", fr.ID, p.ReadCANID())
	}
	if fr.RTR {
		t.Fatal("write frame must not be an RTR frame")
	}
	if len(fr.Payload()) != 1 || fr.Payload()[0] != 3 {
		t.Fatalf("payload=% X, want [03]", fr.Payload())
	}
}

func TestEngine_Write_RejectsReadOnlyParameter(t *testing.T) {
	p := param.Parameter{Index: 10, Name: "GT2_TEMP", Min: -300, Max: 1000, Format: param.FormatTem, Read: 1}
	e := New(&fakeLink{})
	if err := e.Write(p, "10.0"); err == nil {
		t.Fatal("want error writing a read-only parameter")
	}
}

func TestEngine_Write_RejectsOutOfRange(t *testing.T) {
	p := accessLevel()
	e := New(&fakeLink{})
	if err := e.Write(p, "99"); err == nil {
		t.Fatal("want error writing an out-of-range value")
	}
}

func TestEngine_Write_RejectsInconsistentRange(t *testing.T) {
	// spec §4.C/§7: max < min descriptors are write-blocked unconditionally.
	p := param.Parameter{Index: 261, Name: "COMPRESSOR_DHW_REQUEST", Min: 400, Max: 230, Format: param.FormatInt, Read: 0}
	e := New(&fakeLink{})
	if err := e.Write(p, "1"); !errors.Is(err, param.ErrInconsistentRange) {
		t.Fatalf("err=%v, want ErrInconsistentRange", err)
	}
}

func TestEngine_Capture_InvokesCallbackForEachFrame(t *testing.T) {
	f1, _ := can.New(0x111, false, []byte{0x01})
	f2, _ := can.New(0x222, false, []byte{0x02})
	link := &fakeLink{toSend: []can.Frame{f1, f2}}
	e := New(link)

	var seen []can.Frame
	err := e.Capture(50*time.Millisecond, func(fr can.Frame) { seen = append(seen, fr) })
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("saw %d frames, want 2", len(seen))
	}
}
