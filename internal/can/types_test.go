package can

import "testing"

func TestNew_RejectsOversizedDLC(t *testing.T) {
	_, err := New(0x123, false, make([]byte, 9))
	if err != ErrInvalidDLC {
		t.Fatalf("got err=%v, want ErrInvalidDLC", err)
	}
}

func TestNew_RejectsIDOutsideEFFMask(t *testing.T) {
	_, err := New(0x20000000, false, nil)
	if err != ErrInvalidID {
		t.Fatalf("got err=%v, want ErrInvalidID", err)
	}
}

func TestNew_CopiesData(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	fr, err := New(0x0C007FE0, false, data)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if fr.Len != 3 {
		t.Fatalf("Len=%d, want 3", fr.Len)
	}
	data[0] = 0xFF // mutating the source slice must not alter the frame
	if fr.Data[0] != 0x01 {
		t.Fatalf("frame aliased caller's slice: Data[0]=%#x", fr.Data[0])
	}
}

func TestFrame_BaseAndIdx(t *testing.T) {
	// spec §3: base = can_id & 0x3FFF, idx = (can_id >> 14) & 0xFFF.
	fr, err := New(0x00030060, false, []byte{0x00, 0x69})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := fr.Base(); got != 0x0060 {
		t.Fatalf("Base()=0x%04X, want 0x0060", got)
	}
	if got := fr.Idx(); got != 12 {
		t.Fatalf("Idx()=%d, want 12", got)
	}
}

func TestFrame_Payload(t *testing.T) {
	fr, err := New(0x1, false, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := fr.Payload()
	if len(got) != 2 || got[0] != 0xAA || got[1] != 0xBB {
		t.Fatalf("Payload()=% X, want AA BB", got)
	}
}
