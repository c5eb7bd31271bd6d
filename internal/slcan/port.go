package slcan

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability, the same seam the teacher's
// internal/serial/port.go uses.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// OpenPort opens the USBtin device at the given baud rate (default 115200
// per spec §4.A). readTimeout bounds each underlying Read call; Link layers
// its own per-receive timeout on top via repeated short reads.
func OpenPort(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
