// Package serialsource reads newline-terminated samples from a serial port.
package serialsource

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

const DefaultBaudRate = 9600

// Options selects the port. Zero values fall back to 8N1 at DefaultBaudRate.
type Options struct {
	PortName string
	BaudRate uint
}

// Port is a line-oriented view of a serial device.
type Port struct {
	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	name   string
}

// Open opens the named serial device.
func Open(opts Options) (*Port, error) {
	if opts.PortName == "" {
		return nil, fmt.Errorf("serial port name is required")
	}
	baud := opts.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	rwc, err := serial.Open(serial.OpenOptions{
		PortName:              opts.PortName,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s at %d baud: %w", opts.PortName, baud, err)
	}
	return New(opts.PortName, rwc), nil
}

// New wraps an already open device.
func New(name string, rwc io.ReadWriteCloser) *Port {
	return &Port{rwc: rwc, reader: bufio.NewReader(rwc), name: name}
}

func (p *Port) Name() string { return p.name }

// Flush drops input the device delivered before the run: bytes queued in
// the tty driver are purged, then anything already pulled into the read
// buffer is discarded.
func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.rwc.(interface{ Fd() uintptr }); ok {
		if err := purgeInput(f.Fd()); err != nil {
			return fmt.Errorf("flushing %s: %w", p.name, err)
		}
	}
	if n := p.reader.Buffered(); n > 0 {
		if _, err := p.reader.Discard(n); err != nil {
			return fmt.Errorf("flushing %s: %w", p.name, err)
		}
	}
	return nil
}

// ReadLine blocks until a full line is available and returns it without
// the trailing newline. A final unterminated line is returned before io.EOF.
func (p *Port) ReadLine() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line, err := p.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return trimNewline(line), nil
		}
		return nil, err
	}
	return trimNewline(line), nil
}

func (p *Port) Close() error {
	return p.rwc.Close()
}

func trimNewline(b []byte) []byte {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return b[:n]
}
