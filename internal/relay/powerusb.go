package relay

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// PowerUSB drives socket 1 of a PowerUSB strip through its hidraw node.
// The device protocol is single-letter commands ('A' on, 'B' off) and a
// two-byte status report (0x00, 0xa1) answered with one byte. Each
// command needs a short settle delay before the next one.
const (
	powerUSBSettle = 20 * time.Millisecond

	cmdSocketOn     = 'A'
	cmdSocketOff    = 'B'
	reportSocketOne = 0xa1
)

type PowerUSB struct {
	mu   sync.Mutex
	path string
	dev  *os.File
}

// OpenPowerUSB opens the hidraw device node, e.g. /dev/hidraw0. The node
// must be readable and writable by the kiosk user (udev rule).
func OpenPowerUSB(path string) (*PowerUSB, error) {
	dev, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open powerusb device %s: %w", path, err)
	}
	return &PowerUSB{path: path, dev: dev}, nil
}

func (p *PowerUSB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Close()
}

func (p *PowerUSB) write(buf []byte) error {
	if _, err := p.dev.Write(buf); err != nil {
		return fmt.Errorf("write powerusb %s: %w", p.path, err)
	}
	time.Sleep(powerUSBSettle)
	return nil
}

func (p *PowerUSB) Energize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write([]byte{cmdSocketOn})
}

func (p *PowerUSB) Deenergize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write([]byte{cmdSocketOff})
}

func (p *PowerUSB) Status() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write([]byte{0x00, reportSocketOne}); err != nil {
		return false, err
	}
	buf := make([]byte, 1)
	if _, err := p.dev.Read(buf); err != nil {
		return false, fmt.Errorf("read powerusb %s: %w", p.path, err)
	}
	return buf[0] == 1, nil
}
