package bus

import (
	"fmt"
	"sync"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
)

// Sim is an in-memory register file. It records every write and can be told
// to fail on specific registers, which makes it usable both as a simulated
// device and as a test double.
type Sim struct {
	mu     sync.Mutex
	regs   [256]byte
	writes []Write
	fail   map[byte]bool

	// OnWrite, when set, runs after a successful write with the bus unlocked.
	OnWrite func(s *Sim, reg, value byte)
	// OnBlock, when set, runs before a block read so the data registers can
	// be refreshed.
	OnBlock func(s *Sim, reg byte, n int)
	// MaxBlock caps the length returned by ReadBlock; zero means no cap.
	MaxBlock int
}

func NewSim() *Sim {
	return &Sim{fail: map[byte]bool{}}
}

// Set stores a register value without recording a write.
func (s *Sim) Set(reg, value byte) {
	s.mu.Lock()
	s.regs[reg] = value
	s.mu.Unlock()
}

// SetBlock stores consecutive register values starting at reg.
func (s *Sim) SetBlock(reg byte, values []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range values {
		s.regs[int(reg)+i] = v
	}
}

// Get returns a register value.
func (s *Sim) Get(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

// Fail makes every access to reg return a transport error.
func (s *Sim) Fail(reg byte) {
	s.mu.Lock()
	s.fail[reg] = true
	s.mu.Unlock()
}

// Writes returns a copy of the write log.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

func (s *Sim) WriteRegister(reg, value byte) error {
	s.mu.Lock()
	if s.fail[reg] {
		s.mu.Unlock()
		return fmt.Errorf("write 0x%02X: %w", reg, hwerr.ErrTransport)
	}
	s.regs[reg] = value
	s.writes = append(s.writes, Write{Reg: reg, Value: value})
	hook := s.OnWrite
	s.mu.Unlock()
	if hook != nil {
		hook(s, reg, value)
	}
	return nil
}

func (s *Sim) ReadRegister(reg byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[reg] {
		return 0, fmt.Errorf("read 0x%02X: %w", reg, hwerr.ErrTransport)
	}
	return s.regs[reg], nil
}

func (s *Sim) ReadBlock(reg byte, n int) ([]byte, error) {
	if s.OnBlock != nil {
		s.OnBlock(s, reg, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(reg)+n > len(s.regs) {
		return nil, fmt.Errorf("read block 0x%02X[%d]: %w", reg, n, hwerr.ErrTransport)
	}
	for i := 0; i < n; i++ {
		if s.fail[reg+byte(i)] {
			return nil, fmt.Errorf("read block 0x%02X[%d]: %w", reg, n, hwerr.ErrTransport)
		}
	}
	if s.MaxBlock > 0 && n > s.MaxBlock {
		n = s.MaxBlock
	}
	return append([]byte(nil), s.regs[int(reg):int(reg)+n]...), nil
}

func (s *Sim) Close() error { return nil }
