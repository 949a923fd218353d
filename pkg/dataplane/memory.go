package dataplane

import (
	"fmt"
	"sync"

	"github.com/psaab/frpd/pkg/frp"
)

func init() {
	RegisterBackend(TypeMemory, func(opts Options) (Backend, error) {
		return NewMemory(opts.Variant), nil
	})
}

// Memory is a backend that keeps the encoded instruction table in memory.
// It backs dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	variant frp.Variant
	instr   [frp.MaxEntries]Instruction
	valid   uint32
	enabled bool
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an enabled, empty memory backend.
func NewMemory(v frp.Variant) *Memory {
	return &Memory{variant: v, enabled: true}
}

func (m *Memory) Name() string { return string(TypeMemory) }
func (m *Memory) Close() error { return nil }

func (m *Memory) DisableParser() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	return nil
}

func (m *Memory) EnableParser() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	return nil
}

func (m *Memory) WriteSlot(index uint32, s frp.Slot) error {
	if index >= frp.MaxEntries {
		return fmt.Errorf("slot index %d out of range", index)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instr[index] = Encode(s, m.variant)
	return nil
}

func (m *Memory) WriteValidCount(n uint32) error {
	if n == 0 || n > frp.MaxEntries {
		return fmt.Errorf("valid count %d out of range", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = n
	return nil
}

// Enabled reports whether the parser is enabled.
func (m *Memory) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Instructions returns the valid part of the instruction table.
func (m *Memory) Instructions() []Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Instruction, m.valid)
	copy(out, m.instr[:m.valid])
	return out
}
