// Package mmio programs the parser through the MAC's memory-mapped
// register file.
package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Registers is 32-bit access to the MAC register file.
type Registers interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// mapping is a register file mapped from a PCI resource or UIO device.
type mapping struct {
	mem []byte
}

func mapRegisters(path string) (*mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(fi.Size())
	if size == 0 {
		size = os.Getpagesize()
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mapping{mem: mem}, nil
}

func (m *mapping) word(off uint32) *uint32 {
	if int(off)+4 > len(m.mem) || off%4 != 0 {
		panic(fmt.Sprintf("mmio: register offset 0x%x outside mapping", off))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}

func (m *mapping) Read32(off uint32) uint32 { return atomic.LoadUint32(m.word(off)) }

func (m *mapping) Write32(off uint32, v uint32) { atomic.StoreUint32(m.word(off), v) }

func (m *mapping) close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
