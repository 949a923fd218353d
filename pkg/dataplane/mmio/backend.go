package mmio

import (
	"errors"
	"fmt"
	"time"

	"github.com/psaab/frpd/pkg/dataplane"
	"github.com/psaab/frpd/pkg/frp"
)

func init() {
	dataplane.RegisterBackend(dataplane.TypeMMIO, func(opts dataplane.Options) (dataplane.Backend, error) {
		if opts.Device == "" {
			return nil, errors.New("no register device configured")
		}
		return Open(opts.Device, opts.Variant)
	})
}

// Layout holds the parser register offsets of one MAC variant.
type Layout struct {
	HWFeature3 uint32 // MAC_HW_Feature3
	FRPSel     uint32 // parser present bit in HWFeature3
	OpMode     uint32 // MTL operation mode, FRPE bit
	RxpCS      uint32 // parser control/status, RXPI and NVE/NPE
	IndCS      uint32 // indirect access control/status
	IndData    uint32 // indirect access data
}

// span returns the register file size the layout needs.
func (l Layout) span() int {
	return int(max(l.HWFeature3, l.OpMode, l.RxpCS, l.IndCS, l.IndData)) + 4
}

var layouts = map[frp.Variant]Layout{
	frp.VariantEQOS: {HWFeature3: 0x0128, FRPSel: 1 << 10,
		OpMode: 0x0C00, RxpCS: 0x0CA0, IndCS: 0x0CB0, IndData: 0x0CB4},
	frp.VariantMGBE: {HWFeature3: 0x0128, FRPSel: 1 << 3,
		OpMode: 0x1000, RxpCS: 0x10A0, IndCS: 0x10B0, IndData: 0x10B4},
}

// Register bits.
const (
	opModeFRPE = 1 << 15

	rxpCSIdle     = 1 << 31
	rxpCSNVEMask  = 0xFF
	rxpCSNPEShift = 16
	rxpCSNPEMask  = 0xFF << rxpCSNPEShift

	indCSBusy     = 1 << 31
	indCSAccSel   = 1 << 24
	indCSWrite    = 1 << 16
	indCSAddrMask = 0x3FF
)

const (
	defaultPollInterval = time.Microsecond
	defaultPollRetries  = 1000
)

// Backend writes parser instructions through the indirect access window.
type Backend struct {
	regs    Registers
	layout  Layout
	variant frp.Variant
	m       *mapping

	PollInterval time.Duration
	PollRetries  int
}

var (
	_ dataplane.Backend = (*Backend)(nil)
	_ frp.FeatureProber = (*Backend)(nil)
)

// New returns a backend driving regs with the register layout of v.
func New(regs Registers, v frp.Variant) (*Backend, error) {
	l, ok := layouts[v]
	if !ok {
		return nil, fmt.Errorf("no register layout for variant %s", v)
	}
	return &Backend{
		regs:         regs,
		layout:       l,
		variant:      v,
		PollInterval: defaultPollInterval,
		PollRetries:  defaultPollRetries,
	}, nil
}

// Open maps the register file at path, typically a PCI resource file.
func Open(path string, v frp.Variant) (*Backend, error) {
	m, err := mapRegisters(path)
	if err != nil {
		return nil, err
	}
	b, err := New(m, v)
	if err != nil {
		m.close()
		return nil, err
	}
	if len(m.mem) < b.layout.span() {
		m.close()
		return nil, fmt.Errorf("%s: mapping of %d bytes does not cover the %s registers (%d bytes)",
			path, len(m.mem), v, b.layout.span())
	}
	b.m = m
	return b, nil
}

func (b *Backend) Name() string { return string(dataplane.TypeMMIO) }

func (b *Backend) Close() error {
	if b.m == nil {
		return nil
	}
	return b.m.close()
}

// ParserSupported reports the FRPSEL bit of MAC_HW_Feature3.
func (b *Backend) ParserSupported() bool {
	return b.regs.Read32(b.layout.HWFeature3)&b.layout.FRPSel != 0
}

// DisableParser clears FRPE and waits for the parser to go idle.
func (b *Backend) DisableParser() error {
	return b.setFRPE(false)
}

// EnableParser sets FRPE and waits for the parser to report idle.
func (b *Backend) EnableParser() error {
	return b.setFRPE(true)
}

func (b *Backend) setFRPE(on bool) error {
	v := b.regs.Read32(b.layout.OpMode)
	if on {
		v |= opModeFRPE
	} else {
		v &^= opModeFRPE
	}
	b.regs.Write32(b.layout.OpMode, v)

	if err := b.poll(b.layout.RxpCS, rxpCSIdle, rxpCSIdle); err != nil {
		return fmt.Errorf("parser idle (frpe=%t): %w", on, err)
	}
	return nil
}

// WriteSlot writes the four instruction words of slot index.
func (b *Backend) WriteSlot(index uint32, s frp.Slot) error {
	if index >= frp.MaxEntries {
		return fmt.Errorf("slot index %d out of range", index)
	}
	in := dataplane.Encode(s, b.variant)
	for k, word := range in {
		addr := index*dataplane.InstructionWords + uint32(k)
		if err := b.writeIndirect(addr, word); err != nil {
			return fmt.Errorf("slot %d word %d: %w", index, k, err)
		}
	}
	return nil
}

// WriteValidCount programs NVE and NPE with the last valid index.
func (b *Backend) WriteValidCount(n uint32) error {
	if n == 0 || n > frp.MaxEntries {
		return fmt.Errorf("valid count %d out of range", n)
	}
	last := n - 1
	v := b.regs.Read32(b.layout.RxpCS)
	v &^= rxpCSNVEMask | rxpCSNPEMask
	v |= last & rxpCSNVEMask
	v |= last << rxpCSNPEShift & rxpCSNPEMask
	b.regs.Write32(b.layout.RxpCS, v)
	return nil
}

func (b *Backend) writeIndirect(addr, data uint32) error {
	if err := b.poll(b.layout.IndCS, indCSBusy, 0); err != nil {
		return fmt.Errorf("wait ready: %w", err)
	}
	b.regs.Write32(b.layout.IndData, data)

	cs := b.regs.Read32(b.layout.IndCS)
	cs &^= indCSAddrMask | indCSAccSel
	cs |= indCSWrite | addr&indCSAddrMask | indCSBusy
	b.regs.Write32(b.layout.IndCS, cs)

	if err := b.poll(b.layout.IndCS, indCSBusy, 0); err != nil {
		return fmt.Errorf("wait complete: %w", err)
	}
	return nil
}

// errTimeout is returned when a register poll runs out of retries.
var errTimeout = errors.New("register poll timed out")

func (b *Backend) poll(off, mask, want uint32) error {
	var v uint32
	for i := 0; i <= b.PollRetries; i++ {
		v = b.regs.Read32(off)
		if v&mask == want {
			return nil
		}
		if b.PollInterval > 0 {
			time.Sleep(b.PollInterval)
		}
	}
	return fmt.Errorf("%w: reg 0x%x = 0x%x", errTimeout, off, v)
}
