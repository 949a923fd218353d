// Package bpfmap mirrors the parser table into pinned BPF maps, where an
// XDP software parser evaluates it for NICs without a hardware parser.
package bpfmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"

	"github.com/psaab/frpd/pkg/dataplane"
	"github.com/psaab/frpd/pkg/frp"
)

func init() {
	dataplane.RegisterBackend(dataplane.TypeBPF, func(opts dataplane.Options) (dataplane.Backend, error) {
		if opts.PinPath == "" {
			return nil, errors.New("no bpffs pin path configured")
		}
		return Open(opts.PinPath, opts.Variant)
	})
}

// Map names under the pin path.
const (
	InstructionMapName = "frp_instructions"
	ControlMapName     = "frp_control"
)

// Control map keys.
const (
	CtrlEnabled uint32 = iota
	CtrlValid
	ctrlMax
)

// InstructionSpec describes the instruction array: one dataplane.Instruction
// per slot.
func InstructionSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       InstructionMapName,
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4 * dataplane.InstructionWords,
		MaxEntries: frp.MaxEntries,
	}
}

// ControlSpec describes the control array holding the enable flag and the
// valid instruction count.
func ControlSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       ControlMapName,
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: uint32(ctrlMax),
	}
}

// Backend writes the table into the instruction and control maps.
type Backend struct {
	instr   *ebpf.Map
	ctrl    *ebpf.Map
	variant frp.Variant
}

var _ dataplane.Backend = (*Backend)(nil)

// New wraps already opened maps. The backend takes ownership of both.
func New(instr, ctrl *ebpf.Map, v frp.Variant) *Backend {
	return &Backend{instr: instr, ctrl: ctrl, variant: v}
}

// Open loads the maps pinned under dir, creating and pinning them if they
// do not exist yet.
func Open(dir string, v frp.Variant) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pin dir: %w", err)
	}
	instr, err := loadOrCreate(dir, InstructionSpec())
	if err != nil {
		return nil, err
	}
	ctrl, err := loadOrCreate(dir, ControlSpec())
	if err != nil {
		instr.Close()
		return nil, err
	}
	return New(instr, ctrl, v), nil
}

func loadOrCreate(dir string, spec *ebpf.MapSpec) (*ebpf.Map, error) {
	path := filepath.Join(dir, spec.Name)
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err == nil {
		if err := checkCompatible(m, spec); err != nil {
			m.Close()
			return nil, fmt.Errorf("pinned map %s: %w", path, err)
		}
		return m, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load pinned map %s: %w", path, err)
	}

	m, err = ebpf.NewMap(spec)
	if err != nil {
		return nil, fmt.Errorf("create map %s: %w", spec.Name, err)
	}
	if err := m.Pin(path); err != nil {
		m.Close()
		return nil, fmt.Errorf("pin map %s: %w", path, err)
	}
	return m, nil
}

func checkCompatible(m *ebpf.Map, spec *ebpf.MapSpec) error {
	if m.Type() != spec.Type || m.KeySize() != spec.KeySize ||
		m.ValueSize() != spec.ValueSize || m.MaxEntries() != spec.MaxEntries {
		return fmt.Errorf("layout %s/%d/%d/%d does not match %s/%d/%d/%d",
			m.Type(), m.KeySize(), m.ValueSize(), m.MaxEntries(),
			spec.Type, spec.KeySize, spec.ValueSize, spec.MaxEntries)
	}
	return nil
}

func (b *Backend) Name() string { return string(dataplane.TypeBPF) }

func (b *Backend) Close() error {
	return errors.Join(b.instr.Close(), b.ctrl.Close())
}

func (b *Backend) DisableParser() error { return b.setControl(CtrlEnabled, 0) }

func (b *Backend) EnableParser() error { return b.setControl(CtrlEnabled, 1) }

func (b *Backend) WriteSlot(index uint32, s frp.Slot) error {
	in := dataplane.Encode(s, b.variant)
	if err := b.instr.Update(&index, &in, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("update instruction %d: %w", index, err)
	}
	return nil
}

func (b *Backend) WriteValidCount(n uint32) error {
	if n == 0 || n > frp.MaxEntries {
		return fmt.Errorf("valid count %d out of range", n)
	}
	return b.setControl(CtrlValid, n)
}

// Instruction reads back the instruction at index.
func (b *Backend) Instruction(index uint32) (dataplane.Instruction, error) {
	var in dataplane.Instruction
	if err := b.instr.Lookup(&index, &in); err != nil {
		return in, fmt.Errorf("lookup instruction %d: %w", index, err)
	}
	return in, nil
}

// Control reads a control map value.
func (b *Backend) Control(key uint32) (uint32, error) {
	var v uint32
	if err := b.ctrl.Lookup(&key, &v); err != nil {
		return 0, fmt.Errorf("lookup control %d: %w", key, err)
	}
	return v, nil
}

func (b *Backend) setControl(key, v uint32) error {
	if err := b.ctrl.Update(&key, &v, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("update control %d: %w", key, err)
	}
	return nil
}
