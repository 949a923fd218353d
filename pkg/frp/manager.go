package frp

import (
	"fmt"
	"io"
	"log/slog"
)

// Manager applies table commands for one MAC instance. It is not safe for
// concurrent use; callers serialize commands.
//
// Every command works on a staged copy of the table. The copy replaces the
// committed table only after it was written to hardware, so a failed
// command never changes what Table returns.
type Manager struct {
	hw          Hardware
	variant     Variant
	table       Table
	inSync      bool
	unsupported bool
}

// NewManager returns a Manager with an empty table that programs hw.
func NewManager(hw Hardware, variant Variant) *Manager {
	m := &Manager{hw: hw, variant: variant}
	if p, ok := hw.(FeatureProber); ok && !p.ParserSupported() {
		m.unsupported = true
	}
	return m
}

// Variant returns the MAC variant the manager validates against.
func (m *Manager) Variant() Variant { return m.variant }

// Len returns the number of committed live slots.
func (m *Manager) Len() int { return m.table.count }

// Table returns a copy of the committed table.
func (m *Manager) Table() Table { return m.table }

// InSync reports whether the last hardware write succeeded.
func (m *Manager) InSync() bool { return m.inSync }

// Lookup returns the slot range owned by rule id.
func (m *Manager) Lookup(id int32) (start, n int, err error) {
	start, n, ok := m.table.Find(id)
	if !ok {
		return 0, 0, fmt.Errorf("%w: rule %d", ErrNotFound, id)
	}
	return start, n, nil
}

// Apply dispatches cmd to Add, Update or Delete.
func (m *Manager) Apply(cmd Command) error {
	var err error
	switch cmd.Op {
	case OpAdd:
		err = m.Add(cmd.Rule)
	case OpUpdate:
		err = m.Update(cmd.Rule)
	case OpDelete:
		err = m.Delete(cmd.Rule.ID)
	default:
		err = fmt.Errorf("%w: unknown command %s", ErrValidation, cmd.Op)
	}
	slog.Debug("frp command",
		"op", cmd.Op, "id", cmd.Rule.ID, "live", m.table.count, "err", err)
	return err
}

// Add compiles r after the live slots and writes the table to hardware.
func (m *Manager) Add(r Rule) error {
	if err := m.validate(r); err != nil {
		return err
	}
	if m.table.count >= MaxEntries {
		return fmt.Errorf("%w: table full (%d entries)", ErrCapacity, m.table.count)
	}
	if _, _, ok := m.table.Find(r.ID); ok {
		return fmt.Errorf("%w: rule %d already exists", ErrConflict, r.ID)
	}

	staged := m.table
	n, err := staged.compileRule(staged.count, r)
	if err != nil {
		return fmt.Errorf("add rule %d: %w", r.ID, err)
	}
	staged.count += n
	return m.commit(&staged)
}

// Update recompiles r in place over its existing slots. The new rule must
// need exactly as many slots as the old one.
func (m *Manager) Update(r Rule) error {
	if err := m.validate(r); err != nil {
		return err
	}
	start, n, ok := m.table.Find(r.ID)
	if !ok {
		return fmt.Errorf("%w: rule %d", ErrNotFound, r.ID)
	}
	if req := r.Footprint(); req != n {
		return fmt.Errorf("%w: rule %d occupies %d slots, update needs %d",
			ErrValidation, r.ID, n, req)
	}

	staged := m.table
	if _, err := staged.compileRule(start, r); err != nil {
		return fmt.Errorf("update rule %d: %w", r.ID, err)
	}
	return m.commit(&staged)
}

// Delete removes the slots of rule id and compacts the table. It fails
// with ErrConflict while another rule still links into those slots.
func (m *Manager) Delete(id int32) error {
	if m.unsupported {
		return errUnsupported
	}
	if m.table.count == 0 {
		return fmt.Errorf("%w: rule %d: table is empty", ErrNotFound, id)
	}
	start, n, ok := m.table.Find(id)
	if !ok {
		return fmt.Errorf("%w: rule %d", ErrNotFound, id)
	}
	if from, linked := m.table.linkedFrom(start, n); linked {
		return fmt.Errorf("%w: rule %d is linked from rule %d", ErrConflict, id, from)
	}

	staged := m.table
	staged.remove(start, n)
	return m.commit(&staged)
}

// Resync writes the committed table to hardware again, for example after
// the device was reinitialized.
func (m *Manager) Resync() error {
	if m.unsupported {
		return errUnsupported
	}
	staged := m.table
	return m.commit(&staged)
}

// Reset clears the table without touching hardware.
func (m *Manager) Reset() {
	m.table.reset()
	m.inSync = false
}

// Dump writes the committed table in the driver's sysfs format.
func (m *Manager) Dump(w io.Writer) error {
	return m.table.Dump(w)
}

var errUnsupported = fmt.Errorf("%w: MAC has no receive parser", ErrValidation)

func (m *Manager) validate(r Rule) error {
	if m.unsupported {
		return errUnsupported
	}
	return r.Validate(m.variant)
}

func (m *Manager) commit(staged *Table) error {
	if err := writeTable(m.hw, staged); err != nil {
		m.inSync = false
		return err
	}
	m.table = *staged
	m.inSync = true
	return nil
}
