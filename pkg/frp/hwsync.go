package frp

import (
	"fmt"
	"log/slog"
)

// Hardware is the device access the table manager needs. Implementations
// perform synchronous register writes and bounded polls.
type Hardware interface {
	DisableParser() error
	EnableParser() error
	WriteSlot(index uint32, s Slot) error
	WriteValidCount(n uint32) error
}

// FeatureProber is implemented by hardware that can tell whether the MAC
// has a receive parser at all.
type FeatureProber interface {
	ParserSupported() bool
}

// CatchAllID is the owner id reported for the synthesized catch-all slot.
const CatchAllID int32 = -1

// CatchAll returns the always-matching slot written after the live slots.
// It bypasses the parser so unmatched frames get default receive handling.
func CatchAll() Slot {
	return Slot{RuleID: CatchAllID, Accept: true, Reject: true}
}

// writeTable streams t to hw with the parser disabled. The parser is
// re-enabled on every path and the first error is returned.
func writeTable(hw Hardware, t *Table) (err error) {
	if err := hw.DisableParser(); err != nil {
		if eerr := hw.EnableParser(); eerr != nil {
			slog.Warn("failed to re-enable parser after disable failure", "err", eerr)
		}
		return fmt.Errorf("%w: disable parser: %w", ErrHardware, err)
	}
	defer func() {
		if eerr := hw.EnableParser(); eerr != nil && err == nil {
			err = fmt.Errorf("%w: enable parser: %w", ErrHardware, eerr)
		}
	}()

	if t.count+1 > MaxEntries {
		return fmt.Errorf("%w: %d live slots leave no room for the catch-all", ErrCapacity, t.count)
	}

	for i := 0; i < t.count; i++ {
		if err := hw.WriteSlot(uint32(i), t.slots[i]); err != nil {
			return fmt.Errorf("%w: write slot %d: %w", ErrHardware, i, err)
		}
	}
	if err := hw.WriteSlot(uint32(t.count), CatchAll()); err != nil {
		return fmt.Errorf("%w: write catch-all slot %d: %w", ErrHardware, t.count, err)
	}
	if err := hw.WriteValidCount(uint32(t.count + 1)); err != nil {
		return fmt.Errorf("%w: write valid count %d: %w", ErrHardware, t.count+1, err)
	}
	return nil
}
