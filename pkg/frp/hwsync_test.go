package frp

import (
	"errors"
	"fmt"
	"testing"
)

// fakeHW records parser operations and can fail selected steps.
type fakeHW struct {
	ops     []string
	slots   map[uint32]Slot
	valid   uint32
	enabled bool
	writes  int

	failDisable error
	failEnable  error
	failValid   error
	failWriteAt int // fail the nth WriteSlot call (1-based), 0 = never
}

func newFakeHW() *fakeHW {
	return &fakeHW{slots: make(map[uint32]Slot), enabled: true}
}

func (h *fakeHW) DisableParser() error {
	h.ops = append(h.ops, "disable")
	if h.failDisable != nil {
		return h.failDisable
	}
	h.enabled = false
	return nil
}

func (h *fakeHW) EnableParser() error {
	h.ops = append(h.ops, "enable")
	if h.failEnable != nil {
		return h.failEnable
	}
	h.enabled = true
	return nil
}

func (h *fakeHW) WriteSlot(index uint32, s Slot) error {
	h.writes++
	h.ops = append(h.ops, fmt.Sprintf("slot %d", index))
	if h.failWriteAt != 0 && h.writes == h.failWriteAt {
		return errors.New("indirect access busy")
	}
	h.slots[index] = s
	return nil
}

func (h *fakeHW) WriteValidCount(n uint32) error {
	h.ops = append(h.ops, fmt.Sprintf("valid %d", n))
	if h.failValid != nil {
		return h.failValid
	}
	h.valid = n
	return nil
}

func (h *fakeHW) reset() {
	h.ops = nil
	h.writes = 0
}

// proberHW adds parser feature reporting to fakeHW.
type proberHW struct {
	*fakeHW
	supported bool
}

func (h proberHW) ParserSupported() bool { return h.supported }

func tableOf(slots ...Slot) *Table {
	t := &Table{}
	copy(t.slots[:], slots)
	t.count = len(slots)
	return t
}

func TestWriteTable_Order(t *testing.T) {
	hw := newFakeHW()
	tbl := tableOf(
		Slot{RuleID: 1, MatchData: 0x11, MatchEnable: 0xFF, Accept: true},
		Slot{RuleID: 2, MatchData: 0x22, MatchEnable: 0xFF, Reject: true},
	)
	if err := writeTable(hw, tbl); err != nil {
		t.Fatalf("writeTable: %v", err)
	}

	want := []string{"disable", "slot 0", "slot 1", "slot 2", "valid 3", "enable"}
	if fmt.Sprint(hw.ops) != fmt.Sprint(want) {
		t.Errorf("ops = %v, want %v", hw.ops, want)
	}
	if hw.slots[0] != tbl.slots[0] || hw.slots[1] != tbl.slots[1] {
		t.Error("live slots not written verbatim")
	}
	last := hw.slots[2]
	if last.MatchEnable != 0 || !last.Accept || !last.Reject {
		t.Errorf("catch-all = %+v, want ME=0 AF=1 RF=1", last)
	}
	if !hw.enabled {
		t.Error("parser left disabled")
	}
}

func TestWriteTable_EmptyTableWritesCatchAll(t *testing.T) {
	hw := newFakeHW()
	if err := writeTable(hw, &Table{}); err != nil {
		t.Fatalf("writeTable: %v", err)
	}
	if len(hw.slots) != 1 || hw.slots[0] != CatchAll() {
		t.Errorf("slots = %+v, want only the catch-all", hw.slots)
	}
	if hw.valid != 1 {
		t.Errorf("valid = %d, want 1", hw.valid)
	}
}

func TestWriteTable_DisableFailure(t *testing.T) {
	hw := newFakeHW()
	hw.failDisable = errors.New("RXPI stuck")
	err := writeTable(hw, tableOf(Slot{RuleID: 1}))
	if !errors.Is(err, ErrHardware) {
		t.Fatalf("err = %v, want ErrHardware", err)
	}
	want := []string{"disable", "enable"}
	if fmt.Sprint(hw.ops) != fmt.Sprint(want) {
		t.Errorf("ops = %v, want %v", hw.ops, want)
	}
}

func TestWriteTable_SlotFailureSkipsRest(t *testing.T) {
	hw := newFakeHW()
	hw.failWriteAt = 2
	err := writeTable(hw, tableOf(Slot{RuleID: 1}, Slot{RuleID: 2}, Slot{RuleID: 3}))
	if !errors.Is(err, ErrHardware) {
		t.Fatalf("err = %v, want ErrHardware", err)
	}
	want := []string{"disable", "slot 0", "slot 1", "enable"}
	if fmt.Sprint(hw.ops) != fmt.Sprint(want) {
		t.Errorf("ops = %v, want %v", hw.ops, want)
	}
}

func TestWriteTable_ValidCountFailure(t *testing.T) {
	hw := newFakeHW()
	hw.failValid = errors.New("nve rejected")
	err := writeTable(hw, tableOf(Slot{RuleID: 1}))
	if !errors.Is(err, ErrHardware) {
		t.Fatalf("err = %v, want ErrHardware", err)
	}
	if hw.ops[len(hw.ops)-1] != "enable" {
		t.Errorf("last op = %s, want enable", hw.ops[len(hw.ops)-1])
	}
}

func TestWriteTable_EnableFailure(t *testing.T) {
	hw := newFakeHW()
	hw.failEnable = errors.New("RXPI not set")
	err := writeTable(hw, tableOf(Slot{RuleID: 1}))
	if !errors.Is(err, ErrHardware) {
		t.Fatalf("err = %v, want ErrHardware", err)
	}
	if hw.valid != 2 {
		t.Errorf("valid = %d, want 2 (writes done before enable)", hw.valid)
	}
}

func TestWriteTable_FirstErrorWins(t *testing.T) {
	hw := newFakeHW()
	hw.failValid = errors.New("nve rejected")
	hw.failEnable = errors.New("RXPI not set")
	err := writeTable(hw, tableOf(Slot{RuleID: 1}))
	if !errors.Is(err, hw.failValid) {
		t.Errorf("err = %v, want the valid count error", err)
	}
}

func TestWriteTable_FullTable(t *testing.T) {
	hw := newFakeHW()
	tbl := &Table{count: MaxEntries}
	err := writeTable(hw, tbl)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
	if hw.writes != 0 {
		t.Errorf("writes = %d, want 0", hw.writes)
	}
	if !hw.enabled {
		t.Error("parser left disabled")
	}
}
