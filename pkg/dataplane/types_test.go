package dataplane

import (
	"testing"

	"github.com/psaab/frpd/pkg/frp"
)

func TestEncode_IE2Layout(t *testing.T) {
	s := frp.Slot{
		MatchData:   0xBBAA0000,
		MatchEnable: 0xFFFF0000,
		FrameOffset: 9,
		Inverse:     true,
		Continue:    true,
		OKIndex:     42,
		DMAChannels: 0x2C5,
	}

	mgbe := Encode(s, frp.VariantMGBE)
	want := Instruction{0xBBAA0000, 0xFFFF0000, 0xC52A090C, 0x2C5}
	if mgbe != want {
		t.Errorf("mgbe = %#x, want %#x", mgbe, want)
	}

	eqos := Encode(s, frp.VariantEQOS)
	if eqos[3] != 0 {
		t.Errorf("eqos IE3 = %#x, want 0", eqos[3])
	}
	if eqos[2] != mgbe[2] {
		t.Errorf("eqos IE2 = %#x, want %#x", eqos[2], mgbe[2])
	}
}

func TestEncode_CatchAll(t *testing.T) {
	in := Encode(frp.CatchAll(), frp.VariantMGBE)
	if in != (Instruction{0, 0, IE2Accept | IE2Reject, 0}) {
		t.Errorf("catch-all = %#x", in)
	}
}

func TestDecode_CompiledTable(t *testing.T) {
	for _, v := range []frp.Variant{frp.VariantEQOS, frp.VariantMGBE} {
		m := frp.NewManager(NewMemory(v), v)
		rules := []frp.Rule{
			{ID: 1, Kind: frp.MatchL4DestTCPPort, Match: []byte{0, 22}, Mode: frp.ModeInverseDrop, DMAChannels: 0x81},
			{ID: 2, Match: []byte{1, 2, 3, 4, 5, 6, 7}, Offset: 5, Mode: frp.ModeLink, LinkID: 1},
		}
		for _, r := range rules {
			if err := m.Add(r); err != nil {
				t.Fatalf("%s: add %d: %v", v, r.ID, err)
			}
		}
		tbl := m.Table()
		for i, s := range tbl.Slots() {
			got := Decode(Encode(s, v), v)
			s.RuleID = 0
			if got != s {
				t.Errorf("%s slot %d: decoded %+v, want %+v", v, i, got, s)
			}
		}
	}
}
