package frp

import (
	"fmt"
	"io"
)

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Dump writes one line per live slot.
func (t *Table) Dump(w io.Writer) error {
	for i := 0; i < t.count; i++ {
		s := &t.slots[i]
		_, err := fmt.Fprintf(w,
			"[%d] ID:%d MD:0x%x ME:0x%x AF:%d RF:%d IM:%d NIC:%d FO:%d OKI:%d DCH:x%x\n",
			i, s.RuleID, s.MatchData, s.MatchEnable,
			b2i(s.Accept), b2i(s.Reject), b2i(s.Inverse), b2i(s.Continue),
			s.FrameOffset, s.OKIndex, s.DMAChannels)
		if err != nil {
			return err
		}
	}
	return nil
}
