package frp

import "fmt"

// IPv4 protocol numbers and the 802.1Q TPID checked by qualifier slots.
const (
	protoUDP  = 0x11
	protoTCP  = 0x06
	vlanTPID0 = 0x81
	vlanTPID1 = 0x00
)

// qualifier is the implicit protocol check compiled ahead of port and
// VLAN rules.
type qualifier struct {
	match  []byte
	offset uint8
}

func qualifierFor(kind MatchKind) (qualifier, bool) {
	switch kind {
	case MatchL4SourceUDPPort, MatchL4DestUDPPort:
		return qualifier{match: []byte{protoUDP}, offset: offsetIP4Proto}, true
	case MatchL4SourceTCPPort, MatchL4DestTCPPort:
		return qualifier{match: []byte{protoTCP}, offset: offsetIP4Proto}, true
	case MatchVLAN:
		return qualifier{match: []byte{vlanTPID0, vlanTPID1}, offset: offsetVLANProto}, true
	}
	return qualifier{}, false
}

// compileRule writes the qualifier (if the kind needs one) and the rule's
// match slots into t starting at pos, and returns the number of slots
// written. t.count is not changed.
func (t *Table) compileRule(pos int, r Rule) (int, error) {
	offset := r.Kind.FrameOffset(r.Offset)
	req := RequiredSlots(offset, len(r.Match))

	q, hasQualifier := qualifierFor(r.Kind)
	if hasQualifier {
		// Qualifier, rule and the trailing catch-all must all fit.
		if pos+1+req >= MaxEntries {
			return 0, fmt.Errorf("%w: no room for protocol entry of rule %d at slot %d",
				ErrCapacity, r.ID, pos)
		}
		n, err := t.compileSlots(pos, r.ID, q.match, q.offset, ModeLink, pos+1, r.DMAChannels)
		if err != nil {
			return 0, fmt.Errorf("protocol entry: %w", err)
		}
		pos += n
	}

	link := 0
	if r.Mode.IsLink() {
		start, _, ok := t.Find(r.LinkID)
		if !ok {
			return 0, fmt.Errorf("%w: link target %d of rule %d", ErrNotFound, r.LinkID, r.ID)
		}
		if t.reaches(start, r.ID) {
			return 0, fmt.Errorf("%w: link from rule %d to rule %d forms a cycle",
				ErrValidation, r.ID, r.LinkID)
		}
		link = start
	}

	n, err := t.compileSlots(pos, r.ID, r.Match, offset, r.Mode, link, r.DMAChannels)
	if err != nil {
		return 0, err
	}
	if hasQualifier {
		n++
	}
	return n, nil
}

// reaches reports whether the continue chain starting at slot from enters
// a slot owned by rule id.
func (t *Table) reaches(from int, id int32) bool {
	i := from
	for steps := 0; steps < MaxEntries && i < t.count; steps++ {
		s := &t.slots[i]
		if s.RuleID == id {
			return true
		}
		if !s.Continue {
			return false
		}
		i = int(s.OKIndex)
	}
	return false
}

// compileSlots packs match bytes into chained slots starting at pos. For
// link modes link is the slot index the last slot chains to.
func (t *Table) compileSlots(pos int, id int32, match []byte, offset uint8,
	mode FilterMode, link int, dmaSel uint32) (int, error) {
	req := RequiredSlots(offset, len(match))
	if req == 0 {
		return 0, fmt.Errorf("%w: match length %d", ErrValidation, len(match))
	}
	if req >= MaxEntries || pos+req >= MaxEntries {
		return 0, fmt.Errorf("%w: rule %d needs %d slots at slot %d", ErrCapacity, id, req, pos)
	}

	accept, reject, inverse := mode.Flags()
	fo := offset / mdSize
	lane := int(offset % mdSize)
	md := 0
	for i := 0; i < req; i++ {
		s := Slot{
			RuleID:      id,
			FrameOffset: fo + uint8(i),
			Inverse:     inverse,
			DMAChannels: dmaSel,
		}
		for ; lane < mdSize && md < len(match); lane++ {
			s.MatchData |= uint32(match[md]) << (lane * meByteShift)
			s.MatchEnable |= uint32(meByte) << (lane * meByteShift)
			md++
		}
		lane = 0

		switch {
		case md < len(match):
			// More bytes downstream: only continue on match.
			s.Continue = true
			s.OKIndex = uint8(pos + i + 1)
		case mode.IsLink():
			s.Continue = true
			s.OKIndex = uint8(link)
		default:
			s.Accept = accept
			s.Reject = reject
		}
		t.slots[pos+i] = s
	}
	return req, nil
}
