// Package frp compiles packet-match rules into Flexible Receive Parser
// instructions and manages the shared 256-entry instruction table.
package frp

import "fmt"

// Table and rule limits.
const (
	MaxEntries   = 256 // instruction table size, including the catch-all
	OffsetMax    = 64  // rule offsets must be below this
	MatchDataMax = 12  // match bytes per rule

	mdSize      = 4 // match bytes per slot
	meByte      = 0xFF
	meByteShift = 8
)

// Variant selects the MAC flavour, which bounds the DMA channel mask.
type Variant int

const (
	VariantEQOS Variant = iota
	VariantMGBE
)

// MaxDMAMask returns the widest DMA channel selection the variant accepts.
func (v Variant) MaxDMAMask() uint32 {
	if v == VariantMGBE {
		return 0x3FF
	}
	return 0xFF
}

func (v Variant) String() string {
	switch v {
	case VariantEQOS:
		return "eqos"
	case VariantMGBE:
		return "mgbe"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant converts a variant name into a Variant.
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "eqos":
		return VariantEQOS, nil
	case "mgbe", "":
		return VariantMGBE, nil
	default:
		return 0, fmt.Errorf("unknown parser variant %q", name)
	}
}

// FilterMode is the action taken by the last slot of a rule.
type FilterMode uint8

const (
	ModeRoute FilterMode = iota
	ModeDrop
	ModeBypass
	ModeLink
	ModeInverseRoute
	ModeInverseDrop
	ModeInverseBypass
	ModeInverseLink
	modeMax
)

var modeNames = [modeMax]string{
	ModeRoute:         "route",
	ModeDrop:          "drop",
	ModeBypass:        "bypass",
	ModeLink:          "link",
	ModeInverseRoute:  "im-route",
	ModeInverseDrop:   "im-drop",
	ModeInverseBypass: "im-bypass",
	ModeInverseLink:   "im-link",
}

// Valid reports whether m is one of the eight defined modes.
func (m FilterMode) Valid() bool { return m < modeMax }

// IsLink reports whether the mode chains to another rule on match.
func (m FilterMode) IsLink() bool { return m == ModeLink || m == ModeInverseLink }

// Flags returns the accept, reject and inverse-match bits for the mode.
func (m FilterMode) Flags() (accept, reject, inverse bool) {
	switch m {
	case ModeRoute:
		return true, false, false
	case ModeDrop:
		return false, true, false
	case ModeBypass:
		return true, true, false
	case ModeLink:
		return false, false, false
	case ModeInverseRoute:
		return true, false, true
	case ModeInverseDrop:
		return false, true, true
	case ModeInverseBypass:
		return true, true, true
	case ModeInverseLink:
		return false, false, true
	}
	return false, false, false
}

func (m FilterMode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseFilterMode converts a mode name into a FilterMode.
func ParseFilterMode(name string) (FilterMode, error) {
	for i, n := range modeNames {
		if n == name {
			return FilterMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter mode %q", name)
}

// MatchKind selects which frame field a rule matches. Every kind except
// MatchNormal implies a fixed frame offset.
type MatchKind uint8

const (
	MatchNormal MatchKind = iota
	MatchL2Dest
	MatchL2Source
	MatchL3SourceIP
	MatchL3DestIP
	MatchL4SourceUDPPort
	MatchL4DestUDPPort
	MatchL4SourceTCPPort
	MatchL4DestTCPPort
	MatchVLAN
	matchMax
)

var kindNames = [matchMax]string{
	MatchNormal:          "normal",
	MatchL2Dest:          "l2-dst",
	MatchL2Source:        "l2-src",
	MatchL3SourceIP:      "l3-src-ip",
	MatchL3DestIP:        "l3-dst-ip",
	MatchL4SourceUDPPort: "l4-src-udp-port",
	MatchL4DestUDPPort:   "l4-dst-udp-port",
	MatchL4SourceTCPPort: "l4-src-tcp-port",
	MatchL4DestTCPPort:   "l4-dst-tcp-port",
	MatchVLAN:            "vlan",
}

// Valid reports whether k is a defined match kind.
func (k MatchKind) Valid() bool { return k < matchMax }

func (k MatchKind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseMatchKind converts a match kind name into a MatchKind.
func ParseMatchKind(name string) (MatchKind, error) {
	for i, n := range kindNames {
		if n == name {
			return MatchKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown match type %q", name)
}

// Frame offsets of the fields the fixed match kinds select (untagged IPv4).
const (
	offsetL2Dest       = 0
	offsetL2Source     = 6
	offsetVLANProto    = 12
	offsetVLANTag      = 14
	offsetIP4Proto     = 23
	offsetIP4Source    = 26
	offsetIP4Dest      = 30
	offsetL4SourcePort = 34
	offsetL4DestPort   = 36
)

// FrameOffset returns the offset a rule of this kind matches at. The
// normal kind keeps the caller's offset.
func (k MatchKind) FrameOffset(offset uint8) uint8 {
	switch k {
	case MatchL2Dest:
		return offsetL2Dest
	case MatchL2Source:
		return offsetL2Source
	case MatchL3SourceIP:
		return offsetIP4Source
	case MatchL3DestIP:
		return offsetIP4Dest
	case MatchL4SourceUDPPort, MatchL4SourceTCPPort:
		return offsetL4SourcePort
	case MatchL4DestUDPPort, MatchL4DestTCPPort:
		return offsetL4DestPort
	case MatchVLAN:
		return offsetVLANTag
	}
	return offset
}

// Rule is a caller-visible match intent. It compiles to one or more slots.
type Rule struct {
	ID          int32      `json:"id"`
	Kind        MatchKind  `json:"kind"`
	Match       []byte     `json:"match"`
	Offset      uint8      `json:"offset"`
	Mode        FilterMode `json:"mode"`
	LinkID      int32      `json:"link_id,omitempty"`
	DMAChannels uint32     `json:"dma_channels"`
}

// Equal reports whether two rules compile to the same slots.
func (r Rule) Equal(o Rule) bool {
	if r.ID != o.ID || r.Kind != o.Kind || r.Mode != o.Mode ||
		r.DMAChannels != o.DMAChannels || len(r.Match) != len(o.Match) {
		return false
	}
	if r.Kind.FrameOffset(r.Offset) != o.Kind.FrameOffset(o.Offset) {
		return false
	}
	if r.Mode.IsLink() && r.LinkID != o.LinkID {
		return false
	}
	for i := range r.Match {
		if r.Match[i] != o.Match[i] {
			return false
		}
	}
	return true
}

// Footprint returns the number of slots the rule occupies, qualifier
// included, or 0 if the match length is out of range.
func (r Rule) Footprint() int {
	req := RequiredSlots(r.Kind.FrameOffset(r.Offset), len(r.Match))
	if req == 0 {
		return 0
	}
	if _, ok := qualifierFor(r.Kind); ok {
		req++
	}
	return req
}

// Validate checks the rule fields that do not depend on table state.
func (r Rule) Validate(v Variant) error {
	switch {
	case !r.Kind.Valid():
		return fmt.Errorf("%w: rule %d: match type %d", ErrValidation, r.ID, r.Kind)
	case len(r.Match) == 0 || len(r.Match) > MatchDataMax:
		return fmt.Errorf("%w: rule %d: match length %d", ErrValidation, r.ID, len(r.Match))
	case !r.Mode.Valid():
		return fmt.Errorf("%w: rule %d: filter mode %d", ErrValidation, r.ID, r.Mode)
	case r.Offset >= OffsetMax:
		return fmt.Errorf("%w: rule %d: offset %d", ErrValidation, r.ID, r.Offset)
	case r.DMAChannels > v.MaxDMAMask():
		return fmt.Errorf("%w: rule %d: dma channels 0x%x exceed 0x%x",
			ErrValidation, r.ID, r.DMAChannels, v.MaxDMAMask())
	case r.Mode.IsLink() && r.LinkID == r.ID:
		return fmt.Errorf("%w: rule %d links to itself", ErrValidation, r.ID)
	}
	return nil
}

// Slot is one row of the parser instruction table.
type Slot struct {
	RuleID      int32
	MatchData   uint32
	MatchEnable uint32
	FrameOffset uint8
	Accept      bool
	Reject      bool
	Inverse     bool
	Continue    bool
	OKIndex     uint8
	DMAChannels uint32
}

// Op is a table command operation.
type Op int

const (
	OpAdd Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Command is a single table operation. Delete only uses Rule.ID.
type Command struct {
	Op   Op
	Rule Rule
}
