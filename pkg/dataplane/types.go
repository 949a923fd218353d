// Package dataplane programs compiled parser tables into a backend: the
// MAC register file, a BPF map mirror or plain memory.
package dataplane

import "github.com/psaab/frpd/pkg/frp"

// Instruction is the register image of one parser slot, words IE0..IE3.
type Instruction [4]uint32

// Words per instruction and the indirect address of word k of slot i is
// i*InstructionWords+k.
const InstructionWords = 4

// IE2 layout.
const (
	IE2Accept      = 1 << 0
	IE2Reject      = 1 << 1
	IE2Inverse     = 1 << 2
	IE2NextControl = 1 << 3

	IE2FrameOffsetShift = 8
	IE2FrameOffsetMask  = 0x3F00
	IE2OKIndexShift     = 16
	IE2OKIndexMask      = 0xFF0000
	IE2DMAShift         = 24
	IE2DMAMask          = 0xFF000000
)

// IE3 carries the wide DMA channel mask on MGBE.
const IE3DMAMask = 0xFFFF

// Encode returns the register image of s for MAC variant v.
func Encode(s frp.Slot, v frp.Variant) Instruction {
	var in Instruction
	in[0] = s.MatchData
	in[1] = s.MatchEnable

	ie2 := uint32(s.FrameOffset)<<IE2FrameOffsetShift&IE2FrameOffsetMask |
		uint32(s.OKIndex)<<IE2OKIndexShift&IE2OKIndexMask |
		s.DMAChannels<<IE2DMAShift&IE2DMAMask
	if s.Accept {
		ie2 |= IE2Accept
	}
	if s.Reject {
		ie2 |= IE2Reject
	}
	if s.Inverse {
		ie2 |= IE2Inverse
	}
	if s.Continue {
		ie2 |= IE2NextControl
	}
	in[2] = ie2

	if v == frp.VariantMGBE {
		in[3] = s.DMAChannels & IE3DMAMask
	}
	return in
}

// Decode is the inverse of Encode. The owning rule id is not part of the
// register image and is left zero.
func Decode(in Instruction, v frp.Variant) frp.Slot {
	ie2 := in[2]
	s := frp.Slot{
		MatchData:   in[0],
		MatchEnable: in[1],
		Accept:      ie2&IE2Accept != 0,
		Reject:      ie2&IE2Reject != 0,
		Inverse:     ie2&IE2Inverse != 0,
		Continue:    ie2&IE2NextControl != 0,
		FrameOffset: uint8((ie2 & IE2FrameOffsetMask) >> IE2FrameOffsetShift),
		OKIndex:     uint8((ie2 & IE2OKIndexMask) >> IE2OKIndexShift),
	}
	if v == frp.VariantMGBE {
		s.DMAChannels = in[3] & IE3DMAMask
	} else {
		s.DMAChannels = (ie2 & IE2DMAMask) >> IE2DMAShift
	}
	return s
}
