package frp

// RequiredSlots returns how many table slots a match of length bytes
// starting at frame offset needs. It returns 0 for a length of zero or
// above MatchDataMax.
func RequiredSlots(offset uint8, length int) int {
	if length <= 0 || length > MatchDataMax {
		return 0
	}

	// The first slot only holds the bytes from the offset's lane onwards.
	first := mdSize - int(offset)%mdSize
	if length <= first {
		return 1
	}
	rest := length - first
	return 1 + (rest+mdSize-1)/mdSize
}
