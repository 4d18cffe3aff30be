package types

import (
	bitfield "github.com/OffchainLabs/go-bitfield"
)

// GetBit returns the value of a bit at the given index, or false if index
// falls outside the bitlist's current logical length.
func GetBit(bits []byte, index int) bool {
	bl := bitfield.Bitlist(bits)
	if index < 0 || uint64(index) >= bl.Len() {
		return false
	}
	return bl.BitAt(uint64(index))
}

// SetBit sets a bit at the given index, growing the bitlist (preserving all
// previously set bits) if index is beyond its current length.
func SetBit(bits []byte, index int, val bool) []byte {
	bl := bitfield.Bitlist(bits)
	idx := uint64(index)

	if idx >= bl.Len() {
		grown := bitfield.NewBitlist(idx + 1)
		for i := uint64(0); i < bl.Len(); i++ {
			if bl.BitAt(i) {
				grown.SetBitAt(i, true)
			}
		}
		bl = grown
	}

	bl.SetBitAt(idx, val)
	return bl
}

// AppendBitAt sets a bit at index on a possibly-empty bitlist, initializing
// it with exactly index+1 bits of capacity when it is still nil.
func AppendBitAt(bits []byte, index int, val bool) []byte {
	if len(bits) == 0 {
		bits = bitfield.NewBitlist(uint64(index) + 1)
	}
	return SetBit(bits, index, val)
}

// CountSetBits counts the set bits in a justifications-style bitlist, used
// to tally validator votes for a given target checkpoint.
func CountSetBits(bits []byte) int {
	bl := bitfield.Bitlist(bits)
	count := 0
	for i := uint64(0); i < bl.Len(); i++ {
		if bl.BitAt(i) {
			count++
		}
	}
	return count
}
