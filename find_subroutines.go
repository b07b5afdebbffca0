package vjson

import (
	"encoding/binary"
	"math/bits"
)

// Stage 1 processes the input in 64-byte chunks. Every subroutine below takes
// one chunk and produces a 64-bit mask, LSB-first: bit i corresponds to byte i.

const chunkSize = 64

const (
	evenBits uint64 = 0x5555555555555555
	oddBits  uint64 = ^evenBits

	ones     uint64 = 0x0101010101010101
	highBits uint64 = 0x8080808080808080
	lowBits7 uint64 = 0x7f7f7f7f7f7f7f7f
)

// gatherHighBits collects the high bit of each byte of w into the low 8 bits
// of the result (the scalar form of PMOVMSKB). The multiply is exact: every
// (i,j) product lands on a distinct bit, so no carries occur.
func gatherHighBits(w uint64) uint64 {
	return (((w & highBits) >> 7) * 0x0102040810204080) >> 56
}

// zeroByteMask sets the high bit of every all-zero byte of w. The addition
// cannot carry across byte lanes, so the per-byte result is exact (the usual
// subtract-borrow trick is not: a borrow out of a zero byte flags its
// neighbor).
func zeroByteMask(w uint64) uint64 {
	return ^(((w & lowBits7) + lowBits7) | w | lowBits7)
}

// cmpMask returns a mask of the bytes in the chunk equal to c.
func cmpMask(chunk []byte, c byte) (mask uint64) {
	_ = chunk[chunkSize-1]
	pat := uint64(c) * ones
	for i := 0; i < chunkSize; i += 8 {
		w := binary.LittleEndian.Uint64(chunk[i:]) ^ pat
		mask |= gatherHighBits(zeroByteMask(w)) << i
	}
	return
}

// controlCharMask returns a mask of the bytes in the chunk below 0x20.
// Used to flag unescaped control characters inside quoted regions.
func controlCharMask(chunk []byte) (mask uint64) {
	_ = chunk[chunkSize-1]
	for i := 0; i < chunkSize; i += 8 {
		w := binary.LittleEndian.Uint64(chunk[i:]) & (0xe0e0e0e0e0e0e0e0)
		mask |= gatherHighBits(zeroByteMask(w)) << i
	}
	return
}

// nonASCIIMask returns a mask of the bytes in the chunk with the high bit set.
func nonASCIIMask(chunk []byte) (mask uint64) {
	_ = chunk[chunkSize-1]
	for i := 0; i < chunkSize; i += 8 {
		w := binary.LittleEndian.Uint64(chunk[i:])
		mask |= gatherHighBits(w) << i
	}
	return
}

// findOddBackslashSequences returns a mask of the characters terminating an
// odd-length run of backslashes, i.e. the positions whose preceding backslash
// run escapes them. A quote at such a position is not a string delimiter.
// The single-bit carry in prevIterEndsOddBackslash extends runs across chunks.
func findOddBackslashSequences(chunk []byte, prevIterEndsOddBackslash *uint64) uint64 {
	bsBits := cmpMask(chunk, '\\')
	startEdges := bsBits &^ (bsBits << 1)

	// flip the lowest start if the previous iteration ended on an odd run
	evenStartMask := evenBits ^ *prevIterEndsOddBackslash
	evenStarts := startEdges & evenStartMask
	oddStarts := startEdges &^ evenStartMask

	evenCarries := bsBits + evenStarts
	oddCarries, iterEndsOddBackslash := bits.Add64(bsBits, oddStarts, 0)
	oddCarries |= *prevIterEndsOddBackslash
	*prevIterEndsOddBackslash = iterEndsOddBackslash

	evenCarryEnds := evenCarries &^ bsBits
	oddCarryEnds := oddCarries &^ bsBits
	evenStartOddEnd := evenCarryEnds & oddBits
	oddStartEvenEnd := oddCarryEnds & evenBits
	return evenStartOddEnd | oddStartEvenEnd
}

// prefixXor maps bit i to the XOR of bits 0..i. This is carry-less
// multiplication by an all-ones operand; platforms with CLMUL do it in one
// instruction, the doubling shift-XOR ladder below is the portable form.
func prefixXor(v uint64) uint64 {
	v ^= v << 1
	v ^= v << 2
	v ^= v << 4
	v ^= v << 8
	v ^= v << 16
	v ^= v << 32
	return v
}

// findQuoteMaskAndBits computes the unescaped quote positions (quoteBits) and
// the string-interior mask covering the opening quote up to, but not
// including, the closing quote. prevIterInsideQuote is all-ones while a
// string spans into the next chunk. Bytes below 0x20 inside a string are
// recorded in errorMask.
func findQuoteMaskAndBits(chunk []byte, oddEnds uint64, prevIterInsideQuote, quoteBits, errorMask *uint64) (quoteMask uint64) {
	*quoteBits = cmpMask(chunk, '"') &^ oddEnds
	quoteMask = prefixXor(*quoteBits) ^ *prevIterInsideQuote
	*errorMask |= quoteMask & controlCharMask(chunk)
	*prevIterInsideQuote = uint64(int64(quoteMask) >> 63)
	return
}

// Twin nibble lookup tables classifying JSON characters: the class of a byte
// is loNibbleClass[b&0xf] & hiNibbleClass[b>>4]. Bits 0-2 mark the six
// structural operators, bits 3-4 mark the four whitespace characters.
var (
	loNibbleClass = [16]byte{16, 0, 0, 0, 0, 0, 0, 0, 0, 8, 12, 1, 2, 9, 0, 0}
	hiNibbleClass = [16]byte{8, 0, 18, 4, 0, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}
)

// findWhitespaceAndStructurals classifies each byte of the chunk as an
// operator character, whitespace, or neither.
func findWhitespaceAndStructurals(chunk []byte, whitespace, structurals *uint64) {
	_ = chunk[chunkSize-1]
	var ws, st uint64
	for i := 0; i < chunkSize; i++ {
		v := loNibbleClass[chunk[i]&0xf] & hiNibbleClass[chunk[i]>>4]
		if v&0x7 != 0 {
			st |= 1 << i
		}
		if v&0x18 != 0 {
			ws |= 1 << i
		}
	}
	*whitespace = ws
	*structurals = st
}

// finalizeStructurals strips operators found inside strings, re-adds the
// quote positions themselves, and marks every scalar start: a non-whitespace
// byte outside a string whose predecessor is whitespace or structural. The
// closing quote of each string is removed again at the end so that exactly
// the opening quote represents the string.
func finalizeStructurals(structurals, whitespace, quoteMask, quoteBits uint64, prevIterEndsPseudoPred *uint64) uint64 {
	structurals &^= quoteMask
	structurals |= quoteBits

	pseudoPred := structurals | whitespace
	shiftedPseudoPred := pseudoPred<<1 | *prevIterEndsPseudoPred
	*prevIterEndsPseudoPred = pseudoPred >> 63
	pseudoStructurals := shiftedPseudoPred &^ whitespace &^ quoteMask
	structurals |= pseudoStructurals

	structurals &^= quoteBits &^ quoteMask
	return structurals
}

// flattenBits appends the absolute offset of every set bit of mask, in
// ascending order. Offsets are extracted eight per round; the tail round
// writes junk slots past the popcount which are trimmed afterwards.
func flattenBits(dst []uint32, base uint32, mask uint64) []uint32 {
	if mask == 0 {
		return dst
	}
	cnt := bits.OnesCount64(mask)
	l := len(dst)
	dst = append(dst, make([]uint32, (cnt+7)&^7)...)
	for mask != 0 {
		dst[l+0] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+1] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+2] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+3] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+4] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+5] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+6] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		dst[l+7] = base + uint32(bits.TrailingZeros64(mask))
		mask &= mask - 1
		l += 8
	}
	return dst[:len(dst)-((8-cnt%8)&7)]
}

// flattenBitsSimple is the one-at-a-time variant used when the popcount
// batching buys nothing (no hardware POPCNT).
func flattenBitsSimple(dst []uint32, base uint32, mask uint64) []uint32 {
	for mask != 0 {
		dst = append(dst, base+uint32(bits.TrailingZeros64(mask)))
		mask &= mask - 1
	}
	return dst
}
