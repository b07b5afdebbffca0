package vjson

import (
	"math/bits"
	"unicode/utf8"

	"github.com/klauspost/cpuid/v2"
)

const paddingSpaces = "                                                                "

// flatten is picked at init: the popcount-batched extraction only pays off
// when OnesCount64 compiles to a real POPCNT.
var flatten = flattenBitsSimple

func init() {
	if cpuid.CPU.Supports(cpuid.POPCNT) {
		flatten = flattenBits
	}
}

// findStructuralIndices runs stage 1 over buf: it fills p.indexes with the
// strictly increasing byte offsets of every operator character and every
// scalar start, outside strings and outside whitespace. The final partial
// chunk is copied into a space-padded scratch block so the kernels always
// see full 64-byte windows.
func (p *Parser) findStructuralIndices(buf []byte) *ParseError {
	// persistent state across the chunk loop
	prevIterEndsOddBackslash := uint64(0)

	// either all zeros or all ones while a string spans a chunk boundary
	prevIterInsideQuote := uint64(0)

	// the very first character is considered to follow whitespace for the
	// purpose of scalar-start detection
	prevIterEndsPseudoPred := uint64(1)

	errorMask := uint64(0) // unescaped control characters within strings
	nonASCII := uint64(0)
	ctrlOffset := -1

	indexes := p.indexes[:0]

	idx := 0
	for ; idx+chunkSize <= len(buf); idx += chunkSize {
		chunk := buf[idx : idx+chunkSize]

		oddEnds := findOddBackslashSequences(chunk, &prevIterEndsOddBackslash)

		quoteBits := uint64(0)
		prevErrors := errorMask
		quoteMask := findQuoteMaskAndBits(chunk, oddEnds, &prevIterInsideQuote, &quoteBits, &errorMask)
		if errorMask != prevErrors && ctrlOffset < 0 {
			ctrlOffset = idx + bits.TrailingZeros64(errorMask&^prevErrors)
		}

		whitespace, structurals := uint64(0), uint64(0)
		findWhitespaceAndStructurals(chunk, &whitespace, &structurals)

		structurals = finalizeStructurals(structurals, whitespace, quoteMask, quoteBits, &prevIterEndsPseudoPred)
		nonASCII |= nonASCIIMask(chunk)

		indexes = flatten(indexes, uint32(idx), structurals)
	}

	if idx < len(buf) {
		var tmpbuf [chunkSize]byte
		copy(tmpbuf[:], paddingSpaces)
		copy(tmpbuf[:], buf[idx:])

		oddEnds := findOddBackslashSequences(tmpbuf[:], &prevIterEndsOddBackslash)

		quoteBits := uint64(0)
		prevErrors := errorMask
		quoteMask := findQuoteMaskAndBits(tmpbuf[:], oddEnds, &prevIterInsideQuote, &quoteBits, &errorMask)
		if errorMask != prevErrors && ctrlOffset < 0 {
			ctrlOffset = idx + bits.TrailingZeros64(errorMask&^prevErrors)
		}

		whitespace, structurals := uint64(0), uint64(0)
		findWhitespaceAndStructurals(tmpbuf[:], &whitespace, &structurals)

		structurals = finalizeStructurals(structurals, whitespace, quoteMask, quoteBits, &prevIterEndsPseudoPred)
		nonASCII |= nonASCIIMask(tmpbuf[:])

		indexes = flatten(indexes, uint32(idx), structurals)
	}

	p.indexes = indexes

	if prevIterInsideQuote != 0 {
		return &ParseError{Code: UnexpectedEnd, Offset: len(buf)}
	}
	if ctrlOffset >= 0 {
		return &ParseError{Code: UnexpectedCharacter, Offset: ctrlOffset, Char: buf[ctrlOffset]}
	}
	if nonASCII != 0 && !utf8.Valid(buf) {
		off := firstInvalidUtf8(buf)
		return &ParseError{Code: InvalidUtf8, Offset: off, Char: buf[off]}
	}
	if len(indexes) == 0 {
		return &ParseError{Code: UnexpectedEnd, Offset: len(buf)}
	}
	return nil
}
