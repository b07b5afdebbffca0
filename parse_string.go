package vjson

import (
	"bytes"
	"unicode/utf8"
)

// Escape-free strings whose opening quote is closer than this to the
// following structural character are returned without touching the buffer.
const shortStringWindow = 32

// escapeMap maps the byte following a backslash to its decoded value.
// Zero marks an invalid escape; 'u' escapes are handled separately.
var escapeMap = [256]byte{
	'"':  '"',
	'\\': '\\',
	'/':  '/',
	'b':  0x08,
	'f':  0x0c,
	'n':  0x0a,
	'r':  0x0d,
	't':  0x09,
}

var hexLookup = [256]int8{}

func init() {
	for i := range hexLookup {
		hexLookup[i] = -1
	}
	for c := '0'; c <= '9'; c++ {
		hexLookup[c] = int8(c - '0')
	}
	for c := 'a'; c <= 'f'; c++ {
		hexLookup[c] = int8(c - 'a' + 10)
	}
	for c := 'A'; c <= 'F'; c++ {
		hexLookup[c] = int8(c - 'A' + 10)
	}
}

// hex4 decodes four hex digits. ok is false if any digit is invalid.
func hex4(b []byte) (v uint32, ok bool) {
	d0 := hexLookup[b[0]]
	d1 := hexLookup[b[1]]
	d2 := hexLookup[b[2]]
	d3 := hexLookup[b[3]]
	if d0|d1|d2|d3 < 0 {
		return 0, false
	}
	return uint32(d0)<<12 | uint32(d1)<<8 | uint32(d2)<<4 | uint32(d3), true
}

// decodeUnicodeEscape decodes the \uXXXX escape at buf[i:], pairing UTF-16
// surrogates. It returns the rune and the number of source bytes consumed
// (6, or 12 for a surrogate pair).
func decodeUnicodeEscape(buf []byte, i int) (r rune, n int, ok bool) {
	if i+6 > len(buf) {
		return 0, 0, false
	}
	v1, ok := hex4(buf[i+2 : i+6])
	if !ok {
		return 0, 0, false
	}
	switch {
	case v1 >= 0xd800 && v1 <= 0xdbff:
		// high surrogate, the low half must follow
		if i+12 > len(buf) || buf[i+6] != '\\' || buf[i+7] != 'u' {
			return 0, 0, false
		}
		v2, ok := hex4(buf[i+8 : i+12])
		if !ok || v2 < 0xdc00 || v2 > 0xdfff {
			return 0, 0, false
		}
		return rune(0x10000 + (v1-0xd800)<<10 + (v2 - 0xdc00)), 12, true
	case v1 >= 0xdc00 && v1 <= 0xdfff:
		// lone low surrogate
		return 0, 0, false
	}
	return rune(v1), 6, true
}

// parseString decodes the string whose opening quote sits at offset idx,
// unescaping in place: decoded bytes are written back over the source bytes,
// which always keeps the writer at or behind the reader. nextIdx is the
// offset of the following structural character (or the buffer length) and
// gates the short-string fast path. Unescaped control characters never reach
// this function; stage 1 flags them.
//
// The returned slice aliases buf. Its length may be strictly smaller than the
// source range.
func parseString(buf []byte, idx, nextIdx int) (s []byte, errCode ErrorCode, errOff int) {
	if nextIdx-idx < shortStringWindow && nextIdx <= len(buf) {
		window := buf[idx+1 : nextIdx]
		if q := bytes.IndexByte(window, '"'); q >= 0 {
			if bytes.IndexByte(window[:q], '\\') < 0 {
				return window[:q], 0, 0
			}
		}
	}

	i := idx + 1
	w := idx + 1
	for {
		if i >= len(buf) {
			return nil, UnexpectedEnd, len(buf)
		}
		c := buf[i]
		switch {
		case c == '"':
			return buf[idx+1 : w], 0, 0
		case c == '\\':
			if i+1 >= len(buf) {
				return nil, UnexpectedEnd, len(buf)
			}
			if buf[i+1] == 'u' {
				r, n, ok := decodeUnicodeEscape(buf, i)
				if !ok {
					return nil, InvalidUnicodeCodepoint, i
				}
				// the escape spans at least 6 source bytes, the rune at
				// most 4 decoded ones
				w += utf8.EncodeRune(buf[w:w+4], r)
				i += n
			} else {
				d := escapeMap[buf[i+1]]
				if d == 0 {
					return nil, InvalidEscape, i
				}
				buf[w] = d
				w++
				i += 2
			}
		default:
			buf[w] = c
			w++
			i++
		}
	}
}
