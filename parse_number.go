package vjson

import (
	"errors"
	"math"
	"strconv"
)

// Exact powers of ten in a float64. 10^22 is the largest one.
var pow10 = [...]float64{
	1e0, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10, 1e11,
	1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18, 1e19, 1e20, 1e21, 1e22,
}

// Mantissas of at most 19 digits fit a uint64 without overflow.
const maxMantissaDigits = 19

// Structural characters { } [ ] : , and the four whitespace characters are
// the only bytes that may follow a number (or true/false/null) literal.
var structuralOrWhitespaceNegated = [256]byte{
	1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 1, 1, 0, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1,

	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 0, 1, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 0, 1, 1,

	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,

	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
}

// isNotStructuralOrWhitespace returns non-zero if the byte may not terminate
// an atom or number, zero otherwise.
func isNotStructuralOrWhitespace(c byte) byte {
	return structuralOrWhitespaceNegated[c]
}

// parseNumber parses the number literal at the start of buf. The literal ends
// at the first structural or whitespace byte, or at the end of buf.
//
// The value commits to TagInteger when the literal has no '.', 'e' or 'E' and
// fits an int64 (including math.MinInt64); everything else becomes TagFloat.
// On success val holds the int64 bits or the float64 bits according to the
// tag. On failure the tag is TagEnd and errCode classifies the error.
func parseNumber(buf []byte) (tag Tag, val uint64, errCode ErrorCode) {
	pos := 0
	neg := false
	if pos < len(buf) && buf[pos] == '-' {
		neg = true
		pos++
	}
	if pos == len(buf) || !isDigit(buf[pos]) {
		return TagEnd, 0, InvalidNumber
	}

	var mantissa uint64
	digits := 0

	if buf[pos] == '0' {
		pos++
		digits++
		if pos < len(buf) && isDigit(buf[pos]) {
			// leading zero followed by a digit
			return TagEnd, 0, InvalidNumber
		}
	} else {
		for pos < len(buf) && isDigit(buf[pos]) {
			mantissa = mantissa*10 + uint64(buf[pos]-'0')
			digits++
			pos++
		}
	}

	isFloat := false
	exp10 := 0

	if pos < len(buf) && buf[pos] == '.' {
		isFloat = true
		pos++
		fracStart := pos
		for pos < len(buf) && isDigit(buf[pos]) {
			mantissa = mantissa*10 + uint64(buf[pos]-'0')
			digits++
			pos++
		}
		if pos == fracStart {
			// '.' must be followed by at least one digit
			return TagEnd, 0, InvalidNumber
		}
		exp10 -= pos - fracStart
	}

	if pos < len(buf) && (buf[pos] == 'e' || buf[pos] == 'E') {
		isFloat = true
		pos++
		expNeg := false
		if pos < len(buf) && (buf[pos] == '+' || buf[pos] == '-') {
			expNeg = buf[pos] == '-'
			pos++
		}
		expStart := pos
		expVal := 0
		for pos < len(buf) && isDigit(buf[pos]) {
			if expVal < 10000 {
				expVal = expVal*10 + int(buf[pos]-'0')
			}
			pos++
		}
		if pos == expStart {
			// exponent without digits
			return TagEnd, 0, InvalidNumber
		}
		if expNeg {
			expVal = -expVal
		}
		exp10 += expVal
	}

	if pos < len(buf) && isNotStructuralOrWhitespace(buf[pos]) != 0 {
		return TagEnd, 0, InvalidNumber
	}

	// More mantissa digits than a uint64 can carry: leave everything to the
	// correctly rounded slow path.
	truncated := digits > maxMantissaDigits

	if !isFloat {
		if truncated {
			return parseFloatSlow(buf[:pos])
		}
		if neg {
			if mantissa > 1<<63 {
				return TagFloat, math.Float64bits(-float64(mantissa)), 0
			}
			if mantissa == 1<<63 {
				// math.MinInt64, whose bit pattern is the mantissa itself
				return TagInteger, mantissa, 0
			}
			return TagInteger, uint64(-int64(mantissa)), 0
		}
		if mantissa > math.MaxInt64 {
			// fell out of int64, promoted
			return TagFloat, math.Float64bits(float64(mantissa)), 0
		}
		return TagInteger, uint64(int64(mantissa)), 0
	}

	if !truncated && -22 <= exp10 && exp10 <= 22 && mantissa <= 1<<53 {
		// both the mantissa and the power of ten are exact, so a single
		// multiply or divide rounds correctly
		f := float64(mantissa)
		if exp10 < 0 {
			f /= pow10[-exp10]
		} else {
			f *= pow10[exp10]
		}
		if neg {
			f = -f
		}
		return TagFloat, math.Float64bits(f), 0
	}

	return parseFloatSlow(buf[:pos])
}

// parseFloatSlow is the correctly rounded fallback for literals outside the
// fast path envelope.
func parseFloatSlow(literal []byte) (Tag, uint64, ErrorCode) {
	f, err := strconv.ParseFloat(string(literal), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			if math.IsInf(f, 0) {
				return TagEnd, 0, NumberOverflow
			}
			// underflow rounds towards zero and is accepted
			return TagFloat, math.Float64bits(f), 0
		}
		return TagEnd, 0, InvalidNumber
	}
	return TagFloat, math.Float64bits(f), 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
