package vjson

import (
	"fmt"
	"strings"
	"testing"
)

const demoJSON = `{"Image":{"Width":800,"Height":600,"Title":"View from 15th Floor","Thumbnail":{"Url":"http://www.example.com/image/481989943","Height":125,"Width":100},"Animated":false,"IDs":[116,943,234,38793]}}`

func reverseBinary(input string) string {
	rune := []rune(input)
	n := len(rune)
	for i := 0; i < n/2; i++ {
		rune[i], rune[n-1-i] = rune[n-1-i], rune[i]
	}
	output := string(rune)
	if len(output) < 64 {
		output = output + strings.Repeat("0", 64-len(output))
	}
	return output
}

func TestStage1FindMarks(t *testing.T) {
	want := struct {
		quoted               string
		structurals          string
		whitespace           string
		structuralsFinalized string
	}{
		// {"Image":{"Width":800,"Height":600,"Title":"View from 15th Floor
		"0111111000111111000000111111100000011111100111111111111111111111", // quoted
		"1000000011000000010001000000001000100000001000000000000000000000", // structurals
		"0000000000000000000000000000000000000000000000001000010000100000", // whitespace
		"1100000011100000011001100000001100110000001100000000000000000000", // structurals_finalized
	}

	prevIterEndsOddBackslash := uint64(0)
	oddEnds := findOddBackslashSequences([]byte(demoJSON), &prevIterEndsOddBackslash)
	if oddEnds != 0 {
		t.Errorf("TestStage1FindMarks: got: %d want: %d", oddEnds, 0)
	}

	// detect insides of quote pairs ("quoteMask") and also our quoteBits themselves
	quoteBits := uint64(0)
	prevIterInsideQuote, errorMask := uint64(0), uint64(0)
	quoteMask := findQuoteMaskAndBits([]byte(demoJSON), oddEnds, &prevIterInsideQuote, &quoteBits, &errorMask)
	quoted := reverseBinary(fmt.Sprintf("%b", quoteMask))
	if quoted != want.quoted {
		t.Errorf("TestStage1FindMarks: got: %s want: %s", quoted, want.quoted)
	}

	structuralsMask := uint64(0)
	whitespaceMask := uint64(0)
	findWhitespaceAndStructurals([]byte(demoJSON), &whitespaceMask, &structuralsMask)

	structurals := reverseBinary(fmt.Sprintf("%b", structuralsMask))
	if structurals != want.structurals {
		t.Errorf("TestStage1FindMarks: got: %s want: %s", structurals, want.structurals)
	}
	whitespace := reverseBinary(fmt.Sprintf("%b", whitespaceMask))
	if whitespace != want.whitespace {
		t.Errorf("TestStage1FindMarks: got: %s want: %s", whitespace, want.whitespace)
	}

	// fixup structurals to reflect quotes and add pseudo-structural characters
	prevIterEndsPseudoPred := uint64(0)
	structuralsMask = finalizeStructurals(structuralsMask, whitespaceMask, quoteMask, quoteBits, &prevIterEndsPseudoPred)

	structuralsFinalized := reverseBinary(fmt.Sprintf("%b", structuralsMask))
	if structuralsFinalized != want.structuralsFinalized {
		t.Errorf("TestStage1FindMarks: got: %s want: %s", structuralsFinalized, want.structuralsFinalized)
	}
}

// naiveStructuralIndices is a byte-at-a-time reference tokenizer: operator
// characters and the first byte of every scalar, outside strings.
func naiveStructuralIndices(buf []byte) []uint32 {
	isOp := func(c byte) bool {
		switch c {
		case '{', '}', '[', ']', ':', ',':
			return true
		}
		return false
	}
	isWs := func(c byte) bool {
		switch c {
		case ' ', '\t', '\n', '\r':
			return true
		}
		return false
	}
	var out []uint32
	i := 0
	for i < len(buf) {
		c := buf[i]
		switch {
		case c == '"':
			out = append(out, uint32(i))
			i++
			for i < len(buf) && buf[i] != '"' {
				if buf[i] == '\\' {
					i += 2
				} else {
					i++
				}
			}
			i++ // closing quote
		case isOp(c):
			out = append(out, uint32(i))
			i++
		case isWs(c):
			i++
		default:
			out = append(out, uint32(i))
			for i < len(buf) && !isOp(buf[i]) && !isWs(buf[i]) && buf[i] != '"' {
				i++
			}
		}
	}
	return out
}

func TestFindStructuralIndices(t *testing.T) {
	testCases := []string{
		demoJSON,
		`{}`,
		`[]`,
		`1`,
		`true`,
		`"short"`,
		`{"a":1,"b":[true,null,"x\ny"]}`,
		`  {  "a"  :  [ 1 , 2.5 , -3e7 ]  }  `,
		`["` + strings.Repeat("x", 100) + `"]`,
		`["esc\"aped","with \\ backslash","é"]`,
		strings.Repeat(" ", 63) + `{"k":"v"}`, // '{' is the last byte of the first chunk, the rest follows in the second
		`[` + strings.Repeat(`"pad",`, 30) + `0]`, // multiple chunks
		`{"deep":{"deeper":{"deepest":[0,1,2,3,4,5,6,7,8,9]}}}`,
	}
	for i, tc := range testCases {
		p := &Parser{maxDepth: DefaultMaxDepth}
		if perr := p.findStructuralIndices([]byte(tc)); perr != nil {
			t.Errorf("TestFindStructuralIndices(%d): unexpected error %v", i, perr)
			continue
		}
		want := naiveStructuralIndices([]byte(tc))
		if len(p.indexes) != len(want) {
			t.Errorf("TestFindStructuralIndices(%d): got %d indices want %d\n got: %v\nwant: %v", i, len(p.indexes), len(want), p.indexes, want)
			continue
		}
		for j := range want {
			if p.indexes[j] != want[j] {
				t.Errorf("TestFindStructuralIndices(%d): index %d: got %d want %d", i, j, p.indexes[j], want[j])
			}
		}
		// every offset points at a non-whitespace byte within the buffer,
		// offsets strictly increasing
		prev := -1
		for _, off := range p.indexes {
			if int(off) >= len(tc) {
				t.Errorf("TestFindStructuralIndices(%d): offset %d beyond input", i, off)
			}
			if int(off) <= prev {
				t.Errorf("TestFindStructuralIndices(%d): offsets not increasing at %d", i, off)
			}
			prev = int(off)
			switch tc[off] {
			case ' ', '\t', '\n', '\r':
				t.Errorf("TestFindStructuralIndices(%d): offset %d points at whitespace", i, off)
			}
		}
	}
}

func TestFindStructuralIndicesErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		code  ErrorCode
	}{
		{"empty", ``, UnexpectedEnd},
		{"only-whitespace", "  \t\n  ", UnexpectedEnd},
		{"unterminated-string", `"abc`, UnexpectedEnd},
		{"unterminated-string-long", `"` + strings.Repeat("a", 100), UnexpectedEnd},
		{"control-char-in-string", "\"a\tb\"", UnexpectedCharacter},
		{"invalid-utf8", `{"a":"` + string([]byte{0xff, 0xfe}) + `"}`, InvalidUtf8},
		{"invalid-utf8-truncated-rune", `["` + string([]byte{0xe2, 0x82}) + `"]`, InvalidUtf8},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Parser{maxDepth: DefaultMaxDepth}
			perr := p.findStructuralIndices([]byte(tc.input))
			if perr == nil {
				t.Fatalf("expected error %v, got none", tc.code)
			}
			if perr.Code != tc.code {
				t.Errorf("got code %v want %v", perr.Code, tc.code)
			}
		})
	}
}
