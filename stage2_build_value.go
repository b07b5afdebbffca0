package vjson

import (
	"bytes"
	"encoding/binary"
)

// Constants for "return address" modes: where the machine resumes after
// closing the current scope.
const (
	retAddressRoot = iota
	retAddressObject
	retAddressArray
)

// scope is one partially built container on the explicit work stack.
type scope struct {
	fields []Field
	elems  []Value
	isObj  bool
	ret    uint8
}

// countElements scans the index sequence ahead of an opening bracket to the
// matching close, counting the container's direct elements (a key/value pair
// counts as one). Returns -1 when the container never closes. The count pays
// for the scan by sizing the allocation once.
func countElements(buf []byte, indexes []uint32, i int) int {
	depth := 0
	count := 0
	first := i
	for ; i < len(indexes); i++ {
		switch buf[indexes[i]] {
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				if i == first {
					return 0
				}
				return count + 1
			}
			depth--
		case ',':
			if depth == 0 {
				count++
			}
		}
	}
	return -1
}

// is_valid_true_atom and friends verify a literal and its terminator. The
// eight-byte fast path runs whenever enough buffer is left to load a word.
func isValidTrueAtom(buf []byte) bool {
	if len(buf) >= 8 {
		tv := uint64(0x0000000065757274) // "true    "
		mask4 := uint64(0x00000000ffffffff)
		locval := binary.LittleEndian.Uint64(buf)
		err := (locval & mask4) ^ tv
		err |= uint64(isNotStructuralOrWhitespace(buf[4]))
		return err == 0
	} else if len(buf) >= 5 {
		return bytes.Equal(buf[:4], []byte("true")) && isNotStructuralOrWhitespace(buf[4]) == 0
	} else if len(buf) == 4 {
		return bytes.Equal(buf, []byte("true"))
	}
	return false
}

func isValidFalseAtom(buf []byte) bool {
	if len(buf) >= 8 {
		fv := uint64(0x00000065736c6166) // "false   "
		mask5 := uint64(0x000000ffffffffff)
		locval := binary.LittleEndian.Uint64(buf)
		err := (locval & mask5) ^ fv
		err |= uint64(isNotStructuralOrWhitespace(buf[5]))
		return err == 0
	} else if len(buf) >= 6 {
		return bytes.Equal(buf[:5], []byte("false")) && isNotStructuralOrWhitespace(buf[5]) == 0
	} else if len(buf) == 5 {
		return bytes.Equal(buf, []byte("false"))
	}
	return false
}

func isValidNullAtom(buf []byte) bool {
	if len(buf) >= 8 {
		nv := uint64(0x000000006c6c756e) // "null    "
		mask4 := uint64(0x00000000ffffffff)
		locval := binary.LittleEndian.Uint64(buf)
		err := (locval & mask4) ^ nv
		err |= uint64(isNotStructuralOrWhitespace(buf[4]))
		return err == 0
	} else if len(buf) >= 5 {
		return bytes.Equal(buf[:4], []byte("null")) && isNotStructuralOrWhitespace(buf[4]) == 0
	} else if len(buf) == 4 {
		return bytes.Equal(buf, []byte("null"))
	}
	return false
}

// buildValue walks the structural index sequence and materializes the DOM.
// copyStrings moves every string payload into the parser's arena so the
// result does not alias buf.
func (p *Parser) buildValue(buf []byte, copyStrings bool) (Value, *ParseError) {
	indexes := p.indexes

	var (
		root    Value
		leaf    Value
		errCode ErrorCode
		i       int // position in the structural index sequence
		idx     int // location of the structural character in buf
		c       byte
	)
	scopes := p.scopes[:0]
	defer func() { p.scopes = scopes[:0] }()

	// Stage 1 never returns an empty sequence, so the root dispatch always
	// has a character to look at.
	idx = int(indexes[i])
	i++
	c = buf[idx]

	switch c {
	case '{', '[':
		if s, perr := p.openScope(&scopes, buf, i, c == '{', retAddressRoot); perr != nil {
			return Value{}, perr
		} else if s {
			goto objectBegin
		}
		goto arrayBegin
	case '"':
		if leaf, errCode, idx = p.parseStringValue(buf, idx, i, copyStrings); errCode != 0 {
			goto fail
		}
		root = leaf
		goto rootEnd
	case 't':
		if !isValidTrueAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		root = Value{tag: TagBoolTrue}
		goto rootEnd
	case 'f':
		if !isValidFalseAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		root = Value{tag: TagBoolFalse}
		goto rootEnd
	case 'n':
		if !isValidNullAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		root = Value{tag: TagNull}
		goto rootEnd
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '-', '.':
		if leaf, errCode = parseNumberValue(buf[idx:]); errCode != 0 {
			goto fail
		}
		root = leaf
		goto rootEnd
	default:
		errCode = UnexpectedCharacter
		goto fail
	}

	//////////////////////////////// OBJECT STATES /////////////////////////////

objectBegin:
	if i >= len(indexes) {
		errCode = UnexpectedEnd
		goto failAtEnd
	}
	idx = int(indexes[i])
	i++
	c = buf[idx]
	switch c {
	case '"':
		var key []byte
		if key, errCode, idx = p.parseKey(buf, idx, i, copyStrings); errCode != 0 {
			goto fail
		}
		top(scopes).fields = append(top(scopes).fields, Field{Key: key})
		goto objectKeyState
	case '}':
		goto scopeEnd // empty object
	default:
		errCode = ExpectedString
		goto fail
	}

objectKeyState:
	if i >= len(indexes) {
		errCode = UnexpectedEnd
		goto failAtEnd
	}
	idx = int(indexes[i])
	i++
	if buf[idx] != ':' {
		errCode = ExpectedColon
		goto fail
	}
	if i >= len(indexes) {
		errCode = UnexpectedEnd
		goto failAtEnd
	}
	idx = int(indexes[i])
	i++
	c = buf[idx]
	switch c {
	case '"':
		if leaf, errCode, idx = p.parseStringValue(buf, idx, i, copyStrings); errCode != 0 {
			goto fail
		}
		setField(top(scopes), leaf)

	case 't':
		if !isValidTrueAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		setField(top(scopes), Value{tag: TagBoolTrue})

	case 'f':
		if !isValidFalseAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		setField(top(scopes), Value{tag: TagBoolFalse})

	case 'n':
		if !isValidNullAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		setField(top(scopes), Value{tag: TagNull})

	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '-', '.':
		if leaf, errCode = parseNumberValue(buf[idx:]); errCode != 0 {
			goto fail
		}
		setField(top(scopes), leaf)

	case '{', '[':
		// we have not yet encountered the matching close, come back for it
		if s, perr := p.openScope(&scopes, buf, i, c == '{', retAddressObject); perr != nil {
			return Value{}, perr
		} else if s {
			goto objectBegin
		}
		goto arrayBegin

	default:
		errCode = UnexpectedCharacter
		goto fail
	}

objectContinue:
	if i >= len(indexes) {
		errCode = UnexpectedEnd
		goto failAtEnd
	}
	idx = int(indexes[i])
	i++
	c = buf[idx]
	switch c {
	case ',':
		if i >= len(indexes) {
			errCode = UnexpectedEnd
			goto failAtEnd
		}
		idx = int(indexes[i])
		i++
		if buf[idx] != '"' {
			errCode = ExpectedString
			goto fail
		}
		var key []byte
		if key, errCode, idx = p.parseKey(buf, idx, i, copyStrings); errCode != 0 {
			goto fail
		}
		top(scopes).fields = append(top(scopes).fields, Field{Key: key})
		goto objectKeyState

	case '}':
		goto scopeEnd

	case ']':
		errCode = ExpectedObjectClose
		goto fail

	default:
		errCode = ExpectedComma
		goto fail
	}

	////////////////////////////// ARRAY STATES /////////////////////////////

arrayBegin:
	if i >= len(indexes) {
		errCode = UnexpectedEnd
		goto failAtEnd
	}
	idx = int(indexes[i])
	i++
	c = buf[idx]
	if c == ']' {
		goto scopeEnd // empty array
	}

mainArraySwitch:
	// every path into this label has already loaded c: arrayBegin after ruling
	// out an empty array, and arrayContinue after a comma, where a closing
	// bracket falls to the default case and is rejected
	switch c {
	case '"':
		if leaf, errCode, idx = p.parseStringValue(buf, idx, i, copyStrings); errCode != 0 {
			goto fail
		}
		appendElem(top(scopes), leaf)

	case 't':
		if !isValidTrueAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		appendElem(top(scopes), Value{tag: TagBoolTrue})

	case 'f':
		if !isValidFalseAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		appendElem(top(scopes), Value{tag: TagBoolFalse})

	case 'n':
		if !isValidNullAtom(buf[idx:]) {
			errCode = UnexpectedCharacter
			goto fail
		}
		appendElem(top(scopes), Value{tag: TagNull})

	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '-', '.':
		if leaf, errCode = parseNumberValue(buf[idx:]); errCode != 0 {
			goto fail
		}
		appendElem(top(scopes), leaf)

	case '{', '[':
		// we have not yet encountered the matching close, come back for it
		if s, perr := p.openScope(&scopes, buf, i, c == '{', retAddressArray); perr != nil {
			return Value{}, perr
		} else if s {
			goto objectBegin
		}
		goto arrayBegin

	default:
		errCode = UnexpectedCharacter
		goto fail
	}

arrayContinue:
	if i >= len(indexes) {
		errCode = UnexpectedEnd
		goto failAtEnd
	}
	idx = int(indexes[i])
	i++
	c = buf[idx]
	switch c {
	case ',':
		if i >= len(indexes) {
			errCode = UnexpectedEnd
			goto failAtEnd
		}
		idx = int(indexes[i])
		i++
		c = buf[idx]
		goto mainArraySwitch

	case ']':
		goto scopeEnd

	case '}':
		errCode = ExpectedArrayClose
		goto fail

	default:
		errCode = ExpectedComma
		goto fail
	}

	////////////////////////////// COMMON STATE /////////////////////////////

scopeEnd:
	{
		s := top(scopes)
		var v Value
		if s.isObj {
			v = Value{tag: TagObject, obj: &Object{fields: s.fields}}
		} else {
			v = Value{tag: TagArray, arr: s.elems}
		}
		ret := s.ret
		scopes = scopes[:len(scopes)-1]

		switch ret {
		case retAddressObject:
			setField(top(scopes), v)
			goto objectContinue
		case retAddressArray:
			appendElem(top(scopes), v)
			goto arrayContinue
		default:
			root = v
			goto rootEnd
		}
	}

	////////////////////////////// FINAL STATES /////////////////////////////

rootEnd:
	if i != len(indexes) {
		idx = int(indexes[i])
		return Value{}, &ParseError{Code: TrailingData, Index: i, Offset: idx, Char: buf[idx]}
	}
	return root, nil

fail:
	{
		pe := &ParseError{Code: errCode, Index: i - 1, Offset: idx}
		if idx < len(buf) {
			pe.Char = buf[idx]
		}
		return Value{}, pe
	}

failAtEnd:
	return Value{}, &ParseError{Code: errCode, Index: i, Offset: len(buf)}
}

func top(scopes []scope) *scope {
	return &scopes[len(scopes)-1]
}

// setField completes the most recently opened field of the object under
// construction.
func setField(s *scope, v Value) {
	s.fields[len(s.fields)-1].Value = v
}

func appendElem(s *scope, v Value) {
	s.elems = append(s.elems, v)
}

// openScope pushes a container scope preallocated from a forward element
// count over the index sequence. Reports whether the new scope is an object.
func (p *Parser) openScope(scopes *[]scope, buf []byte, i int, isObj bool, ret uint8) (bool, *ParseError) {
	if len(*scopes) >= p.maxDepth {
		return false, &ParseError{Code: DepthExceeded, Index: i - 1, Offset: int(p.indexes[i-1]), Char: buf[p.indexes[i-1]]}
	}
	n := countElements(buf, p.indexes, i)
	if n < 0 {
		return false, &ParseError{Code: UnexpectedEnd, Index: len(p.indexes), Offset: len(buf)}
	}
	s := scope{isObj: isObj, ret: ret}
	if isObj {
		s.fields = make([]Field, 0, n)
	} else {
		s.elems = make([]Value, 0, n)
	}
	*scopes = append(*scopes, s)
	return isObj, nil
}

// parseStringValue decodes a string leaf. On success the returned offset is
// idx unchanged; on failure it is the offset of the offending byte, which the
// error site reports.
func (p *Parser) parseStringValue(buf []byte, idx, i int, copyStrings bool) (Value, ErrorCode, int) {
	s, errCode, errOff := parseString(buf, idx, p.nextStructural(i, buf))
	if errCode != 0 {
		return Value{}, errCode, errOff
	}
	if copyStrings {
		s = p.arenaAppend(s)
	}
	return Value{tag: TagString, str: s}, 0, idx
}

// parseKey decodes an object key with the same fast path as string values.
func (p *Parser) parseKey(buf []byte, idx, i int, copyStrings bool) ([]byte, ErrorCode, int) {
	s, errCode, errOff := parseString(buf, idx, p.nextStructural(i, buf))
	if errCode != 0 {
		return nil, errCode, errOff
	}
	if copyStrings {
		s = p.arenaAppend(s)
	}
	return s, 0, idx
}

func parseNumberValue(buf []byte) (Value, ErrorCode) {
	tag, val, errCode := parseNumber(buf)
	if errCode != 0 {
		return Value{}, errCode
	}
	return Value{tag: tag, num: val}, 0
}

func (p *Parser) nextStructural(i int, buf []byte) int {
	if i < len(p.indexes) {
		return int(p.indexes[i])
	}
	return len(buf)
}

// arenaAppend copies s into the owned-string arena. The arena is sized to the
// input up front (unescaping never grows a string), so earlier sub-slices
// stay valid.
func (p *Parser) arenaAppend(s []byte) []byte {
	start := len(p.strings)
	p.strings = append(p.strings, s...)
	return p.strings[start:len(p.strings):len(p.strings)]
}
