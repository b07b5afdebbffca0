// Package vjson is a high-throughput JSON parser built around a two-stage
// pipeline: stage 1 scans the input in 64-byte chunks with branchless bitmask
// kernels and emits the offsets of all structural characters and scalar
// starts; stage 2 walks that index sequence and materializes a document
// object model, decoding strings in place.
//
// Both entry points take the document buffer by mutable reference: string
// unescaping writes decoded bytes back over their escape sequences. The
// caller does not need to pad the buffer; partial chunks near the end are
// staged through scratch copies internally.
//
// ToBorrowedValue returns a DOM whose string payloads are slices of the input
// buffer. It is the caller's responsibility to keep the buffer alive and
// unmodified for as long as that DOM is used. ToOwnedValue (or
// WithCopyStrings) copies every string payload out instead.
package vjson

import (
	"github.com/klauspost/cpuid/v2"
)

// DefaultMaxDepth is the container nesting limit unless WithMaxDepth is used.
const DefaultMaxDepth = 1024

// SupportedCPU returns whether the CPU provides the bit-manipulation
// instructions the stage 1 kernels compile down to. Parsing works without
// them, just below the intended throughput.
func SupportedCPU() bool {
	return cpuid.CPU.Supports(cpuid.POPCNT, cpuid.BMI1)
}

// Parser parses documents while reusing its internal structural index
// sequence across calls. A Parser is not safe for concurrent use; each parse
// is a plain synchronous function call.
type Parser struct {
	// structural index sequence produced by stage 1, reused across parses
	indexes []uint32

	// explicit work stack of the DOM builder, reused across parses
	scopes []scope

	// owned-string arena; handed off to the DOM on owned parses
	strings []byte

	maxDepth    int
	copyStrings bool
}

// NewParser creates a Parser with the supplied options applied.
func NewParser(opts ...ParserOption) (*Parser, error) {
	p := &Parser{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ParseBorrowed parses one JSON document from buf into a DOM whose string
// payloads are slices of buf. The buffer is modified: escape sequences are
// decoded in place. The result is valid only while buf is alive and not
// written to.
func (p *Parser) ParseBorrowed(buf []byte) (Value, error) {
	return p.parse(buf, p.copyStrings)
}

// ParseOwned parses one JSON document from buf into a DOM that keeps no
// reference into buf. The buffer is still modified by the in-place unescape.
func (p *Parser) ParseOwned(buf []byte) (Value, error) {
	return p.parse(buf, true)
}

func (p *Parser) parse(buf []byte, copyStrings bool) (Value, error) {
	if copyStrings {
		// decoded strings never outgrow their source, so one input-sized
		// arena serves the whole document without reallocating
		p.strings = make([]byte, 0, len(buf))
		// the arena belongs to the returned DOM, never reuse it
		defer func() { p.strings = nil }()
	}
	if perr := p.findStructuralIndices(buf); perr != nil {
		return Value{}, perr
	}
	v, perr := p.buildValue(buf, copyStrings)
	if perr != nil {
		return Value{}, perr
	}
	return v, nil
}

// ToBorrowedValue parses one document from buf. The returned DOM borrows its
// strings from buf; see ParseBorrowed for the aliasing contract.
func ToBorrowedValue(buf []byte, opts ...ParserOption) (Value, error) {
	p, err := NewParser(opts...)
	if err != nil {
		return Value{}, err
	}
	return p.ParseBorrowed(buf)
}

// ToOwnedValue parses one document from buf. The returned DOM owns its
// strings; buf may be reused or discarded afterwards.
func ToOwnedValue(buf []byte, opts ...ParserOption) (Value, error) {
	p, err := NewParser(opts...)
	if err != nil {
		return Value{}, err
	}
	return p.ParseOwned(buf)
}
