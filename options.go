package vjson

import "fmt"

// ParserOption is a parser option.
type ParserOption func(p *Parser) error

// WithMaxDepth sets the hard limit on container nesting. The default of 1024
// bounds the explicit scope stack; documents nesting deeper fail with
// DepthExceeded.
func WithMaxDepth(n int) ParserOption {
	return func(p *Parser) error {
		if n < 1 {
			return fmt.Errorf("max depth must be at least 1, got %d", n)
		}
		p.maxDepth = n
		return nil
	}
}

// WithCopyStrings will copy strings so they no longer reference the input.
// ParseBorrowed points string payloads back into the original JSON buffer for
// performance, which can lead to issues when the underlying buffer is reused
// or mutated after the parse. Enabling this makes ParseBorrowed behave like
// ParseOwned for string storage.
// Default: false - ParseBorrowed returns slices of the input.
func WithCopyStrings(b bool) ParserOption {
	return func(p *Parser) error {
		p.copyStrings = b
		return nil
	}
}
