// Package querystring implements a streaming byte-level parser for
// application/x-www-form-urlencoded bodies. The grammar is
// `field (sep field)*` where `field = name [= value]`; no percent-decoding
// happens at this level, the caller decodes the emitted bytes.
package querystring

import (
	"bytes"

	"github.com/lumen-web/formparse/status"
)

// Callbacks is the record of optional hooks the parser drives. Per field, in
// order: OnFieldStart, one or more OnFieldName, then — when a '=' was seen —
// one or more OnFieldData, then OnFieldEnd. Data callbacks borrow the chunk
// passed to Write; retaining the slice requires a copy. A non-nil error
// aborts the parse.
type Callbacks struct {
	OnFieldStart func() error
	OnFieldName  func(buf []byte, start, end int) error
	OnFieldData  func(buf []byte, start, end int) error
	OnFieldEnd   func() error
	OnEnd        func() error
}

type Options struct {
	// StrictParsing turns tolerated anomalies into errors: duplicate
	// separators, fields without '=', semicolons unless declared.
	StrictParsing bool
	// SemicolonSeparator declares ';' a legal separator under strict
	// parsing. Without strict parsing ';' always separates.
	SemicolonSeparator bool
	// MaxSize caps the total body size; exceeding it is fatal.
	MaxSize int64
}

type Parser struct {
	callbacks Callbacks
	opts      Options

	state    parserState
	foundSep bool
	received int64
	err      error
}

func NewParser(callbacks Callbacks, opts Options) *Parser {
	return &Parser{
		callbacks: callbacks,
		opts:      opts,
		state:     eBeforeField,
	}
}

// Write consumes the whole chunk or returns an error. Once an error is
// returned the parser is poisoned and every following call reports it again.
func (p *Parser) Write(data []byte) (n int, err error) {
	if p.err != nil {
		return 0, p.err
	}

	length := len(data)
	if p.opts.MaxSize > 0 && p.received+int64(length) > p.opts.MaxSize {
		return 0, p.poison(status.ErrBodyTooLarge)
	}
	p.received += int64(length)

	i := 0

	for i < length {
		switch p.state {
		case eBeforeField:
			isSep, bad := p.separator(data[i])
			if bad {
				return i, p.poison(status.ErrSemicolonSeparator.At(i))
			}

			if !isSep {
				if err := p.fire(p.callbacks.OnFieldStart); err != nil {
					return i, p.poison(err)
				}

				p.foundSep = false
				p.state = eFieldName
				continue
			}

			if p.foundSep && p.opts.StrictParsing {
				return i, p.poison(status.ErrDuplicateSeparator.At(i))
			}

			p.foundSep = true
			i++
		case eFieldName:
			sep, err := p.findSeparator(data, i)
			if err != nil {
				return i, p.poison(err)
			}

			bound := sep
			if bound == -1 {
				bound = length
			}

			equals := bytes.IndexByte(data[i:bound], '=')
			if equals != -1 {
				equals += i

				if err := p.fireData(p.callbacks.OnFieldName, data, i, equals); err != nil {
					return i, p.poison(err)
				}

				// The '=' opens the value, so even an empty one is reported.
				if p.callbacks.OnFieldData != nil {
					if err := p.callbacks.OnFieldData(data, equals+1, equals+1); err != nil {
						return i, p.poison(err)
					}
				}

				i = equals + 1
				p.state = eFieldData
				continue
			}

			if sep != -1 && p.opts.StrictParsing {
				return i, p.poison(status.ErrMissingEquals.At(i))
			}

			if err := p.fireData(p.callbacks.OnFieldName, data, i, bound); err != nil {
				return i, p.poison(err)
			}

			if sep != -1 {
				if err := p.fire(p.callbacks.OnFieldEnd); err != nil {
					return i, p.poison(err)
				}

				p.state = eBeforeField
			}

			i = bound
		case eFieldData:
			sep, err := p.findSeparator(data, i)
			if err != nil {
				return i, p.poison(err)
			}

			bound := sep
			if bound == -1 {
				bound = length
			}

			if err := p.fireData(p.callbacks.OnFieldData, data, i, bound); err != nil {
				return i, p.poison(err)
			}

			if sep != -1 {
				if err := p.fire(p.callbacks.OnFieldEnd); err != nil {
					return i, p.poison(err)
				}

				p.state = eBeforeField
			}

			i = bound
		}
	}

	return length, nil
}

// Finalize emits any pending field-end, then OnEnd. Under strict parsing a
// pending field without '=' is ErrMissingEquals instead. Idempotent.
func (p *Parser) Finalize() error {
	if p.err != nil {
		return p.err
	}

	if p.state == eFieldName && p.opts.StrictParsing {
		return p.poison(status.ErrMissingEquals)
	}

	if p.state == eFieldName || p.state == eFieldData {
		p.state = eBeforeField
		p.foundSep = false

		if err := p.fire(p.callbacks.OnFieldEnd); err != nil {
			return p.poison(err)
		}
	}

	if p.callbacks.OnEnd != nil {
		cb := p.callbacks.OnEnd
		p.callbacks.OnEnd = nil

		if err := cb(); err != nil {
			return p.poison(err)
		}
	}

	return nil
}

// separator classifies a byte. A semicolon is a separator unless strict
// parsing demands it to be declared; undeclared under strict it is an error.
func (p *Parser) separator(c byte) (isSep, bad bool) {
	switch c {
	case '&':
		return true, false
	case ';':
		if p.opts.StrictParsing && !p.opts.SemicolonSeparator {
			return false, true
		}

		return true, false
	}

	return false, false
}

// findSeparator locates the nearest separator at or after i, or -1.
func (p *Parser) findSeparator(data []byte, i int) (pos int, err error) {
	amp := bytes.IndexByte(data[i:], '&')
	semi := bytes.IndexByte(data[i:], ';')

	if semi != -1 && (amp == -1 || semi < amp) {
		if p.opts.StrictParsing && !p.opts.SemicolonSeparator {
			return 0, status.ErrSemicolonSeparator.At(i + semi)
		}

		return i + semi, nil
	}

	if amp == -1 {
		return -1, nil
	}

	return i + amp, nil
}

func (p *Parser) fire(cb func() error) error {
	if cb == nil {
		return nil
	}

	return cb()
}

func (p *Parser) fireData(cb func([]byte, int, int) error, buf []byte, start, end int) error {
	if cb == nil || start >= end {
		return nil
	}

	return cb(buf, start, end)
}

func (p *Parser) poison(err error) error {
	p.err = err
	return err
}
