// Package octetstream forwards an opaque request body to its callbacks,
// enforcing an optional size cap. It backs bodies whose Content-Type is
// neither urlencoded nor multipart.
package octetstream

import (
	"github.com/lumen-web/formparse/status"
)

// Callbacks is the record of optional hooks the parser drives. Data callbacks
// borrow the chunk passed to Write for the duration of the call; retaining
// the slice requires a copy. A non-nil error aborts the parse.
type Callbacks struct {
	// OnStart fires once, before the first data callback.
	OnStart func() error
	OnData  func(buf []byte, start, end int) error
	OnEnd   func() error
}

type Parser struct {
	callbacks Callbacks
	maxSize   int64
	received  int64
	started   bool
	finalized bool
	err       error
}

// NewParser returns a parser capping the body at maxSize bytes; a
// non-positive maxSize disables the cap.
func NewParser(callbacks Callbacks, maxSize int64) *Parser {
	return &Parser{
		callbacks: callbacks,
		maxSize:   maxSize,
	}
}

// Write forwards the whole chunk through OnData. Once an error is returned,
// the parser is poisoned and every following call reports the same error.
func (p *Parser) Write(data []byte) (n int, err error) {
	if p.err != nil {
		return 0, p.err
	}

	if !p.started {
		p.started = true

		if p.callbacks.OnStart != nil {
			if err = p.callbacks.OnStart(); err != nil {
				return 0, p.poison(err)
			}
		}
	}

	if p.maxSize > 0 && p.received+int64(len(data)) > p.maxSize {
		return 0, p.poison(status.ErrBodyTooLarge)
	}
	p.received += int64(len(data))

	if len(data) > 0 && p.callbacks.OnData != nil {
		if err = p.callbacks.OnData(data, 0, len(data)); err != nil {
			return 0, p.poison(err)
		}
	}

	return len(data), nil
}

// Finalize fires OnEnd. Idempotent.
func (p *Parser) Finalize() error {
	if p.err != nil {
		return p.err
	}

	if p.finalized {
		return nil
	}
	p.finalized = true

	if p.callbacks.OnEnd != nil {
		if err := p.callbacks.OnEnd(); err != nil {
			return p.poison(err)
		}
	}

	return nil
}

func (p *Parser) poison(err error) error {
	p.err = err
	return err
}
