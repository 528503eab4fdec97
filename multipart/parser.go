// Package multipart implements a streaming byte-level parser for
// multipart/form-data bodies. It never buffers part bodies: every data
// callback borrows a window of the chunk passed to Write, and the parser's
// own working set stays bounded by the boundary length.
package multipart

import (
	"github.com/lumen-web/formparse/status"
)

// Callbacks is the record of optional hooks the parser drives. Per part, in
// order: OnPartBegin; per header OnHeaderBegin, one or more OnHeaderField,
// one or more OnHeaderValue, OnHeaderEnd; then OnHeadersFinished; then one
// or more OnPartData; then OnPartEnd. After the closing boundary, OnEnd.
//
// Data callbacks borrow the buffer for the duration of the call — an
// implementation that keeps the bytes must copy them. A non-nil error return
// aborts the parse.
type Callbacks struct {
	OnPartBegin       func() error
	OnHeaderBegin     func() error
	OnHeaderField     func(buf []byte, start, end int) error
	OnHeaderValue     func(buf []byte, start, end int) error
	OnHeaderEnd       func() error
	OnHeadersFinished func() error
	OnPartData        func(buf []byte, start, end int) error
	OnPartEnd         func() error
	OnEnd             func() error
}

// Parser consumes a multipart body incrementally. Boundary-like sequences
// inside part bodies are held back while a match is possible and flushed to
// OnPartData on the first mismatching byte, so a partial boundary spanning
// two Write calls never produces false positives and never gets lost.
type Parser struct {
	callbacks Callbacks

	// delimiter is "\r\n--" + boundary. The leading CRLF belongs to the
	// delimiter, not to the part data preceding it.
	delimiter []byte
	// lookbackPart and lookbackLast extend the delimiter with the bytes
	// which may follow it, for replaying tentative matches which began in a
	// previous chunk.
	lookbackPart []byte
	lookbackLast []byte
	skip         skipTable

	state parserState
	// index tracks progress through the delimiter in ePartData and through
	// the opening boundary in eStartBoundary; in eHeaderField it counts the
	// header name length.
	index int
	flags uint8

	markPartData    int
	markHeaderField int
	markHeaderValue int
	hasPartData     bool
	hasHeaderField  bool
	hasHeaderValue  bool

	maxSize  int64
	received int64
	err      error
}

// NewParser returns a parser for the given boundary, as extracted from the
// Content-Type header. A non-positive maxSize disables the body cap.
func NewParser(boundary string, callbacks Callbacks, maxSize int64) (*Parser, error) {
	if len(boundary) == 0 {
		return nil, status.ErrEmptyBoundary
	}

	delimiter := append([]byte("\r\n--"), boundary...)

	return &Parser{
		callbacks:    callbacks,
		delimiter:    delimiter,
		lookbackPart: append(append([]byte{}, delimiter...), '\r', '\n'),
		lookbackLast: append(append([]byte{}, delimiter...), '-', '-', '\r', '\n'),
		skip:         newSkipTable(delimiter),
		state:        eStart,
		maxSize:      maxSize,
	}, nil
}

// Write consumes the whole chunk or returns an error carrying the in-chunk
// offset of the offending byte. Once an error is returned the parser is
// poisoned and every following call reports it again.
func (p *Parser) Write(data []byte) (n int, err error) {
	if p.err != nil {
		return 0, p.err
	}

	length := len(data)
	if p.maxSize > 0 && p.received+int64(length) > p.maxSize {
		return 0, p.poison(status.ErrBodyTooLarge)
	}
	p.received += int64(length)

	i := 0

	for i < length {
		c := data[i]

		switch p.state {
		case eStart:
			if c == '\r' || c == '\n' {
				i++
				continue
			}

			p.index = 0
			p.state = eStartBoundary
			continue

		case eStartBoundary:
			// The opening delimiter lacks the leading CRLF, hence the +2.
			switch {
			case p.index == len(p.delimiter)-2:
				switch c {
				case '-':
					p.state = eEndBoundary
				case '\r':
				case '\n':
					// Bare-LF line ending tolerance.
					p.index = 0
					if err = p.beginPart(); err != nil {
						return i, p.poison(err)
					}
					i++
					continue
				default:
					return i, p.poison(status.ErrBoundaryCR.At(i))
				}
				p.index++
			case p.index == len(p.delimiter)-1:
				if c != '\n' {
					return i, p.poison(status.ErrBoundaryLF.At(i))
				}

				p.index = 0
				if err = p.beginPart(); err != nil {
					return i, p.poison(err)
				}
			default:
				if c != p.delimiter[p.index+2] {
					return i, p.poison(status.ErrBoundaryMismatch.At(i))
				}
				p.index++
			}
			i++

		case eHeaderFieldStart:
			p.index = 0
			p.markHeaderField = i
			p.hasHeaderField = true

			if c != '\r' && c != '\n' {
				if err = p.fire(p.callbacks.OnHeaderBegin); err != nil {
					return i, p.poison(err)
				}
			}

			p.state = eHeaderField
			continue

		case eHeaderField:
			if p.index == 0 {
				switch c {
				case '\r':
					p.hasHeaderField = false
					p.state = eHeadersAlmostDone
					i++
					continue
				case '\n':
					// Bare-LF blank line: headers are over.
					p.hasHeaderField = false
					if err = p.finishHeaders(); err != nil {
						return i, p.poison(err)
					}
					i++
					continue
				}
			}

			p.index++

			if c == ':' {
				if p.index == 1 {
					return i, p.poison(status.ErrEmptyHeaderName.At(i))
				}

				if err = p.dataCallback(p.callbacks.OnHeaderField, &p.markHeaderField, &p.hasHeaderField, data, length, i, false); err != nil {
					return i, p.poison(err)
				}

				p.state = eHeaderValueStart
			} else if !tokenChars[c] {
				return i, p.poison(status.ErrBadHeaderChar.At(i))
			}
			i++

		case eHeaderValueStart:
			if c == ' ' {
				i++
				continue
			}

			p.markHeaderValue = i
			p.hasHeaderValue = true
			p.state = eHeaderValue
			continue

		case eHeaderValue:
			switch c {
			case '\r':
				if err = p.endHeaderValue(data, length, i); err != nil {
					return i, p.poison(err)
				}

				p.state = eHeaderValueAlmostDone
			case '\n':
				// Bare-LF line ending tolerance.
				if err = p.endHeaderValue(data, length, i); err != nil {
					return i, p.poison(err)
				}

				p.state = eHeaderFieldStart
			}
			i++

		case eHeaderValueAlmostDone:
			if c != '\n' {
				return i, p.poison(status.ErrBrokenHeaderEnd.At(i))
			}

			p.state = eHeaderFieldStart
			i++

		case eHeadersAlmostDone:
			if c != '\n' {
				return i, p.poison(status.ErrBrokenHeadersEnd.At(i))
			}

			if err = p.finishHeaders(); err != nil {
				return i, p.poison(err)
			}
			i++

		case ePartDataStart:
			p.markPartData = i
			p.hasPartData = true
			p.state = ePartData
			continue

		case ePartData:
			i, err = p.partData(data, length, i)
			if err != nil {
				return i, p.poison(err)
			}

		case eEndBoundary:
			if c != '-' {
				return i, p.poison(status.ErrBadClosingBoundary.At(i))
			}

			if err = p.fire(p.callbacks.OnEnd); err != nil {
				return i, p.poison(err)
			}

			p.state = eEnd
			i++

		case eEnd:
			switch c {
			case '\r':
				p.state = eEndCR
			case '\n':
				p.state = eEndCRLF
			default:
				return i, p.poison(status.ErrTrailingData.At(i))
			}
			i++

		case eEndCR:
			if c != '\n' {
				return i, p.poison(status.ErrTrailingData.At(i))
			}

			p.state = eEndCRLF
			i++

		case eEndCRLF:
			return i, p.poison(status.ErrTrailingData.At(i))
		}
	}

	// Flush whatever the chunk ended in the middle of, holding back the
	// tentatively matched delimiter tail in case of part data.
	if err = p.dataCallback(p.callbacks.OnHeaderField, &p.markHeaderField, &p.hasHeaderField, data, length, length, true); err != nil {
		return length, p.poison(err)
	}
	if err = p.dataCallback(p.callbacks.OnHeaderValue, &p.markHeaderValue, &p.hasHeaderValue, data, length, length, true); err != nil {
		return length, p.poison(err)
	}
	if err = p.dataCallback(p.callbacks.OnPartData, &p.markPartData, &p.hasPartData, data, length, length-p.index, true); err != nil {
		return length, p.poison(err)
	}

	return length, nil
}

// partData scans for the delimiter inside the part body, starting at i with
// p.index bytes of the delimiter already matched. It returns the position to
// resume the outer loop at.
func (p *Parser) partData(data []byte, length, i int) (next int, err error) {
	prevIndex := p.index
	dlen := len(p.delimiter)

	if p.index == 0 {
		// Common case: no partial match pending. Skip ahead with the
		// Horspool table; on a full match jump straight to its last byte.
		if match := p.skip.find(data, p.delimiter, i); match >= 0 {
			p.index = dlen - 1
			i = match + dlen - 1
		} else {
			if i < length-dlen {
				i = length - dlen
			}

			for i < length-1 && data[i] != p.delimiter[0] {
				i++
			}
		}
	}

	c := data[i]

	switch {
	case p.index < dlen:
		if p.delimiter[p.index] == c {
			p.index++
		} else {
			p.index = 0
		}
	case p.index == dlen:
		p.index++

		switch c {
		case '\r':
			p.flags |= flagPartBoundary
		case '-':
			p.flags |= flagLastBoundary
		default:
			p.index = 0
		}
	case p.index == dlen+1:
		if p.flags&flagPartBoundary != 0 {
			if c == '\n' {
				p.flags &^= flagPartBoundary

				if err = p.dataCallback(p.callbacks.OnPartData, &p.markPartData, &p.hasPartData, data, length, i-p.index, false); err != nil {
					return i, err
				}
				if err = p.fire(p.callbacks.OnPartEnd); err != nil {
					return i, err
				}
				if err = p.fire(p.callbacks.OnPartBegin); err != nil {
					return i, err
				}

				p.index = 0
				p.state = eHeaderFieldStart

				return i + 1, nil
			}

			// The flag picks the lookbehind buffer, so a pending cross-chunk
			// prefix must be replayed before the flag is dropped.
			if err = p.flushLookbehind(data, length); err != nil {
				return i, err
			}

			p.flags &^= flagPartBoundary
			p.index = 0
		} else if p.flags&flagLastBoundary != 0 {
			if c == '-' {
				if err = p.dataCallback(p.callbacks.OnPartData, &p.markPartData, &p.hasPartData, data, length, i-p.index, false); err != nil {
					return i, err
				}
				if err = p.fire(p.callbacks.OnPartEnd); err != nil {
					return i, err
				}
				if err = p.fire(p.callbacks.OnEnd); err != nil {
					return i, err
				}

				p.flags &^= flagLastBoundary
				p.state = eEnd

				return i + 1, nil
			}

			if err = p.flushLookbehind(data, length); err != nil {
				return i, err
			}

			p.flags &^= flagLastBoundary
			p.index = 0
		}
	}

	if p.index == 0 && prevIndex > 0 {
		// The tentative match broke: re-examine the current byte as plain
		// part data. The held-back prefix replays via the lookbehind.
		return i, nil
	}

	return i + 1, nil
}

// flushLookbehind replays a tentative match which began in a previous chunk
// and just broke. The bytes this chunk contributed to the match fall back
// under a fresh mark at its start and surface through the ordinary flushes.
func (p *Parser) flushLookbehind(data []byte, length int) error {
	if p.markPartData >= 0 || !p.hasPartData {
		return nil
	}

	if err := p.dataCallback(p.callbacks.OnPartData, &p.markPartData, &p.hasPartData, data, length, 0, false); err != nil {
		return err
	}

	p.markPartData = 0
	p.hasPartData = true

	return nil
}

// dataCallback emits the region between the mark and endI. A negative mark
// means the region begins inside the delimiter tentatively matched at the end
// of the previous chunk, so that prefix is replayed from the lookbehind
// buffers first. With remaining set, the mark is rebased for the next chunk
// instead of being dropped.
func (p *Parser) dataCallback(cb func([]byte, int, int) error, mark *int, has *bool, data []byte, length, endI int, remaining bool) error {
	if !*has {
		return nil
	}

	if m := *mark; endI > m {
		switch {
		case m >= 0:
			if err := p.fireData(cb, data, m, endI); err != nil {
				return err
			}
		default:
			lookbehind := -m
			switch {
			case lookbehind <= len(p.delimiter):
				if err := p.fireData(cb, p.delimiter, 0, lookbehind); err != nil {
					return err
				}
			case p.flags&flagPartBoundary != 0:
				if err := p.fireData(cb, p.lookbackPart, 0, lookbehind); err != nil {
					return err
				}
			case p.flags&flagLastBoundary != 0:
				if err := p.fireData(cb, p.lookbackLast, 0, lookbehind); err != nil {
					return err
				}
			}

			if endI > 0 {
				if err := p.fireData(cb, data, 0, endI); err != nil {
					return err
				}
			}
		}
	}

	if remaining {
		*mark = endI - length
	} else {
		*has = false
	}

	return nil
}

func (p *Parser) beginPart() error {
	if err := p.fire(p.callbacks.OnPartBegin); err != nil {
		return err
	}

	p.state = eHeaderFieldStart

	return nil
}

func (p *Parser) finishHeaders() error {
	if err := p.fire(p.callbacks.OnHeadersFinished); err != nil {
		return err
	}

	p.state = ePartDataStart

	return nil
}

func (p *Parser) endHeaderValue(data []byte, length, i int) error {
	if err := p.dataCallback(p.callbacks.OnHeaderValue, &p.markHeaderValue, &p.hasHeaderValue, data, length, i, false); err != nil {
		return err
	}

	return p.fire(p.callbacks.OnHeaderEnd)
}

// Finalize verifies the body reached its closing boundary. Idempotent.
func (p *Parser) Finalize() error {
	if p.err != nil {
		return p.err
	}

	switch p.state {
	case eEnd, eEndCR, eEndCRLF:
		return nil
	}

	return p.poison(status.ErrIncompleteMultipart)
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
