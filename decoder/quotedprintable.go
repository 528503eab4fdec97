package decoder

import (
	"bytes"

	"github.com/lumen-web/formparse/internal/hexconv"
	"github.com/lumen-web/formparse/status"
)

// QuotedPrintable incrementally decodes a quoted-printable stream into the
// underlying sink. An `=XY` escape or an `=CRLF`/`=LF` soft line break may be
// split across Write calls, so up to two pending bytes are carried over.
// Literal runs are forwarded as slices of the caller's chunk without copying.
type QuotedPrintable struct {
	dst       Sink
	carry     [2]byte
	carryLen  int
	byteBuf   [1]byte
	finalized bool
}

func NewQuotedPrintable(dst Sink) *QuotedPrintable {
	return &QuotedPrintable{dst: dst}
}

func (d *QuotedPrintable) Write(p []byte) (n int, err error) {
	length := len(p)

	if d.carryLen > 0 {
		consumed, err := d.resolveCarry(p)
		if err != nil {
			return 0, err
		}
		if consumed == 0 {
			// The chunk was too short to complete the escape and was fully
			// absorbed into the carry.
			return length, nil
		}

		p = p[consumed:]
	}

	for {
		eq := bytes.IndexByte(p, '=')
		if eq == -1 {
			break
		}

		if eq > 0 {
			if _, err = d.dst.Write(p[:eq]); err != nil {
				return 0, err
			}
		}

		p = p[eq:]

		if len(p) < 2 {
			d.carryLen = copy(d.carry[:], p)
			return length, nil
		}

		switch {
		case p[1] == '\n':
			p = p[2:]
		case p[1] == '\r':
			if len(p) < 3 {
				d.carryLen = copy(d.carry[:], p)
				return length, nil
			}
			if p[2] != '\n' {
				return 0, status.ErrInvalidQuotedPrintable
			}
			p = p[3:]
		case hexval(p[1]) <= 0x0f:
			if len(p) < 3 {
				d.carryLen = copy(d.carry[:], p)
				return length, nil
			}
			if hexval(p[2]) > 0x0f {
				return 0, status.ErrInvalidQuotedPrintable
			}
			d.byteBuf[0] = hexval(p[1])<<4 | hexval(p[2])
			if _, err = d.dst.Write(d.byteBuf[:1]); err != nil {
				return 0, err
			}
			p = p[3:]
		default:
			return 0, status.ErrInvalidQuotedPrintable
		}
	}

	if len(p) > 0 {
		if _, err = d.dst.Write(p); err != nil {
			return 0, err
		}
	}

	return length, nil
}

// resolveCarry completes an escape whose prefix was carried from the previous
// chunk. Returns the number of bytes consumed from p, or 0 when p was
// absorbed into the carry entirely.
func (d *QuotedPrintable) resolveCarry(p []byte) (consumed int, err error) {
	var tmp [3]byte
	have := copy(tmp[:], d.carry[:d.carryLen])
	have += copy(tmp[have:], p)

	if have < 2 {
		d.carryLen = copy(d.carry[:], tmp[:have])
		return 0, nil
	}

	switch {
	case tmp[1] == '\n':
		consumed = 2
	case tmp[1] == '\r':
		if have < 3 {
			d.carryLen = copy(d.carry[:], tmp[:have])
			return 0, nil
		}
		if tmp[2] != '\n' {
			return 0, status.ErrInvalidQuotedPrintable
		}
		consumed = 3
	case hexval(tmp[1]) <= 0x0f:
		if have < 3 {
			d.carryLen = copy(d.carry[:], tmp[:have])
			return 0, nil
		}
		if hexval(tmp[2]) > 0x0f {
			return 0, status.ErrInvalidQuotedPrintable
		}
		d.byteBuf[0] = hexval(tmp[1])<<4 | hexval(tmp[2])
		if _, err = d.dst.Write(d.byteBuf[:1]); err != nil {
			return 0, err
		}
		consumed = 3
	default:
		return 0, status.ErrInvalidQuotedPrintable
	}

	consumed -= d.carryLen
	d.carryLen = 0

	return consumed, nil
}

func hexval(c byte) byte {
	return hexconv.Halfbyte[c]
}

// Finalize errors on a dangling escape: a lone trailing `=`, `=X` or `=CR`
// cannot be decoded.
func (d *QuotedPrintable) Finalize() error {
	if d.finalized {
		return nil
	}
	d.finalized = true

	if d.carryLen > 0 {
		return status.ErrIncompleteQuotedPrintable
	}

	return d.dst.Finalize()
}
