package decoder

import (
	"encoding/base64"

	"github.com/lumen-web/formparse/status"
)

// Base64 incrementally decodes a base64 stream into the underlying sink.
// Input may be split at arbitrary positions: bytes not forming a complete
// 4-character group are carried over to the next Write. Whitespace is
// skipped, as MIME bodies wrap base64 at line boundaries.
type Base64 struct {
	dst       Sink
	carry     [4]byte
	carryLen  int
	scratch   []byte
	out       []byte
	finalized bool
}

func NewBase64(dst Sink) *Base64 {
	return &Base64{dst: dst}
}

func (d *Base64) Write(p []byte) (n int, err error) {
	d.scratch = append(d.scratch[:0], d.carry[:d.carryLen]...)

	for _, c := range p {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			d.scratch = append(d.scratch, c)
		}
	}

	groups := len(d.scratch) / 4 * 4
	if groups > 0 {
		need := groups / 4 * 3
		if cap(d.out) < need {
			d.out = make([]byte, need)
		}

		decoded, err := base64.StdEncoding.Decode(d.out[:need], d.scratch[:groups])
		if err != nil {
			return 0, status.ErrInvalidBase64
		}

		if _, err = d.dst.Write(d.out[:decoded]); err != nil {
			return 0, err
		}
	}

	d.carryLen = copy(d.carry[:], d.scratch[groups:])

	return len(p), nil
}

// Finalize reports an error when a partial base64 group is pending: complete
// groups never survive a Write, so leftovers mean truncated input.
func (d *Base64) Finalize() error {
	if d.finalized {
		return nil
	}
	d.finalized = true

	if d.carryLen > 0 {
		return status.ErrIncompleteBase64
	}

	return d.dst.Finalize()
}
