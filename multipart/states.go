package multipart

type parserState uint8

const (
	eStart parserState = iota + 1
	eStartBoundary
	eHeaderFieldStart
	eHeaderField
	eHeaderValueStart
	eHeaderValue
	eHeaderValueAlmostDone
	eHeadersAlmostDone
	ePartDataStart
	ePartData
	eEndBoundary
	eEnd
	eEndCR
	eEndCRLF
)

const (
	flagPartBoundary = 1 << iota
	flagLastBoundary
)

// tokenChars marks the characters RFC 7230 permits in header names:
// alphanumerics plus !#$%&'*+-.^_`|~
var tokenChars = func() (table [256]bool) {
	for c := byte('0'); c <= '9'; c++ {
		table[c] = true
	}

	for c := byte('a'); c <= 'z'; c++ {
		table[c] = true
		table[c&^0x20] = true
	}

	for _, c := range []byte("!#$%&'*+-.^_`|~") {
		table[c] = true
	}

	return table
}()
