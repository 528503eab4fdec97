package querystring

type parserState uint8

const (
	eBeforeField parserState = iota + 1
	eFieldName
	eFieldData
)
