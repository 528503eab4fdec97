package formparse

import (
	"io"
	"strconv"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/utils/strcomp"
	"github.com/lumen-web/formparse/config"
	"github.com/lumen-web/formparse/kv"
	"github.com/lumen-web/formparse/status"
)

// chunkSize bounds a single read from the input stream.
const chunkSize = 1 << 20

// Parse reads the whole body from the stream and drives a FormParser over
// it, invoking onField and onFile as entries complete. Content-Type selects
// the parser; Content-Length, when present, bounds the read; a chunked
// Transfer-Encoding is decoded transparently. An X-File-Name header names
// octet-stream uploads.
func Parse(headers *kv.Storage, body io.Reader, onField OnField, onFile OnFile, cfg *config.Config) error {
	contentType, found := headers.Get("Content-Type")
	if !found {
		return status.ErrNoContentType
	}

	parser, err := New(contentType, headers.Value("X-File-Name"), onField, onFile, cfg)
	if err != nil {
		return err
	}

	if strcomp.EqualFold(headers.Value("Transfer-Encoding"), "chunked") {
		return parseChunked(parser, body)
	}

	contentLength := int64(-1)
	if value, ok := headers.Get("Content-Length"); ok {
		contentLength, err = strconv.ParseInt(value, 10, 64)
		if err != nil || contentLength < 0 {
			return status.ErrBadContentLength
		}
	}

	var (
		buff = make([]byte, chunkSize)
		read int64
	)

	for {
		window := int64(chunkSize)
		if contentLength >= 0 {
			if remaining := contentLength - read; remaining < window {
				window = remaining
			}
		}
		if window == 0 {
			break
		}

		n, err := body.Read(buff[:window])
		if n > 0 {
			read += int64(n)

			if _, werr := parser.Write(buff[:n]); werr != nil {
				return werr
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	return parser.Finalize()
}

// parseChunked feeds a Transfer-Encoding: chunked stream through a chunked
// body parser, writing each decoded piece into the form parser.
func parseChunked(parser *FormParser, body io.Reader) error {
	chunked := chunkedbody.NewParser(chunkedbody.DefaultSettings())
	buff := make([]byte, chunkSize)

	for {
		n, readErr := body.Read(buff)

		data := buff[:n]
		for len(data) > 0 {
			chunk, extra, err := chunked.Parse(data, false)
			switch err {
			case nil:
			case io.EOF:
				if len(chunk) > 0 {
					if _, werr := parser.Write(chunk); werr != nil {
						return werr
					}
				}

				return parser.Finalize()
			default:
				return err
			}

			if len(chunk) > 0 {
				if _, werr := parser.Write(chunk); werr != nil {
					return werr
				}
			}

			data = extra
		}

		if readErr == io.EOF {
			return parser.Finalize()
		}
		if readErr != nil {
			return readErr
		}
	}
}
