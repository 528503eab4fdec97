// Package formparse is a streaming parser for HTTP form bodies. It consumes
// multipart/form-data and application/x-www-form-urlencoded request bodies
// incrementally, emitting completed fields and files without ever holding a
// whole upload in memory: file bodies spill to disk past a configurable
// threshold.
//
// The byte-level machinery lives in the multipart, querystring, octetstream
// and decoder packages; FormParser wires it together based on Content-Type.
package formparse

import (
	"strings"

	"github.com/indigo-web/utils/buffer"
	"github.com/indigo-web/utils/uf"
	"github.com/lumen-web/formparse/config"
	"github.com/lumen-web/formparse/decoder"
	"github.com/lumen-web/formparse/internal/urlencoded"
	"github.com/lumen-web/formparse/kv"
	"github.com/lumen-web/formparse/multipart"
	"github.com/lumen-web/formparse/octetstream"
	"github.com/lumen-web/formparse/options"
	"github.com/lumen-web/formparse/querystring"
	"github.com/lumen-web/formparse/status"
)

type (
	// OnField receives every completed form field.
	OnField func(*Field)
	// OnFile receives every completed upload. The File's spill handle stays
	// open until the callback (or a later owner) closes it.
	OnFile func(*File)
)

const (
	headerBuffSize    = 256
	headerBuffMaxSize = 64 << 10
)

type bodyParser interface {
	Write(data []byte) (n int, err error)
	Finalize() error
}

// FormParser inspects a Content-Type value, constructs the matching body
// parser and routes its callbacks into Field and File containers.
type FormParser struct {
	cfg    *config.Config
	parser bodyParser

	bytesReceived int64
}

// New builds a FormParser for the given raw Content-Type header value.
// fileName names the upload for bodies without their own metadata (the
// octet-stream path); it may be empty. A nil cfg uses config.Default().
func New(contentType, fileName string, onField OnField, onFile OnFile, cfg *config.Config) (*FormParser, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if len(contentType) == 0 {
		return nil, status.ErrNoContentType
	}

	p := &FormParser{cfg: cfg}
	mime, params := options.Parse(contentType)

	switch mime {
	case "application/x-www-form-urlencoded", "application/x-url-encoded":
		p.parser = p.newQuerystring(onField)
	case "multipart/form-data":
		boundary, found := params.Get("boundary")
		if !found || len(boundary) == 0 {
			return nil, status.ErrNoBoundary
		}

		parser, err := p.newMultipart(boundary, onField, onFile)
		if err != nil {
			return nil, err
		}

		p.parser = parser
	default:
		p.parser = p.newOctetStream(fileName, onFile)
	}

	return p, nil
}

// Write feeds a chunk of the body. The chunk is fully consumed unless the
// parser is in a terminal error state.
func (p *FormParser) Write(data []byte) (n int, err error) {
	p.bytesReceived += int64(len(data))
	return p.parser.Write(data)
}

// Finalize flushes pending state and emits what the body ended in the middle
// of. Required to observe terminal-state diagnostics. Idempotent.
func (p *FormParser) Finalize() error {
	return p.parser.Finalize()
}

// BytesReceived reports the number of body bytes fed so far.
func (p *FormParser) BytesReceived() int64 {
	return p.bytesReceived
}

// newQuerystring wires a QuerystringParser into Field containers. Names and
// values arrive as raw urlencoded bytes and are percent-and-plus-decoded
// here, at the consumer level.
func (p *FormParser) newQuerystring(onField OnField) bodyParser {
	var (
		nameBuff   = buffer.New(headerBuffSize, headerBuffMaxSize)
		decodeBuff []byte
		field      *Field
	)

	makeField := func() error {
		name, buff, err := urlencoded.ExtendedDecodeString(uf.B2S(nameBuff.Finish()), decodeBuff)
		if err != nil {
			return err
		}

		decodeBuff = buff
		field = newField(strings.Clone(name))

		return nil
	}

	return querystring.NewParser(querystring.Callbacks{
		OnFieldName: func(buf []byte, start, end int) error {
			if !nameBuff.Append(buf[start:end]) {
				return status.ErrFieldNameTooLarge
			}

			return nil
		},
		OnFieldData: func(buf []byte, start, end int) error {
			if field == nil {
				if err := makeField(); err != nil {
					return err
				}
			}

			_, err := field.Write(buf[start:end])
			return err
		},
		OnFieldEnd: func() error {
			if field == nil {
				if err := makeField(); err != nil {
					return err
				}

				field.setNone()
			} else {
				decoded, buff, err := urlencoded.ExtendedDecode(field.value, decodeBuff)
				if err != nil {
					return err
				}

				decodeBuff = buff
				field.value = decoded
			}

			if onField != nil {
				onField(field)
			}

			field = nil

			return nil
		},
	}, querystring.Options{
		StrictParsing:      p.cfg.Querystring.StrictParsing,
		SemicolonSeparator: p.cfg.Querystring.SemicolonSeparator,
		MaxSize:            p.cfg.Limits.MaxBodySize,
	})
}

// newMultipart wires a MultipartParser: part headers are accumulated and
// inspected for Content-Disposition, Content-Type and a transfer encoding,
// then part data streams into a Field or File, optionally through a decoder.
func (p *FormParser) newMultipart(boundary string, onField OnField, onFile OnFile) (bodyParser, error) {
	var (
		keyBuff = buffer.New(headerBuffSize, headerBuffMaxSize)
		valBuff = buffer.New(headerBuffSize, headerBuffMaxSize)
		headers = kv.New()

		field  *Field
		file   *File
		isFile bool
		writer decoder.Sink

		defaultCharset string
	)

	return multipart.NewParser(boundary, multipart.Callbacks{
		OnPartBegin: func() error {
			headers.Clear()
			return nil
		},
		OnHeaderField: func(buf []byte, start, end int) error {
			if !keyBuff.Append(buf[start:end]) {
				return status.ErrHeadersTooLarge
			}

			return nil
		},
		OnHeaderValue: func(buf []byte, start, end int) error {
			if !valBuff.Append(buf[start:end]) {
				return status.ErrHeadersTooLarge
			}

			return nil
		},
		OnHeaderEnd: func() error {
			headers.Add(uf.B2S(keyBuff.Finish()), uf.B2S(valBuff.Finish()))
			return nil
		},
		OnHeadersFinished: func() error {
			_, disposition := options.Parse(headers.Value("Content-Disposition"))

			fieldName := disposition.Value("name")
			fileName, hasFileName := disposition.Get("filename")

			contentType, ctParams := options.Parse(headers.Value("Content-Type"))
			charset := ctParams.ValueOr("charset", defaultCharset)

			if hasFileName {
				isFile = true
				file = newFile(stripPath(fileName), fieldName, p.cfg)
				file.contentType = contentType
				file.charset = charset
				file.params = disposition
				writer = file
			} else {
				isFile = false
				field = newField(fieldName)
				// A multipart field always carries a value, possibly empty.
				field.hasValue = true
				writer = field
			}

			switch cte := headers.ValueOr("Content-Transfer-Encoding", "7bit"); cte {
			case "7bit", "8bit", "binary":
			case "base64":
				writer = decoder.NewBase64(writer)
			case "quoted-printable":
				writer = decoder.NewQuotedPrintable(writer)
			default:
				if p.cfg.Upload.ErrorOnBadCTE {
					return status.ErrUnknownTransferEncoding
				}
			}

			return nil
		},
		OnPartData: func(buf []byte, start, end int) error {
			_, err := writer.Write(buf[start:end])
			return err
		},
		OnPartEnd: func() error {
			if err := writer.Finalize(); err != nil {
				return err
			}

			if isFile {
				if onFile != nil {
					onFile(file)
				}
				file = nil

				return nil
			}

			// A field named _charset_ retargets the default charset reported
			// for the remaining parts instead of being emitted.
			if field.Name() == "_charset_" {
				defaultCharset = field.Value()
			} else if onField != nil {
				onField(field)
			}
			field = nil

			return nil
		},
	}, p.cfg.Limits.MaxBodySize)
}

// newOctetStream wires an OctetStreamParser into a single File container.
func (p *FormParser) newOctetStream(fileName string, onFile OnFile) bodyParser {
	var file *File

	return octetstream.NewParser(octetstream.Callbacks{
		OnStart: func() error {
			file = newFile(stripPath(fileName), "", p.cfg)
			return nil
		},
		OnData: func(buf []byte, start, end int) error {
			_, err := file.Write(buf[start:end])
			return err
		},
		OnEnd: func() error {
			if file == nil {
				return nil
			}

			if err := file.Finalize(); err != nil {
				return err
			}

			if onFile != nil {
				onFile(file)
			}
			file = nil

			return nil
		},
	}, p.cfg.Limits.MaxBodySize)
}

// stripPath cuts the directory part off IE-style Windows paths and UNC
// names, which some clients submit as the filename.
func stripPath(fileName string) string {
	if len(fileName) >= 3 && (fileName[1] == ':' && fileName[2] == '\\' || fileName[0] == '\\' && fileName[1] == '\\') {
		if backslash := strings.LastIndexByte(fileName, '\\'); backslash != -1 {
			return fileName[backslash+1:]
		}
	}

	return fileName
}
