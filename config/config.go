package config

import "math"

type (
	Upload struct {
		// Dir is the directory spill files are created in. Empty means the
		// system temp directory.
		Dir string
		// KeepFilename makes the spill file use the client-supplied filename
		// instead of a generated one. Requires Dir to be set.
		KeepFilename bool
		// KeepExtensions preserves the client filename's extension on
		// generated spill file names.
		KeepExtensions bool
		// DeleteTmp removes the spill file when the File is closed. Disable
		// it to hand the file over to the application.
		DeleteTmp bool
		// ErrorOnBadCTE fails the parse on an unknown Content-Transfer-Encoding
		// instead of passing the part body through verbatim.
		ErrorOnBadCTE bool
	}

	Limits struct {
		// MaxMemoryFileSize is the number of body bytes a File keeps in
		// memory before spilling to disk.
		MaxMemoryFileSize int64
		// MaxBodySize is a hard cap on total body bytes. Exceeding it is a
		// fatal parse error, not a truncation.
		MaxBodySize int64
	}

	Querystring struct {
		// SemicolonSeparator declares ';' a legal separator under strict
		// parsing. Without strict parsing ';' always separates.
		SemicolonSeparator bool
		// StrictParsing turns tolerated anomalies (duplicate separators,
		// fields without '=', undeclared ';') into errors.
		StrictParsing bool
	}
)

// Config holds the enumerated options of the form parser: spill behavior,
// size limits and urlencoded strictness.
type Config struct {
	Upload      Upload
	Limits      Limits
	Querystring Querystring
}

// Default returns the defaults: spill past 1 MiB into auto-deleted temp
// files, unlimited body, tolerant querystring parsing.
func Default() *Config {
	return &Config{
		Upload: Upload{
			DeleteTmp: true,
		},
		Limits: Limits{
			MaxMemoryFileSize: 1 * 1024 * 1024,
			MaxBodySize:       math.MaxInt64,
		},
		Querystring: Querystring{
			SemicolonSeparator: true,
		},
	}
}
