package formparse

import (
	"os"
	"path/filepath"

	"github.com/dchest/uniuri"
	"github.com/lumen-web/formparse/config"
	"github.com/lumen-web/formparse/kv"
	"github.com/lumen-web/formparse/status"
)

// File is a completed upload. The body is kept in memory until it crosses
// Limits.MaxMemoryFileSize, then it spills into a file on disk exactly once.
// A spilled File owns its handle until Close.
type File struct {
	cfg *config.Config

	fieldName   string
	fileName    string
	contentType string
	charset     string
	params      *kv.Storage

	inMemory bool
	buf      []byte
	handle   *os.File
	path     string
	size     int64
}

func newFile(fileName, fieldName string, cfg *config.Config) *File {
	return &File{
		cfg:       cfg,
		fieldName: fieldName,
		fileName:  fileName,
		inMemory:  true,
	}
}

// Write accumulates a piece of the body, spilling to disk when the in-memory
// buffer crosses the threshold. The input is copied or written out, so
// callers may pass borrowed buffers.
func (f *File) Write(p []byte) (n int, err error) {
	if f.inMemory && f.size+int64(len(p)) > f.cfg.Limits.MaxMemoryFileSize {
		if err = f.spill(); err != nil {
			return 0, err
		}
	}

	if f.inMemory {
		f.buf = append(f.buf, p...)
	} else {
		if _, err = f.handle.Write(p); err != nil {
			return 0, status.ErrWritingFile
		}
	}

	f.size += int64(len(p))

	return len(p), nil
}

// spill moves the buffered body into a freshly created disk file.
func (f *File) spill() error {
	handle, path, err := f.createFile()
	if err != nil {
		return err
	}

	if _, err = handle.Write(f.buf); err != nil {
		_ = handle.Close()
		_ = os.Remove(path)

		return status.ErrWritingFile
	}

	f.handle = handle
	f.path = path
	f.buf = nil
	f.inMemory = false

	return nil
}

func (f *File) createFile() (handle *os.File, path string, err error) {
	upload := f.cfg.Upload

	dir := upload.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	var name string
	if upload.Dir != "" && upload.KeepFilename && f.fileName != "" {
		name = filepath.Base(f.fileName)
		if !upload.KeepExtensions {
			name = name[:len(name)-len(filepath.Ext(name))]
		}
	}
	if name == "" || name == "." {
		name = "formparse-" + uniuri.New()
		if upload.KeepExtensions {
			name += filepath.Ext(f.fileName)
		}
	}

	path = filepath.Join(dir, name)

	handle, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, "", status.ErrOpeningFile
	}

	return handle, path, nil
}

// Finalize flushes a spilled body to stable storage. Idempotent.
func (f *File) Finalize() error {
	if f.handle == nil {
		return nil
	}

	if err := f.handle.Sync(); err != nil {
		return status.ErrWritingFile
	}

	return nil
}

// Release closes the spill file handle but always leaves the file on disk,
// handing ownership over to the caller. In-memory files release to a no-op.
func (f *File) Release() error {
	if f.handle == nil {
		return nil
	}

	err := f.handle.Close()
	f.handle = nil

	if err != nil {
		return status.ErrWritingFile
	}

	return nil
}

// Close releases the spill file handle and, unless Upload.DeleteTmp is off,
// removes the file. In-memory files close to a no-op.
func (f *File) Close() error {
	if f.handle == nil {
		return nil
	}

	err := f.handle.Close()
	f.handle = nil

	if f.cfg.Upload.DeleteTmp {
		_ = os.Remove(f.path)
	}

	if err != nil {
		return status.ErrWritingFile
	}

	return nil
}

func (f *File) FieldName() string {
	return f.fieldName
}

// FileName is the client-supplied name, stripped of any Windows-style path.
func (f *File) FileName() string {
	return f.fileName
}

func (f *File) ContentType() string {
	return f.contentType
}

func (f *File) Charset() string {
	return f.charset
}

// Params exposes the Content-Disposition parameters of the part.
func (f *File) Params() *kv.Storage {
	if f.params == nil {
		f.params = kv.New()
	}

	return f.params
}

func (f *File) Size() int64 {
	return f.size
}

func (f *File) InMemory() bool {
	return f.inMemory
}

// Bytes returns the body of an in-memory file; a spilled File returns nil.
func (f *File) Bytes() []byte {
	if !f.inMemory {
		return nil
	}

	return f.buf
}

// Path is the location of the spill file, empty while the body is in memory.
func (f *File) Path() string {
	return f.path
}
