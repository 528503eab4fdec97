package formparse

import (
	"io"
	"iter"

	json "github.com/json-iterator/go"
	"github.com/lumen-web/formparse/config"
	"github.com/lumen-web/formparse/kv"
)

// Data is one collected form entry: a plain field, or a file with its
// metadata. A spilled file carries Path instead of Value.
type Data struct {
	Name     string `json:"name"`
	Filename string `json:"filename,omitempty"`
	Type     string `json:"type,omitempty"`
	Charset  string `json:"charset,omitempty"`
	Value    string `json:"value,omitempty"`
	Path     string `json:"path,omitempty"`
}

type Form []Data

// Name returns the first Data matching the name.
func (f Form) Name(name string) (Data, bool) {
	for data := range f.Names(name) {
		return data, true
	}

	return Data{}, false
}

// Names returns an iterator over all Data matching the name.
func (f Form) Names(name string) iter.Seq[Data] {
	return func(yield func(Data) bool) {
		for _, entry := range f {
			if entry.Name == name {
				if !yield(entry) {
					break
				}
			}
		}
	}
}

// File returns the first Data matching the filename.
func (f Form) File(name string) (Data, bool) {
	for data := range f.Files(name) {
		return data, true
	}

	return Data{}, false
}

// Files returns an iterator over all Data matching the filename.
func (f Form) Files(name string) iter.Seq[Data] {
	return func(yield func(Data) bool) {
		for _, entry := range f {
			if entry.Filename == name {
				if !yield(entry) {
					break
				}
			}
		}
	}
}

// JSON renders the collected form, mainly for debugging and logging.
func (f Form) JSON() ([]byte, error) {
	return json.ConfigDefault.Marshal(f)
}

// Collect drives Parse over the whole body and gathers the results into a
// Form. Spilled files are left on disk and referenced by path; their removal
// stays with the caller.
func Collect(headers *kv.Storage, body io.Reader, cfg *config.Config) (Form, error) {
	var form Form

	err := Parse(headers, body,
		func(field *Field) {
			form = append(form, Data{
				Name:  field.Name(),
				Value: field.Value(),
			})
		},
		func(file *File) {
			entry := Data{
				Name:     file.FieldName(),
				Filename: file.FileName(),
				Type:     file.ContentType(),
				Charset:  file.Charset(),
			}

			if file.InMemory() {
				entry.Value = string(file.Bytes())
			} else {
				entry.Path = file.Path()
				_ = file.Release()
			}

			form = append(form, entry)
		},
		cfg)
	if err != nil {
		return nil, err
	}

	return form, nil
}
