package formparse

// Field is a completed urlencoded or multipart form field. The value is
// buffered in memory and handed out as one piece.
type Field struct {
	name     string
	value    []byte
	hasValue bool
}

func newField(name string) *Field {
	return &Field{name: name}
}

// Write accumulates a piece of the value. The input is copied, so callers
// may pass borrowed buffers.
func (f *Field) Write(p []byte) (n int, err error) {
	f.value = append(f.value, p...)
	f.hasValue = true

	return len(p), nil
}

func (f *Field) Finalize() error {
	return nil
}

// setNone marks a field which appeared without any value at all, e.g. a
// urlencoded flag with no equals sign.
func (f *Field) setNone() {
	f.value = nil
	f.hasValue = false
}

func (f *Field) Name() string {
	return f.name
}

func (f *Field) Value() string {
	return string(f.value)
}

// HasValue distinguishes an empty value from an absent one.
func (f *Field) HasValue() bool {
	return f.hasValue
}
