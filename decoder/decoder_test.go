package decoder

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/lumen-web/formparse/status"
	"github.com/stretchr/testify/require"
)

type collector struct {
	data      []byte
	finalized int
}

func (c *collector) Write(p []byte) (int, error) {
	c.data = append(c.data, p...)
	return len(p), nil
}

func (c *collector) Finalize() error {
	c.finalized++
	return nil
}

// feed writes data split into pieces of the given size, covering the
// carry-across-chunks paths.
func feed(t *testing.T, dst Sink, data string, pieces int) {
	for begin := 0; begin < len(data); begin += pieces {
		end := min(begin+pieces, len(data))
		n, err := dst.Write([]byte(data[begin:end]))
		require.NoError(t, err)
		require.Equal(t, end-begin, n)
	}
}

func TestBase64(t *testing.T) {
	t.Run("whole input", func(t *testing.T) {
		out := new(collector)
		d := NewBase64(out)
		feed(t, d, base64.StdEncoding.EncodeToString([]byte("hello world")), 1<<10)
		require.NoError(t, d.Finalize())
		require.Equal(t, "hello world", string(out.data))
		require.Equal(t, 1, out.finalized)
	})

	t.Run("any chunking decodes identically", func(t *testing.T) {
		payload := uniuri.NewLen(257)
		encoded := base64.StdEncoding.EncodeToString([]byte(payload))

		for pieces := 1; pieces <= len(encoded); pieces++ {
			out := new(collector)
			d := NewBase64(out)
			feed(t, d, encoded, pieces)
			require.NoError(t, d.Finalize())
			require.Equal(t, payload, string(out.data), "chunk size %d", pieces)
		}
	})

	t.Run("line-wrapped input", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte("some longer payload to wrap"))
		wrapped := encoded[:10] + "\r\n" + encoded[10:20] + "\n " + encoded[20:]

		out := new(collector)
		d := NewBase64(out)
		feed(t, d, wrapped, 7)
		require.NoError(t, d.Finalize())
		require.Equal(t, "some longer payload to wrap", string(out.data))
	})

	t.Run("invalid characters", func(t *testing.T) {
		d := NewBase64(new(collector))
		_, err := d.Write([]byte("a&b=more"))
		require.ErrorIs(t, err, status.ErrInvalidBase64)
	})

	t.Run("dangling group at finalize", func(t *testing.T) {
		d := NewBase64(new(collector))
		_, err := d.Write([]byte("abcde"))
		require.NoError(t, err)
		require.ErrorIs(t, d.Finalize(), status.ErrIncompleteBase64)
	})

	t.Run("finalize is idempotent", func(t *testing.T) {
		out := new(collector)
		d := NewBase64(out)
		require.NoError(t, d.Finalize())
		require.NoError(t, d.Finalize())
		require.Equal(t, 1, out.finalized)
	})
}

func TestQuotedPrintable(t *testing.T) {
	t.Run("plain passthrough", func(t *testing.T) {
		out := new(collector)
		d := NewQuotedPrintable(out)
		feed(t, d, "nothing to decode here", 1<<10)
		require.NoError(t, d.Finalize())
		require.Equal(t, "nothing to decode here", string(out.data))
	})

	t.Run("escapes", func(t *testing.T) {
		out := new(collector)
		d := NewQuotedPrintable(out)
		feed(t, d, "foo=20bar=3D=3Dbaz", 1<<10)
		require.NoError(t, d.Finalize())
		require.Equal(t, "foo bar==baz", string(out.data))
	})

	t.Run("soft line breaks", func(t *testing.T) {
		out := new(collector)
		d := NewQuotedPrintable(out)
		feed(t, d, "foo=\r\nbar=\nbaz", 1<<10)
		require.NoError(t, d.Finalize())
		require.Equal(t, "foobarbaz", string(out.data))
	})

	t.Run("any chunking decodes identically", func(t *testing.T) {
		input := "start=20=\r\nmiddle=3Dx=0D=0Aend"
		const want = "start middle=x\r\nend"

		for pieces := 1; pieces <= len(input); pieces++ {
			out := new(collector)
			d := NewQuotedPrintable(out)
			feed(t, d, input, pieces)
			require.NoError(t, d.Finalize())
			require.Equal(t, want, string(out.data), "chunk size %d", pieces)
		}
	})

	t.Run("invalid escape", func(t *testing.T) {
		for _, input := range []string{"=zz", "=a&", "=\rx"} {
			d := NewQuotedPrintable(new(collector))
			_, err := d.Write([]byte(input))
			require.ErrorIs(t, err, status.ErrInvalidQuotedPrintable, "input %q", input)
		}
	})

	t.Run("dangling escape at finalize", func(t *testing.T) {
		for _, input := range []string{"tail=", "tail=4", "tail=\r"} {
			out := new(collector)
			d := NewQuotedPrintable(out)
			_, err := d.Write([]byte(input))
			require.NoError(t, err)
			require.ErrorIs(t, d.Finalize(), status.ErrIncompleteQuotedPrintable, "input %q", input)
		}
	})

	t.Run("literal runs reach the sink unaltered", func(t *testing.T) {
		out := new(collector)
		d := NewQuotedPrintable(out)
		payload := strings.Repeat("abc", 100)
		feed(t, d, payload, 1<<10)
		require.NoError(t, d.Finalize())
		require.Equal(t, payload, string(out.data))
	})

	t.Run("finalize is idempotent", func(t *testing.T) {
		out := new(collector)
		d := NewQuotedPrintable(out)
		require.NoError(t, d.Finalize())
		require.NoError(t, d.Finalize())
		require.Equal(t, 1, out.finalized)
	})
}
