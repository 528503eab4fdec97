package urlencoded

import (
	"testing"

	"github.com/lumen-web/formparse/status"
	"github.com/stretchr/testify/require"
)

func testDecoder(t *testing.T, decoder func([]byte, []byte) ([]byte, []byte, error)) {
	t.Run("no escaping", func(t *testing.T) {
		decoded, _, err := decoder([]byte("hello"), []byte{})
		require.NoError(t, err)
		require.Equal(t, "hello", string(decoded))
	})

	t.Run("corners", func(t *testing.T) {
		decoded, _, err := decoder([]byte("%2fhello%2f"), []byte{})
		require.NoError(t, err)
		require.Equal(t, "/hello/", string(decoded))
	})

	t.Run("multiple consecutive", func(t *testing.T) {
		decoded, _, err := decoder([]byte("%2F%20hello"), []byte{})
		require.NoError(t, err)
		require.Equal(t, "/ hello", string(decoded))
	})

	t.Run("incomplete sequence", func(t *testing.T) {
		_, _, err := decoder([]byte("%2"), []byte{})
		require.ErrorIs(t, err, status.ErrURLDecoding)
	})

	t.Run("invalid code", func(t *testing.T) {
		_, _, err := decoder([]byte("%2j"), []byte{})
		require.ErrorIs(t, err, status.ErrURLDecoding)
	})

	t.Run("shared buffer stays appendable", func(t *testing.T) {
		buff := []byte{}
		first, buff, err := decoder([]byte("a%20b"), buff)
		require.NoError(t, err)
		second, _, err := decoder([]byte("c%20d"), buff)
		require.NoError(t, err)
		require.Equal(t, "a b", string(first))
		require.Equal(t, "c d", string(second))
	})
}

func TestDecode(t *testing.T) {
	testDecoder(t, Decode)

	t.Run("plus stays verbatim", func(t *testing.T) {
		decoded, _, err := Decode([]byte("a+b"), []byte{})
		require.NoError(t, err)
		require.Equal(t, "a+b", string(decoded))
	})
}

func TestExtendedDecode(t *testing.T) {
	testDecoder(t, ExtendedDecode)

	t.Run("plus as space", func(t *testing.T) {
		decoded, _, err := ExtendedDecode([]byte("a+b+c"), []byte{})
		require.NoError(t, err)
		require.Equal(t, "a b c", string(decoded))
	})

	t.Run("mixed plus and escapes", func(t *testing.T) {
		decoded, _, err := ExtendedDecode([]byte("r%C3%A9sum%C3%A9+2024"), []byte{})
		require.NoError(t, err)
		require.Equal(t, "résumé 2024", string(decoded))
	})
}
