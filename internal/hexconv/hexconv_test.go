package hexconv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHalfbyte(t *testing.T) {
	for c, want := range map[byte]byte{
		'0': 0, '9': 9, 'a': 10, 'f': 15, 'A': 10, 'F': 15,
	} {
		require.Equal(t, want, Halfbyte[c])
		require.True(t, Is(c))
	}

	for _, c := range []byte{'g', 'G', ' ', '%', 0, 0xff, '/', ':', '@', '`'} {
		require.False(t, Is(c), "char %q must not be hex", c)
	}
}
