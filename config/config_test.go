package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, int64(1024*1024), cfg.Limits.MaxMemoryFileSize)
	require.True(t, cfg.Upload.DeleteTmp)
	require.True(t, cfg.Querystring.SemicolonSeparator)
	require.False(t, cfg.Querystring.StrictParsing)
}
