package formparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/lumen-web/formparse/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Upload.Dir = t.TempDir()

	return cfg
}

func TestFileSpill(t *testing.T) {
	t.Run("small upload stays in memory", func(t *testing.T) {
		f := newFile("a.txt", "field", testConfig(t))
		_, err := f.Write([]byte("tiny"))
		require.NoError(t, err)
		require.NoError(t, f.Finalize())

		require.True(t, f.InMemory())
		require.Equal(t, "tiny", string(f.Bytes()))
		require.Empty(t, f.Path())
		require.NoError(t, f.Close())
	})

	t.Run("crossing the threshold spills exactly once", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Limits.MaxMemoryFileSize = 16

		payload := uniuri.NewLen(100)

		f := newFile("big.bin", "field", cfg)
		for begin := 0; begin < len(payload); begin += 10 {
			_, err := f.Write([]byte(payload[begin : begin+10]))
			require.NoError(t, err)
		}
		require.NoError(t, f.Finalize())

		require.False(t, f.InMemory())
		require.Nil(t, f.Bytes())
		require.Equal(t, int64(100), f.Size())
		require.NotEmpty(t, f.Path())

		written, err := os.ReadFile(f.Path())
		require.NoError(t, err)
		require.Equal(t, payload, string(written))

		require.NoError(t, f.Close())
		_, err = os.Stat(f.Path())
		require.True(t, os.IsNotExist(err), "DeleteTmp removes the spill file")
	})

	t.Run("delete tmp disabled keeps the file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Limits.MaxMemoryFileSize = 1
		cfg.Upload.DeleteTmp = false

		f := newFile("keep.bin", "field", cfg)
		_, err := f.Write([]byte("spilled"))
		require.NoError(t, err)
		require.NoError(t, f.Finalize())
		require.NoError(t, f.Close())

		written, err := os.ReadFile(f.Path())
		require.NoError(t, err)
		require.Equal(t, "spilled", string(written))
	})

	t.Run("release leaves the file regardless of delete tmp", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Limits.MaxMemoryFileSize = 1

		f := newFile("handover.bin", "field", cfg)
		_, err := f.Write([]byte("spilled"))
		require.NoError(t, err)
		require.NoError(t, f.Finalize())
		require.NoError(t, f.Release())

		_, err = os.Stat(f.Path())
		require.NoError(t, err)
	})

	t.Run("keep filename and extension", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Limits.MaxMemoryFileSize = 1
		cfg.Upload.KeepFilename = true
		cfg.Upload.KeepExtensions = true

		f := newFile("report.pdf", "field", cfg)
		_, err := f.Write([]byte("pdf bytes"))
		require.NoError(t, err)

		require.Equal(t, filepath.Join(cfg.Upload.Dir, "report.pdf"), f.Path())
		require.NoError(t, f.Close())
	})

	t.Run("keep filename without extension", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Limits.MaxMemoryFileSize = 1
		cfg.Upload.KeepFilename = true

		f := newFile("report.pdf", "field", cfg)
		_, err := f.Write([]byte("pdf bytes"))
		require.NoError(t, err)

		require.Equal(t, filepath.Join(cfg.Upload.Dir, "report"), f.Path())
		require.NoError(t, f.Close())
	})

	t.Run("generated name keeps extension when asked", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Limits.MaxMemoryFileSize = 1
		cfg.Upload.KeepExtensions = true

		f := newFile("photo.jpeg", "field", cfg)
		_, err := f.Write([]byte("jpeg bytes"))
		require.NoError(t, err)

		require.True(t, strings.HasSuffix(f.Path(), ".jpeg"), "path %q", f.Path())
		require.True(t, strings.HasPrefix(filepath.Base(f.Path()), "formparse-"))
		require.NoError(t, f.Close())
	})
}

func TestFileSpillThroughParser(t *testing.T) {
	cfg := testConfig(t)
	cfg.Limits.MaxMemoryFileSize = 32

	payload := uniuri.NewLen(500)
	body := "--b\r\n" +
		"Content-Disposition: form-data; name=\"big\"; filename=\"big.bin\"\r\n" +
		"\r\n" +
		payload + "\r\n" +
		"--b--\r\n"

	out := new(sink)
	p, err := New("multipart/form-data; boundary=b", "", nil, out.onFile, cfg)
	require.NoError(t, err)

	// small writes force the spill to happen mid-part
	for begin := 0; begin < len(body); begin += 7 {
		end := min(begin+7, len(body))
		_, err = p.Write([]byte(body[begin:end]))
		require.NoError(t, err)
	}
	require.NoError(t, p.Finalize())

	require.Len(t, out.files, 1)
	file := out.files[0]
	require.False(t, file.InMemory())

	written, err := os.ReadFile(file.Path())
	require.NoError(t, err)
	require.Equal(t, payload, string(written), "spill file equals the concatenated part data")

	require.NoError(t, file.Close())
}
