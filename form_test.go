package formparse

import (
	"strconv"
	"strings"
	"testing"

	"github.com/lumen-web/formparse/kv"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	headers := kv.New().
		Add("Content-Type", multipartType).
		Add("Content-Length", strconv.Itoa(len(multipartBody)))

	form, err := Collect(headers, strings.NewReader(multipartBody), testConfig(t))
	require.NoError(t, err)
	require.Len(t, form, 2)

	field, found := form.Name("field1")
	require.True(t, found)
	require.Equal(t, "value1", field.Value)

	file, found := form.File("file1.txt")
	require.True(t, found)
	require.Equal(t, "pics", file.Name)
	require.Equal(t, "text/plain", file.Type)
	require.Equal(t, "hello", file.Value)

	_, found = form.Name("missing")
	require.False(t, found)

	var names []string
	for entry := range form.Names("field1") {
		names = append(names, entry.Name)
	}
	require.Equal(t, []string{"field1"}, names)
}

func TestFormJSON(t *testing.T) {
	form := Form{
		{Name: "a", Value: "1"},
		{Name: "pic", Filename: "x.png", Type: "image/png", Path: "/tmp/spill"},
	}

	rendered, err := form.JSON()
	require.NoError(t, err)
	require.Contains(t, string(rendered), `"name":"a"`)
	require.Contains(t, string(rendered), `"filename":"x.png"`)
	require.Contains(t, string(rendered), `"path":"/tmp/spill"`)
}
