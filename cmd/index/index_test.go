package index

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/conf"
)

func TestImportThenShow(t *testing.T) {
	settings := &conf.Settings{}
	settings.Models.Root = t.TempDir()

	file := filepath.Join(t.TempDir(), "people.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- label: ana
  embedding: [1, 0]
- label: bob
  embedding: [0, 1]
`), 0o600))

	var out bytes.Buffer
	cmd := Command(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"import", "3", file})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "wrote 2 embeddings")
	assert.FileExists(t, filepath.Join(settings.Models.Root, "tenant_3", "index.bin"))

	out.Reset()
	cmd = Command(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show", "3"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "2 embeddings of dimension 2")
	assert.Contains(t, out.String(), "ana")
	assert.Contains(t, out.String(), "bob")
}

func TestParseTenant(t *testing.T) {
	id, err := parseTenant("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"0", "", "x", "-1"} {
		_, err := parseTenant(bad)
		assert.Error(t, err, bad)
	}
}
