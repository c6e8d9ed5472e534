package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"guidelines":["Be brief.","", "Cite claim IDs."]}`), 0o644))

	p, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Role, p.Role)
	assert.Equal(t, "insurance claims", p.Domain)
	assert.Equal(t, "1. Be brief.\n2. Cite claim IDs.\n", p.FormatGuidelines())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
}
