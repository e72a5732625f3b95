package semgraph

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchema(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return path
}

func TestLoadSchema(t *testing.T) {
	path := writeSchema(t, `title: dgtm-core
version: "2.0"
categories: [emocional, social]
classes: [substantivo, verbo]
tones: [positivo, negativo, neutro]
`)
	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, "dgtm-core", s.Title)
	assert.Len(t, s.Categories, 2)

	assert.True(t, s.Allows("category", "social"))
	assert.False(t, s.Allows("category", "financeiro"))
	assert.True(t, s.Allows("tone", "neutro"))

	// Fields with no enumeration declared are free-form.
	assert.True(t, s.Allows("emotion", "qualquer"))
	assert.Nil(t, s.Enum("emotion"))
	assert.Nil(t, s.Enum("term"))
}

func TestLoadSchemaRejectsUnknownKeys(t *testing.T) {
	path := writeSchema(t, "categories: [a]\nclasses: [b]\ncolours: [c]\n")
	_, err := LoadSchema(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLoadSchemaRequiresCoreEnums(t *testing.T) {
	path := writeSchema(t, "title: partial\ncategories: [a]\n")
	_, err := LoadSchema(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DGTM_DATA_DIR", "/var/lib/dgtm")
	t.Setenv("DGTM_SCHEMA", "/etc/dgtm/schema.yaml")
	t.Setenv("DGTM_BATCH_SIZE", "50")
	t.Setenv("DGTM_SYMBOL_CAPACITY", "1000")

	cfg := ConfigFromEnv()
	assert.Equal(t, "/var/lib/dgtm", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/dgtm", "staging"), cfg.StagingDir)
	assert.Equal(t, "/etc/dgtm/schema.yaml", cfg.SchemaPath)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, uint32(1000), cfg.SymbolCapacity)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DGTM_DATA_DIR", "")
	t.Setenv("DGTM_SCHEMA", "")
	t.Setenv("DGTM_RULES", "")
	t.Setenv("DGTM_INPUT", "")
	t.Setenv("DGTM_BATCH_SIZE", "not-a-number")
	t.Setenv("DGTM_SYMBOL_CAPACITY", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 300, cfg.BatchSize)
	assert.Equal(t, uint32(1<<16), cfg.SymbolCapacity)
}
