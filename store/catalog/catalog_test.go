package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	require.NotEmpty(t, c.Items)
	assert.NotEmpty(t, c.ByModule("math"))
	assert.NotEmpty(t, c.ByModule("science"))
	assert.Empty(t, c.ByModule("geography"))
	assert.Contains(t, c.ModuleTopics("math"), "fractions")
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Items)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	payload, err := json.Marshal(&Catalog{
		Items:  []ContentItem{{ID: "x", Type: TypeFact, Module: "math", Payload: "p", RewardValue: 1}},
		Topics: map[string][]string{"math": {"counting"}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
	assert.Equal(t, []string{"counting"}, c.ModuleTopics("math"))
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("EmptyItems", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"items":[]}`), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
