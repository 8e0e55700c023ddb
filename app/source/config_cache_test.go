package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/match-watch/app/database"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestConfigCacheRun(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "bezirksklasse.yml", "url: https://example.com/bk5\nname: Bezirksklasse 5\n")
	writeConfig(t, dir, "kreisliga.yml", "url: https://example.com/kl.rss\nkind: feed\nenabled: false\n")
	writeConfig(t, dir, "notes.txt", "ignored")

	cache := NewConfigCache(dir)
	require.NoError(t, cache.Run())
	assert.Equal(t, 2, cache.GetConfigCount())

	enabled := cache.GetEnabledConfigs()
	require.Len(t, enabled, 1)
	assert.Equal(t, "Bezirksklasse 5", enabled[0].Name)
	assert.Equal(t, "bezirksklasse", enabled[0].File)
	assert.Equal(t, database.ProviderKindHTML, enabled[0].Kind)
}

func TestConfigCacheDefaultsNameToFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "kreisliga-nord.yml", "url: https://example.com/kl\n")

	config, err := NewConfigCache(dir).LoadConfig(filepath.Join(dir, "kreisliga-nord.yml"))
	require.NoError(t, err)
	assert.Equal(t, "kreisliga-nord", config.Name)
	assert.True(t, config.Enabled)
}

func TestConfigCacheValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing url", "name: x\n"},
		{"bad kind", "url: https://example.com\nkind: pdf\n"},
		{"bad yaml", "url: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "p.yml", tt.content)

			assert.Error(t, NewConfigCache(dir).Run())
		})
	}
}

func TestConfigCacheMissingDir(t *testing.T) {
	cache := NewConfigCache(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, cache.Run())
	assert.Equal(t, 0, cache.GetConfigCount())
}
