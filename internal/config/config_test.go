package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, StorageBackendMemory, cfg.Storage.Backend)
	assert.Equal(t, ExtraPolicySync, cfg.Content.ExtraContentGenerationPolicy)
	assert.Equal(t, 80, cfg.Content.MaxSlugLength)
	assert.Equal(t, 10*time.Minute, cfg.Content.PublishLockTTL)
	assert.Equal(t, []string{"md", "epub", "zip"}, cfg.Content.ExtraFormats)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("STORAGE_BACKEND", "KeyDB")
	t.Setenv("KEYDB_ADDR", "keydb:6379")
	t.Setenv("RETENTION_HOT_COMMIT_LIMIT", "12")
	t.Setenv("RETENTION_HOT_DURATION", "2h")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, StorageBackendKeyDB, cfg.Storage.Backend)
	assert.Equal(t, "keydb:6379", cfg.Storage.KeyDB.Addr)
	assert.Equal(t, 12, cfg.Retention.HotCommitLimit)
	assert.Equal(t, 2*time.Hour, cfg.Retention.HotDuration)
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("CONTENTVS_SERVER_ADDR", ":7070")
	t.Setenv("CONTENTVS_CONTENT_PUBLIC_ROOT", "/srv/public")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "/srv/public", cfg.Content.PublicRoot)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  role: worker
queue:
  enabled: true
content:
  extra_content_generation_policy: queue
  extra_formats: [pdf, epub]
mirror:
  enabled: true
  bucket: artifacts
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.Server.Role)
	assert.Equal(t, ExtraPolicyQueue, cfg.Content.ExtraContentGenerationPolicy)
	assert.Equal(t, []string{"pdf", "epub"}, cfg.Content.ExtraFormats)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, "artifacts", cfg.Mirror.Bucket)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	chdir(t, t.TempDir())

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "etcd")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("queue policy without queue", func(t *testing.T) {
		t.Setenv("CONTENTVS_CONTENT_EXTRA_CONTENT_GENERATION_POLICY", "QUEUE")
		_, err := Load("")
		assert.Error(t, err)
	})
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
