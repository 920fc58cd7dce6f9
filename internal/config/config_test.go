package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the ragstore config dir
// inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ragstore")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "embedded", cfg.Storage.Type)
	assert.Equal(t, "short_term", cfg.Storage.MemoryType)
	assert.Empty(t, cfg.Storage.Distance)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, time.Second, cfg.Qdrant.RetryBackoff.Duration())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
storage:
  type: collection
  memory_type: entities
  agents: [Researcher, "Senior Writer"]
  persist_path: /var/lib/ragstore
  distance: l2
embedding:
  provider: openai
  config:
    model: text-embedding-3-small
    api_key: sk-from-file
    base_url: https://api.example.com/v1
qdrant:
  host: qdrant.internal
  retry_backoff: 250ms
logging:
  level: debug
  format: console
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "collection", cfg.Storage.Type)
	assert.Equal(t, "entities", cfg.Storage.MemoryType)
	assert.Equal(t, []string{"Researcher", "Senior Writer"}, cfg.Storage.Agents)
	assert.Equal(t, "/var/lib/ragstore", cfg.Storage.PersistPath)
	assert.Equal(t, "l2", cfg.Storage.Distance)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Config.Model)
	assert.Equal(t, "sk-from-file", cfg.Embedding.Config.APIKey.Value())
	assert.Equal(t, "https://api.example.com/v1", cfg.Embedding.Config.BaseURL)

	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Qdrant.RetryBackoff.Duration())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
storage:
  type: collection
embedding:
  provider: tei
  config:
    base_url: http://tei:8080
`, 0600)

	t.Setenv("STORAGE_TYPE", "qdrant")
	t.Setenv("STORAGE_COLLECTION_NAME", "shared")
	t.Setenv("EMBEDDING_API_KEY", "sk-env")
	t.Setenv("EMBEDDING_CONFIG_MODEL", "BAAI/bge-base-en-v1.5")
	t.Setenv("QDRANT_PORT", "7334")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.Storage.Type)
	assert.Equal(t, "shared", cfg.Storage.CollectionName)
	assert.Equal(t, "tei", cfg.Embedding.Provider)
	assert.Equal(t, "http://tei:8080", cfg.Embedding.Config.BaseURL)
	assert.Equal(t, "sk-env", cfg.Embedding.Config.APIKey.Value())
	assert.Equal(t, "BAAI/bge-base-en-v1.5", cfg.Embedding.Config.Model)
	assert.Equal(t, 7334, cfg.Qdrant.Port)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "embedded", cfg.Storage.Type)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "storage: [unclosed", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoad_Validation(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
storage:
  type: pinecone
logging:
  format: xml
`, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	assert.Contains(t, err.Error(), `storage.type "pinecone" unsupported`)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoad_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	other := t.TempDir()
	path := filepath.Join(other, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: {}\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")

	_, err = Load(filepath.Join(other, "..", "..", "etc", "passwd"))
	assert.Error(t, err)
}

func TestValidateConfigPath_PrefixSibling(t *testing.T) {
	dir := setupTestHome(t)
	sibling := dir + "-evil"
	require.NoError(t, os.MkdirAll(sibling, 0700))

	assert.NoError(t, validateConfigPath(filepath.Join(dir, "config.yaml")))
	assert.Error(t, validateConfigPath(filepath.Join(sibling, "config.yaml")))
}

func TestLoad_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)

	for _, perm := range []os.FileMode{0644, 0666, 0640} {
		t.Run(fmt.Sprintf("%o", perm), func(t *testing.T) {
			path := writeConfig(t, dir, "storage: {}\n", perm)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "insecure config file permissions")
		})
	}

	path := writeConfig(t, dir, "storage: {}\n", 0400)
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, big, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file too large")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"STORAGE_TYPE":              "storage.type",
		"STORAGE_COLLECTION_NAME":   "storage.collection_name",
		"EMBEDDING_PROVIDER":        "embedding.provider",
		"EMBEDDING_API_KEY":         "embedding.config.api_key",
		"EMBEDDING_CONFIG_BASE_URL": "embedding.config.base_url",
		"QDRANT_USE_TLS":            "qdrant.use_tls",
		"TELEMETRY_SAMPLE_RATE":     "telemetry.sample_rate",
		"PATH":                      "",
		"HOME":                      "",
		"GOPATH_EXTRA":              "",
		"STORAGE_":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "ragstore"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSecret(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())

	out, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(out))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
