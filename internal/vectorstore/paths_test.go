package vectorstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCollectionName(t *testing.T) {
	valid := []string{"a", "short_term", "crew_agents_2", strings.Repeat("x", 64)}
	for _, name := range valid {
		assert.NoError(t, ValidateCollectionName(name), name)
	}

	invalid := []string{"", "Upper", "with-hyphen", "with space", "../up", "dot.name", strings.Repeat("x", 65)}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateCollectionName(name), ErrInvalidCollectionName, name)
	}
}

func TestDefaultPersistRoot(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(HomeEnv, "/srv/ragstore")
		root, err := DefaultPersistRoot()
		require.NoError(t, err)
		assert.Equal(t, "/srv/ragstore", root)
	})

	t.Run("env with tilde", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		t.Setenv(HomeEnv, "~/rag")
		root, err := DefaultPersistRoot()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "rag"), root)
	})

	t.Run("home fallback", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		t.Setenv(HomeEnv, "")
		root, err := DefaultPersistRoot()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".local", "share", "ragstore"), root)
	})
}
