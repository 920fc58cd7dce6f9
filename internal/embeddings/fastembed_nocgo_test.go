//go:build !cgo

package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProvider_FastEmbedWithoutCgo(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: ProviderFastEmbed}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrFastEmbedNotAvailable)
}
