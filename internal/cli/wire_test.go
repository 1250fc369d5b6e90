package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubsearch/config"
	"pubsearch/internal/domain"
)

func TestOpenReadSideChecksEmbedder(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *config.EmbeddingConfig)
		wantErr error
	}{
		{
			name: "backend unreachable",
			setup: func(c *config.EmbeddingConfig) {
				c.Provider = "ollama"
				c.BaseURL = "http://127.0.0.1:1/v1"
				c.Timeout = 2 * time.Second
			},
			wantErr: domain.ErrModelUnavailable,
		},
		{
			name: "backend ready without index",
			setup: func(c *config.EmbeddingConfig) {
				c.Provider = "hash"
				c.Dimension = 64
			},
			wantErr: domain.ErrNoIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.DataDir = filepath.Join(t.TempDir(), "data")
			tt.setup(&cfg.Embedding)

			rs, err := openReadSide(context.Background(), cfg)
			require.Error(t, err)
			assert.Nil(t, rs)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
