package fsbridge

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name      string
		cacheSize int
	}{
		{name: "explicit size", cacheSize: 500},
		{name: "zero falls back to minimum", cacheSize: 0},
		{name: "negative falls back to minimum", cacheSize: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dotGit := memfs.New()
			storage := NewStorage(dotGit, tt.cacheSize)
			require.NotNil(t, storage)
			assert.Equal(t, dotGit, storage.Filesystem())
		})
	}
}
