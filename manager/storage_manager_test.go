package manager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotube/config"
	"videotube/storage"
	"videotube/storage/storagetest"
)

func localConfig(t *testing.T) config.StorageConfig {
	cfg := config.Default().Storage
	cfg.Local.Path = filepath.Join(t.TempDir(), "uploads")
	return cfg
}

func TestBuildSelectsConfiguredProvider(t *testing.T) {
	p, err := Build(context.Background(), localConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "local", p.Type())

	cfg := localConfig(t)
	cfg.Provider = "cloudinary"
	_, err = Build(context.Background(), cfg)
	assert.Error(t, err, "cloudinary without credentials must fail")

	cfg.Provider = "ftp"
	_, err = Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestStorageManagerInstrumentsProvider(t *testing.T) {
	observer, err := storage.NewPrometheusObserver("", prometheus.NewRegistry())
	require.NoError(t, err)

	sm, err := NewStorageManager(context.Background(), localConfig(t), observer, zerolog.Nop())
	require.NoError(t, err)

	_, ok := sm.Provider().(*storage.Instrumented)
	assert.True(t, ok)
	assert.Equal(t, "local", sm.Type())

	src := storagetest.WriteFile(t, t.TempDir(), "a.png", storagetest.PNG)
	asset, err := sm.Upload(context.Background(), src)
	require.NoError(t, err)
	assert.NoError(t, sm.Delete(context.Background(), asset.RemoteID))
}
