package service

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"videotube/config"
	"videotube/database"
	"videotube/storage/storagetest"
	"videotube/worker"
)

type spyDispatcher struct {
	inner Dispatcher
	calls atomic.Int32
}

func (s *spyDispatcher) Dispatch(ctx context.Context, paths []string) (*worker.BatchResult, error) {
	s.calls.Add(1)
	return s.inner.Dispatch(ctx, paths)
}

type testEnv struct {
	cfg        *config.AppConfig
	db         *gorm.DB
	fake       *storagetest.Fake
	dispatcher *spyDispatcher
	orch       *Orchestrator
	users      *UserService
	videos     *VideoService
	dir        string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithTimeout(t, 5*time.Second)
}

func newTestEnvWithTimeout(t *testing.T, timeout time.Duration) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Upload.MaxImageBytes = 5 * 1024 * 1024

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"})
	require.NoError(t, err)

	fake := storagetest.NewFake()
	d, err := worker.NewDispatcher(&worker.InProcess{Provider: fake, Logger: zerolog.Nop()}, timeout, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	spy := &spyDispatcher{inner: d}

	v := NewValidator(cfg.Upload)
	orch, err := NewOrchestrator(v, spy, fake, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	tokens := NewTokenIssuer(cfg.JWT)

	return &testEnv{
		cfg:        cfg,
		db:         db,
		fake:       fake,
		dispatcher: spy,
		orch:       orch,
		users:      NewUserService(db, orch, fake, v, tokens, zerolog.Nop()),
		videos:     NewVideoService(db, orch, fake, v, zerolog.Nop()),
		dir:        t.TempDir(),
	}
}

// file writes a local temp file whose content starts with header and is
// padded to size bytes.
func (e *testEnv) file(t *testing.T, field, name string, header []byte, size int) *UploadedFile {
	t.Helper()
	content := header
	if size > len(header) {
		content = append(bytes.Clone(header), make([]byte, size-len(header))...)
	}
	p := storagetest.WriteFile(t, e.dir, name, content)
	return &UploadedFile{Field: field, LocalPath: p, Size: int64(len(content))}
}

func (e *testEnv) png(t *testing.T, field, name string) *UploadedFile {
	return e.file(t, field, name, storagetest.PNG, 0)
}

// failUserInserts makes every INSERT into users fail with a duplicate key
// error, the way a concurrent registration would.
func failUserInserts(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:duplicate_user", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "users" {
			_ = tx.AddError(gorm.ErrDuplicatedKey)
		}
	})
	require.NoError(t, err)
}
