package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"videotube/storage"
	"videotube/util"
)

// errSiblingFailed marks a successful upload that was deleted because another
// path of the same batch failed.
var errSiblingFailed = errors.New("rolled back: another file in the batch failed")

// RunBatch uploads every path of req concurrently and returns one Result per
// path in input order. Each local file is removed right after its own upload
// attempt. When any path fails the successful siblings are deleted remotely
// and flagged RolledBack, so a failed batch leaves no remote objects behind.
func RunBatch(ctx context.Context, provider storage.Provider, req Request, log zerolog.Logger) Reply {
	log = log.With().Str("batch_id", req.BatchID).Logger()
	results := make([]Result, len(req.Paths))

	var (
		panicOnce sync.Once
		panicked  any
	)

	// 每个 goroutine 只写自己的下标，不需要加锁
	var g errgroup.Group
	for i, p := range req.Paths {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicked = fmt.Sprintf("%v\n%s", r, debug.Stack()) })
				}
			}()
			results[i] = uploadOne(ctx, provider, p, log)
			return nil
		})
	}
	_ = g.Wait()

	failed := panicked != nil
	for _, r := range results {
		if r.Err != "" {
			failed = true
			break
		}
	}
	if failed {
		rollback(ctx, provider, results, log)
	}
	if panicked != nil {
		// 兄弟文件已回滚，再把 panic 交给 runner 处理
		panic(panicked)
	}

	return Reply{BatchID: req.BatchID, Results: results}
}

func uploadOne(ctx context.Context, provider storage.Provider, localPath string, log zerolog.Logger) Result {
	defer util.RemoveIfExists(localPath)

	result := Result{LocalPath: localPath}
	asset, err := provider.Upload(ctx, localPath)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("path", localPath).Msg("upload failed")
		result.Err = err.Error()
	case asset == nil:
		result.Err = "storage returned no asset"
	default:
		result.RemoteID = asset.RemoteID
		result.URL = asset.URL
		result.Bytes = asset.Bytes
		result.Duration = asset.Duration
		log.Debug().Str("path", localPath).Str("remote_id", asset.RemoteID).Msg("uploaded")
	}
	return result
}

func rollback(ctx context.Context, provider storage.Provider, results []Result, log zerolog.Logger) {
	// 上游 ctx 可能已经超时，回滚用独立的 ctx
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := range results {
		if results[i].Err != "" || results[i].RemoteID == "" {
			continue
		}
		g.Go(func() error {
			r := &results[i]
			if err := provider.Delete(ctx, r.RemoteID); err != nil {
				// 删除失败时保留 RemoteID，调用方据此记录孤儿对象
				log.Error().Err(err).Str("remote_id", r.RemoteID).Msg("rollback delete failed")
				r.Err = "rollback delete failed: " + err.Error()
				return nil
			}
			r.Err = errSiblingFailed.Error()
			r.RolledBack = true
			return nil
		})
	}
	_ = g.Wait()
}
