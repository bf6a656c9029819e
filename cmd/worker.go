package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"videotube/config"
	"videotube/logger"
	"videotube/manager"
	"videotube/storage"
	"videotube/worker"
)

// newWorkerCmd is the isolated upload process: one request on stdin, one
// reply on stdout, logs on stderr.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "upload-worker",
		Short:  "Upload one batch read from stdin (spawned by the API server)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			// 父进程超时会先发中断信号，收到后取消上传并照常写回 reply
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				// 配置错误也要用 reply 报告，保持 stdout 协议
				cfg = config.Default()
				log := logger.NewWithWriter(cfg, os.Stderr)
				return worker.Serve(ctx, os.Stdin, os.Stdout, func(context.Context) (storage.Provider, error) {
					return nil, err
				}, log)
			}

			log := logger.NewWithWriter(cfg, os.Stderr)
			build := func(ctx context.Context) (storage.Provider, error) {
				return manager.Build(ctx, cfg.Storage)
			}
			return worker.Serve(ctx, os.Stdin, os.Stdout, build, log)
		},
	}
}
