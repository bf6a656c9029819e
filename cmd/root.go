package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "videotube",
	Short:         "VideoTube backend API and upload worker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newWorkerCmd())
}

// Execute 运行根命令，未指定子命令时启动 HTTP 服务
func Execute() {
	args := os.Args[1:]
	if len(args) == 0 {
		rootCmd.SetArgs([]string{"serve"})
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
