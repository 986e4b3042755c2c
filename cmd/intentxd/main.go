package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "intentxd",
	Short: "IntentX 意图执行服务",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// .env 不存在时忽略，已存在的环境变量优先。
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("加载 .env 失败: %w", err)
		}
		if configPath == "" {
			configPath = os.Getenv("INTENTX_CONFIG")
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径（YAML 或 JSON），默认读取 INTENTX_CONFIG")
	rootCmd.AddCommand(serveCmd, parseCmd)
}

// main 是 IntentX 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "intentxd 运行失败: %v\n", err)
		os.Exit(1)
	}
}
