package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"documind/internal/config"
	"documind/internal/folder"
)

var (
	ingestAuthor  string
	ingestInclude []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "把本地目录导入文档库",
	Long: `递归导入目录中命中 include 模式的文件。
需要配置 MySQL 与 Elasticsearch/MinIO 等持久化后端，否则导入结果只在本进程内可见。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Conf
		// 命令行导入总是同步处理，不依赖后台消费者
		cfg.Ingestion.Mode = "sync"
		include := cfg.Ingestion.Include
		if len(ingestInclude) > 0 {
			include = ingestInclude
		}

		files, err := folder.Walk(args[0], include)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "没有匹配的文件")
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.ingestFiles(ctx, files, ingestAuthor)
		if result != nil {
			for _, d := range result.Documents {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", d.Status, d.Path)
			}
			for _, f := range result.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed   %s: %s\n", f.Name, f.Reason)
			}
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "为导入的文档设置作者")
	ingestCmd.Flags().StringSliceVar(&ingestInclude, "include", nil, "include 模式 (doublestar)，默认使用配置中的 ingestion.include")
	rootCmd.AddCommand(ingestCmd)
}
