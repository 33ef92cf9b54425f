// Package main 是应用程序的入口点。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"documind/internal/config"
	"documind/pkg/log"
)

var configPath string

// rootCmd 是不带子命令时的基础命令
var rootCmd = &cobra.Command{
	Use:   "documind",
	Short: "DocuMind 文档助手服务",
	Long: `DocuMind 管理上传的文档，对其切块与向量化，
并提供语义检索和基于文档的对话。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. 初始化配置
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		config.Conf = cfg
		// 2. 初始化日志记录器
		log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "配置文件路径，为空时只使用默认值与环境变量")
}

func defaultConfigPath() string {
	const path = "./configs/config.yaml"
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
