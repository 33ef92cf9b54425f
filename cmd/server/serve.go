package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"documind/internal/config"
	"documind/internal/folder"
	"documind/internal/handler"
	"documind/internal/middleware"
	"documind/internal/service"
	"documind/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(config.Conf)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer a.Close()

	// 启动后台入库消费者
	a.startWorkers(ctx)

	// 导入种子目录，并按需监听新文件
	if cfg.Ingestion.SeedDir != "" {
		go seedFolder(ctx, a, cfg.Ingestion)
	}

	// 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(r, handler.Handlers{
		Document:     handler.NewDocumentHandler(a.documents, time.Local),
		Upload:       handler.NewUploadHandler(a.documents),
		Search:       handler.NewSearchHandler(a.search, service.NewDebouncer(cfg.Search.Debounce)),
		Model:        handler.NewModelHandler(a.models),
		Chat:         handler.NewChatHandler(a.chat, a.conversations, a.jwt),
		Conversation: handler.NewConversationHandler(a.conversations),
		Events:       handler.NewEventsHandler(a.bus),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("接收到停机信号，正在关闭服务...")
	case err := <-serveErr:
		return fmt.Errorf("HTTP 服务监听失败: %w", err)
	}

	// 设置一个5秒的超时上下文
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}
	// 停止消费者与目录监听，队列在 a.Close 中排空
	cancel()
	log.Info("服务已优雅关闭")
	return nil
}

// seedFolder 导入种子目录中的文件，配置了 watch 时继续监听新文件。
func seedFolder(ctx context.Context, a *app, cfg config.IngestionConfig) {
	files, err := folder.Walk(cfg.SeedDir, cfg.Include)
	if err != nil {
		log.Warnf("[Seed] 目录 '%s' 不可用，跳过初始化导入: %v", cfg.SeedDir, err)
		return
	}
	files = skipKnown(a, files)
	if _, err := a.ingestFiles(ctx, files, ""); err != nil {
		log.Warnf("[Seed] %v", err)
	}
	if !cfg.Watch {
		return
	}
	w, err := folder.NewWatcher(cfg.SeedDir, cfg.Include, 0, func(ctx context.Context, files []service.UploadFile) {
		if _, err := a.ingestFiles(ctx, files, ""); err != nil {
			log.Warnf("[Watch] %v", err)
		}
	})
	if err != nil {
		log.Warnf("[Watch] %v", err)
		return
	}
	if err := w.Run(ctx); err != nil {
		log.Warnf("[Watch] 目录监听退出: %v", err)
	}
}

// skipKnown 跳过文档库中已存在相同相对路径与大小的文件，重启后不会重复导入。
func skipKnown(a *app, files []service.UploadFile) []service.UploadFile {
	known := make(map[string]int64)
	for _, d := range a.documents.ListDocuments() {
		known[d.Path] = d.Size
	}
	out := files[:0]
	for _, f := range files {
		if size, ok := known[f.Path]; ok && size == f.Size {
			continue
		}
		out = append(out, f)
	}
	return out
}
