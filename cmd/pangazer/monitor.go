package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/account"
	"github.com/langchou/pangazer/internal/api/handlers"
	"github.com/langchou/pangazer/internal/config"
	"github.com/langchou/pangazer/internal/device"
	"github.com/langchou/pangazer/internal/service"
	"github.com/langchou/pangazer/pkg/ws"
)

func newMonitorCommand() *cobra.Command {
	var withServer bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Continuously monitor device updates",
		Long:  "双链路监控：周期轮询增量更新并消费云端推送，可选启动本地只读状态接口。",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(withServer)
		},
	}
	cmd.Flags().BoolVar(&withServer, "server", true, "serve the local status API")
	return cmd
}

func runMonitor(withServer bool) error {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("starting pangazer monitor", zap.String("port", cfg.ServerPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newAuthenticatedClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("authentication failed", zap.Error(err))
		return err
	}

	accOpts := []account.Option{
		account.WithDeviceOptions(device.WithControlTimeout(cfg.ControlTimeout)),
		account.WithWSReadTimeout(cfg.WSReadTimeout),
	}
	if cfg.LocalUTCOffset {
		accOpts = append(accOpts, account.WithLocalUTCOffset())
	}
	if cfg.UpdateWarnings {
		accOpts = append(accOpts, account.WithUpdateWarnings())
	}
	acc, err := account.New(logger, client, accOpts...)
	if err != nil {
		return err
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建监控服务
	monitor := service.NewMonitor(cfg, logger, acc, wsHub)
	if err := monitor.Start(ctx); err != nil {
		logger.Error("could not start monitor", zap.Error(err))
		return err
	}

	// 新连接的初始数据：设备列表与当前状态
	wsHub.SetInitDataProvider(func() *ws.InitData {
		devices := acc.Devices()
		summaries := make([]map[string]any, 0, len(devices))
		states := make(map[int64]any, len(devices))
		for _, dev := range devices {
			summaries = append(summaries, map[string]any{
				"id":        dev.ID(),
				"name":      dev.Name(),
				"model":     dev.Model(),
				"is_online": dev.IsOnline(),
			})
			if state := dev.State(); state != nil {
				states[dev.ID()] = state
			}
		}
		return &ws.InitData{Devices: summaries, States: states}
	})

	var server *http.Server
	if withServer {
		// 设置 Gin 模式
		if !cfg.Debug {
			gin.SetMode(gin.ReleaseMode)
		}

		router := gin.New()
		router.Use(gin.Recovery())

		handler := handlers.NewHandler(logger, monitor, wsHub)
		handler.RegisterRoutes(router)

		server = &http.Server{
			Addr:    ":" + cfg.ServerPort,
			Handler: router,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("could not start server", zap.Error(err))
			}
		}()
		logger.Info("server started", zap.String("addr", server.Addr))
	}

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// 停止服务
	monitor.Stop()

	// 保存 token
	if err := saveToken(cfg.TokenFile, client); err != nil {
		logger.Warn("could not save token", zap.Error(err))
	}

	// 优雅关闭
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("monitor exited")
	return nil
}
