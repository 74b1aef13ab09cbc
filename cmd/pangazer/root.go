package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/pangazer/internal/api/pandora"
	"github.com/langchou/pangazer/internal/config"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pangazer",
		Short:         "Pandora telematics cloud client",
		Long:          "Pangazer 接入 Pandora 车载终端云服务：拉取设备状态、下发远程指令、持续监控更新。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newMonitorCommand(),
		newDevicesCommand(),
		newCommandCommand(),
		newEventsCommand(),
	)
	return cmd
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, _ := cfg.Build()
	return logger
}

// savedToken 令牌文件内容
type savedToken struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id,omitempty"`
}

// loadToken 加载令牌
func loadToken(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	var token savedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// saveToken 保存令牌
func saveToken(filename string, client *pandora.Client) error {
	data, err := json.MarshalIndent(savedToken{
		AccessToken: client.AccessToken(),
		UserID:      client.UserID(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// newAuthenticatedClient 构建云端客户端并完成认证，认证成功后落盘令牌
func newAuthenticatedClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pandora.Client, error) {
	client := pandora.NewClient(logger, pandora.Config{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Language: cfg.Language,
	})

	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		logger.Debug("no existing token found", zap.Error(err))
	}
	if err := client.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	if err := saveToken(cfg.TokenFile, client); err != nil {
		logger.Warn("could not save token", zap.Error(err))
	}
	return client, nil
}
