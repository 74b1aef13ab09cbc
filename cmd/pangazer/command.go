package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/langchou/pangazer/internal/config"
	"github.com/langchou/pangazer/internal/telemetry"
)

func newCommandCommand() *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "command <device-id> <command-id>",
		Short: "Send a remote command to a device",
		Long:  "向设备下发远程指令。指令编号见云端指令表，例如 1 落锁、2 解锁、4 启动发动机。",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid device id %q", args[0])
			}
			commandID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid command id %q", args[1])
			}
			return runCommand(cmd.Context(), deviceID, telemetry.CommandID(commandID), params)
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "extra command parameters as JSON")
	return cmd
}

func runCommand(ctx context.Context, deviceID int64, commandID telemetry.CommandID, rawParams string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	var params map[string]any
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
	}

	client, err := newAuthenticatedClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := client.RemoteCommand(ctx, deviceID, commandID, params); err != nil {
		return err
	}
	fmt.Printf("command %d sent to device %d\n", commandID, deviceID)
	return nil
}
