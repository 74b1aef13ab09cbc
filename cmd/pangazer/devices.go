package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/langchou/pangazer/internal/account"
	"github.com/langchou/pangazer/internal/config"
)

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices registered to the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd.Context())
		},
	}
}

func runDevices(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	client, err := newAuthenticatedClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	acc, err := account.New(logger, client)
	if err != nil {
		return err
	}
	if err := acc.RefreshDevices(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODEL\tTYPE\tFIRMWARE")
	for _, dev := range acc.Devices() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			dev.ID(), dev.Name(), dev.Model(), dev.Type(), dev.FirmwareVersion())
	}
	return w.Flush()
}
