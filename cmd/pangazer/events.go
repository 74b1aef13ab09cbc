package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/langchou/pangazer/internal/account"
	"github.com/langchou/pangazer/internal/config"
)

func newEventsCommand() *cobra.Command {
	var (
		since    time.Duration
		limit    int
		deviceID int64
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Fetch recent tracking events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), since, limit, deviceID)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to fetch events")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	cmd.Flags().Int64Var(&deviceID, "device", 0, "restrict to a single device")
	return cmd
}

func runEvents(ctx context.Context, since time.Duration, limit int, deviceID int64) error {
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

	from := time.Now().Add(-since).Unix()
	events, err := acc.FetchEvents(ctx, from, 0, limit, deviceID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEVICE\tEVENT\tLAT\tLON")
	for _, event := range events {
		ts := ""
		if event.Timestamp != nil {
			ts = time.Unix(*event.Timestamp, 0).Format(time.RFC3339)
		}
		devID := int64(0)
		if event.DeviceID != nil {
			devID = *event.DeviceID
		}
		lat, lon := "", ""
		if event.Latitude != nil {
			lat = fmt.Sprintf("%.6f", *event.Latitude)
		}
		if event.Longitude != nil {
			lon = fmt.Sprintf("%.6f", *event.Longitude)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", ts, devID, event.PrimaryEvent(), lat, lon)
	}
	return w.Flush()
}
