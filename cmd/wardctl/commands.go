package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/airquality"
	"github.com/i474232898/ward-air-quality/internal/app"
	"github.com/i474232898/ward-air-quality/internal/config"
	"github.com/i474232898/ward-air-quality/internal/observability"
)

var errNoUpstream = errors.New("no UPSTREAM_PROXY_URL or GOOGLE_AIR_QUALITY_API_KEY configured")

type rootOptions struct {
	logLevel string
	timeout  time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "wardctl",
		Short:         "Inspect ward air-quality data from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall timeout")

	root.AddCommand(newSnapshotCmd(opts), newLookupCmd(opts))
	return root
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var (
		noEnhance bool
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Load the ward dataset, optionally enhance it, and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if noEnhance {
				cfg.EnhanceEnabled = false
			}
			if batchSize > 0 {
				cfg.EnhanceBatchSize = batchSize
			}

			components := app.Build(cfg, log, nil)
			defer components.Reconciler.Close()

			ctx, cancel := contextWithTimeout(cmd, opts.timeout)
			defer cancel()

			if err := components.Reconciler.Load(ctx); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), components.Reconciler.Snapshot())
		},
	}
	cmd.Flags().BoolVar(&noEnhance, "no-enhance", false, "serve the local dataset only")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "number of wards to enhance (default from ENHANCE_BATCH_SIZE)")
	return cmd
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Fetch the current reading for one point and print the mapped result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			components := app.Build(cfg, log, nil)
			if components.Lookuper == nil {
				return errNoUpstream
			}

			ctx, cancel := contextWithTimeout(cmd, opts.timeout)
			defer cancel()

			resp, err := components.Lookuper.Lookup(ctx, lat, lon)
			if err != nil {
				return fmt.Errorf("lookup %.5f,%.5f: %w", lat, lon, err)
			}
			return writeJSON(cmd.OutOrStdout(), airquality.MapResponse(resp))
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func setup(opts *rootOptions) (*config.AppConfig, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := observability.NewLogger(opts.logLevel, "console")
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
