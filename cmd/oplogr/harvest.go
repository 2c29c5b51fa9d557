package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/oplogr/internal/oplogr/config"
	"github.com/vaibhaw-/oplogr/internal/oplogr/harvest"
	"github.com/vaibhaw-/oplogr/internal/oplogr/logger"
	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
	"github.com/vaibhaw-/oplogr/internal/oplogr/sink"
	"github.com/vaibhaw-/oplogr/internal/oplogr/source"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Page through DescribeAuditRecords and append normalized records to the oplog",
	RunE:  runHarvest,
}

var (
	harvestFlagOutput    string
	harvestFlagStateFile string
	harvestFlagRunLog    string
)

func init() {
	harvestCmd.Flags().StringVar(&harvestFlagOutput, "output", "", "oplog file to append to (default from config output.path)")
	harvestCmd.Flags().StringVar(&harvestFlagStateFile, "state-file", "", "resume state file (default from config harvest.state_file)")
	harvestCmd.Flags().StringVar(&harvestFlagRunLog, "run-log", "", "NDJSON run summary log (default from config logging.run_log)")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	log := logger.L()

	// Override config with command line flags
	if harvestFlagOutput != "" {
		cfg.Output.Path = harvestFlagOutput
	}
	if harvestFlagStateFile != "" {
		cfg.Harvest.StateFile = harvestFlagStateFile
	}
	if harvestFlagRunLog != "" {
		cfg.Logging.RunLog = harvestFlagRunLog
	}

	src, err := source.New(cfg.Aliyun, cfg.Harvest.BaseFilters)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	out, err := sink.Open(cfg.Output.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Errorw("failed to close oplog", "path", out.Path(), "err", err.Error())
		}
	}()

	h := harvest.New(src, out,
		harvest.WithNormalizer(oplog.NewNormalizer()),
		harvest.WithPageDelay(cfg.Harvest.PageDelay),
		harvest.WithBackoffDelay(cfg.Harvest.BackoffDelay),
		harvest.WithStateFile(cfg.Harvest.StateFile),
		harvest.WithRunLog(cfg.Logging.RunLog),
		harvest.WithOutputName(out.Path()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := h.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "harvest %s: pages=%d written=%d retries=%d output=%s\n",
		summary.Status, summary.Pages, summary.Written, summary.Retries, out.Path())
	return nil
}
