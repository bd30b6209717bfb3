package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/usecase/digest"
)

// runAction annotates one batch, archives the run and writes the feed.
// The feed is written even when archiving fails.
func runAction(c *cli.Context) error {
	d, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer d.Close()

	items, err := digest.LoadItems(c.String("input"))
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	if len(items) == 0 {
		d.logger.Info("No new items, nothing to digest", zap.String("input", c.String("input")))
		return nil
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archive digest.RunArchive
	if d.archive != nil {
		archive = d.archive
	}
	svc := digest.New(d.annotator, archive, d.logger).
		WithProvider(d.cfg.Inference.Provider, d.cfg.Inference.Model)

	chunkSize := c.Int("chunk-size")
	if chunkSize <= 0 {
		chunkSize = d.cfg.Pipeline.ChunkSize
	}
	report, runErr := svc.Run(ctx, digest.Request{
		Items:     items,
		ChunkSize: chunkSize,
		Weekly:    c.Bool("weekly"),
		DryRun:    c.Bool("dry-run"),
	})

	exportPath := c.String("export")
	if exportPath == "" {
		exportPath = d.cfg.Export.Path
	}
	marketData := digest.FetchMarketData(ctx, buildMarket(d.cfg.Export.Market), d.logger)
	export := digest.NewExport(report.Run, report.Items).WithMarket(marketData)
	if err := digest.WriteExport(exportPath, export); err != nil {
		return errors.Join(runErr, fmt.Errorf("write export: %w", err))
	}
	d.logger.Info("Digest exported",
		zap.String("path", exportPath),
		zap.Int("articles", len(report.Items)),
	)

	if d.budget != nil {
		d.logger.Info("Request budget",
			zap.Int64("daily_used", d.budget.DailyUsed()),
			zap.Int64("daily_remaining", d.budget.RemainingDaily()),
			zap.Int64("monthly_used", d.budget.MonthlyUsed()),
		)
	}

	fmt.Fprintf(c.App.Writer, "annotated %d items (%d fallback), feed written to %s\n",
		report.Run.Total, report.Run.Fallback, exportPath)
	return runErr
}
