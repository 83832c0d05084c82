package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/relearn/internal/config"
	"github.com/jonathan/relearn/internal/drive"
	"github.com/jonathan/relearn/internal/observability"
	"github.com/jonathan/relearn/internal/ocr"
	"github.com/jonathan/relearn/internal/slack"
	"github.com/jonathan/relearn/internal/store"
	"github.com/jonathan/relearn/internal/workflow"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one relearn batch end-to-end",
	Long: `Runs the full batch once: list unprocessed images -> sample -> create public links -> post to Slack -> OCR (when configured) -> archive to saved.

When no unprocessed image exists, archived images are moved back to the active folder instead so the next run has candidates again.`,
	RunE: runBatchCmd,
}

var runImageCount int

func init() {
	runCommand.Flags().IntVar(&runImageCount, "image-count", 0, "Images to surface this run (overrides IMAGE_COUNT)")
	rootCmd.AddCommand(runCommand)
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if runImageCount > 0 {
		cfg.ImageCount = runImageCount
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintBanner(cfg.ImageCount)

	start := time.Now()
	outcome, err := executeBatch(ctx, cfg)
	if err != nil {
		printer.PrintFailure(err, time.Since(start))
		return err
	}

	printer.PrintSummary(outcome, time.Since(start))
	return nil
}

// executeBatch wires the bindings together and runs one batch. A partial
// run is not an error; only pre-side-effect failures come back as one.
func executeBatch(ctx context.Context, cfg *config.Config) (*workflow.Outcome, error) {
	driveClient, err := drive.New(ctx, cfg.GoogleServiceAccountKey, cfg.DriveFolderID)
	if err != nil {
		return nil, err
	}

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	runner := &workflow.Runner{
		Storage:    driveClient,
		Notifier:   slack.NewWebhook(cfg.SlackWebhookURL),
		Store:      st,
		ImageCount: cfg.ImageCount,
	}

	if cfg.OcrEnabled() {
		extractor, err := ocr.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		defer extractor.Close()
		runner.Extractor = extractor
	}

	return runner.Run(ctx)
}
