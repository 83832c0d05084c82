package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/relearn/internal/config"
	"github.com/jonathan/relearn/internal/server"
	"github.com/jonathan/relearn/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  `Start an HTTP server with a POST /relearn endpoint that runs one batch per request, for schedulers that trigger over HTTP instead of executing the binary.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	// Fail fast on bad configuration instead of on the first request.
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port: servePort,
		Run: func(ctx context.Context) (*workflow.Outcome, error) {
			return executeBatch(ctx, cfg)
		},
	})

	return srv.Start()
}
