// Package main provides the relearn command line entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relearn",
	Short: "Resurface saved images into Slack",
	Long:  "Relearn samples unprocessed images from a Google Drive folder, shares them into Slack with link previews, optionally extracts their text with Gemini OCR, and archives them to the saved folder.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
