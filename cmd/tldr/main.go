// Package main is the entry point for the tldr uploader server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd is the base command for the tldr CLI.
var rootCmd = &cobra.Command{
	Use:   "tldr",
	Short: "PDF summarizing uploader",
	Long: `tldr serves a single page where a PDF can be chosen and sent to a
summarization endpoint; the returned summary is shown on the page.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables take precedence.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
