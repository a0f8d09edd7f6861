// Command facectl is the operator CLI: it runs the head-locator cascade on
// local files, mints API tokens and pushes frame jobs onto the shared queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"facechanger/internal/config"
)

// Version is the CLI version.
const Version = "0.1.0"

var (
	cfg     config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "facectl",
	Short:         "Operator tooling for the head-swap render pipeline",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetOutput(os.Stderr)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		var err error
		cfg, err = config.ParseConfig()
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.AddCommand(maskCmd, tokenCmd, enqueueCmd)
}
