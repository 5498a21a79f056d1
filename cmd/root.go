// Package cmd defines the prodrefs command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/app"
	"github.com/JakeFAU/prodrefs/internal/config"
	"github.com/JakeFAU/prodrefs/internal/logging"
	"github.com/JakeFAU/prodrefs/internal/pipeline"
)

// envKeyType keys the command environment stored in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what PersistentPreRunE prepares for subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// Runner is the part of app.App the run command drives. Tests swap in fakes.
type Runner interface {
	Run(ctx context.Context, keywords []string) (pipeline.Report, error)
	Close()
}

// newRunner is the application factory, replaceable in tests.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "prodrefs",
		Short: "Collect product reference rows from Tokopedia search results.",
		Long: `prodrefs searches Tokopedia for each keyword, reads the best matching
product pages, downloads their images and exports one row per product.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./prodrefs.yaml or $HOME/.prodrefs/prodrefs.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newKeywordsCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
