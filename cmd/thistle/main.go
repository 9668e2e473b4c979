package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ramsey-B/thistle/config"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/startup"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "thistle",
		Short:         "Identity resolution and message timeline service for case evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(envFiles)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	})

	root.AddCommand(newPresenceCmd(&envFiles))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.AppName, cfg.Version)
			return nil
		},
	})

	return root
}

func setup(envFiles []string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	tracingDep := &tracingDependency{cfg: cfg}
	start.AddDependency(tracingDep)

	var kafkaDep *kafkaDependency
	if cfg.KafkaEnabled() {
		kafkaDep = &kafkaDependency{cfg: cfg, logger: logger}
		start.AddDependency(kafkaDep)
	}

	workspaceDep := &workspaceDependency{cfg: cfg, logger: logger, kafka: kafkaDep}
	start.AddDependency(workspaceDep)

	server := &serverDependency{cfg: cfg, logger: logger, workspace: workspaceDep}
	start.AddDependency(server)

	if err := start.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case serveErr = <-server.errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := start.Stop(shutdownCtx); err != nil {
		return err
	}
	return serveErr
}
