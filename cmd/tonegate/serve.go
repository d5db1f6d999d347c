package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/config"
	"github.com/straja-ai/tonegate/internal/logging"
)

var (
	serveAddr     string
	serveStrategy string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rewrite gateway",
	Long: `Run the HTTP gateway.

The entitlement service URL is read from entitlement.base_url or from the
environment variable named by entitlement.base_url_env (AUTH_API_URL by
default). PORT overrides the listen port when --addr is not given.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveStrategy, "strategy", "", "Dispatch strategy: concurrent or sequential (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath, func(c *config.Config) {
		if serveAddr != "" {
			c.Server.Addr = serveAddr
		}
		if serveStrategy != "" {
			c.Gate.Strategy = serveStrategy
		}
	})
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.close(flushCtx)
	}()

	logger.Info("starting tonegate",
		zap.String("version", version),
		zap.String("strategy", string(a.gate.Strategy())),
		zap.String("provider", cfg.Inference.Provider),
		zap.String("default_persona", a.gate.Personas().DefaultID()),
		zap.Int("activation_sinks", len(cfg.Activation.Sinks)),
	)
	return a.server.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
}
