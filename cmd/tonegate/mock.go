package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/logging"
	"github.com/straja-ai/tonegate/internal/mockprovider"
)

var (
	mockAddr      string
	mockDelay     time.Duration
	mockPlan      string
	mockLimit     int64
	mockMalformed bool
)

var mockCmd = &cobra.Command{
	Use:   "mock-upstreams",
	Short: "Run a local entitlement service and OpenAI-compatible backend",
	Long: `Run mock upstreams for local development and load tests.

The same listener serves POST /internal/validate-usage and
POST /v1/chat/completions. The bearer token steers the entitlement answer:
"denied" yields 403, "quota" yields 429 and "plan:<NAME>" reports that plan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if level == "" {
			level = "info"
		}
		logger, err := logging.New(level, "console")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		u, err := mockprovider.Start(mockprovider.Options{
			Addr:      mockAddr,
			Delay:     mockDelay,
			Plan:      mockPlan,
			Limit:     mockLimit,
			Malformed: mockMalformed,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("mock upstreams stopping", zap.Int64("checks_served", u.Used()))
		return u.Shutdown(shutdownCtx)
	},
}

func init() {
	mockCmd.Flags().StringVar(&mockAddr, "addr", "", "Listen address (default 127.0.0.1:$MOCK_PROVIDER_PORT or 127.0.0.1:18080)")
	mockCmd.Flags().DurationVar(&mockDelay, "delay", 0, "Artificial inference latency (default $MOCK_DELAY_MS)")
	mockCmd.Flags().StringVar(&mockPlan, "plan", "", "Plan reported for tokens that do not name one (default TRIAL)")
	mockCmd.Flags().Int64Var(&mockLimit, "limit", 0, "Allowed checks before answering 429 (default 100)")
	mockCmd.Flags().BoolVar(&mockMalformed, "malformed", false, "Return rewrites without a suggestion field")
}
