package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/activation"
	"github.com/straja-ai/tonegate/internal/logging"
)

var receiverAddr string

var receiverCmd = &cobra.Command{
	Use:   "decision-receiver",
	Short: "Run a webhook endpoint that logs decision events",
	Long:  `Run a small HTTP server that accepts decision events from the webhook activation sink and logs them. Useful for local development.`,
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

		srv := &http.Server{
			Addr:              receiverAddr,
			Handler:           decisionReceiver(logger),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()

		logger.Info("decision receiver listening", zap.String("addr", receiverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	receiverCmd.Flags().StringVar(&receiverAddr, "addr", ":8099", "Listen address")
}

func decisionReceiver(logger *zap.Logger) http.Handler {
	mux := chi.NewRouter()
	handle := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}
		var ev activation.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Warn("undecodable decision event", zap.Int("len", len(body)), zap.Error(err))
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}
		logger.Info("received decision event",
			zap.String("request_id", ev.RequestID),
			zap.String("decision", string(ev.Decision)),
			zap.String("persona", ev.Persona),
			zap.String("strategy", ev.Strategy),
			zap.Int("status", ev.Status),
			zap.Bool("inference_called", ev.InferenceCalled),
			zap.Float64("total_ms", ev.TimingMs.Total),
		)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`+"\n")
	}
	mux.Post("/activation", handle)
	mux.Post("/", handle)
	return mux
}
