package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"platescan/internal/history"
	"platescan/internal/logging"
	"platescan/internal/metrics"
	"platescan/internal/server"
	"platescan/internal/services"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.loggerFor(true)
			if err != nil {
				return err
			}
			m := metrics.New()
			scanner, store, err := ctx.newScanner(logger, m)
			if err != nil {
				return err
			}
			if bind == "" {
				bind = cfg.Paths.APIBind
			}
			if cfg.APIKey() == "" {
				logging.WarnWithContext(logger, "gemini api key is not configured", "config_warning",
					logging.String(logging.FieldErrorHint, "set gemini.api_key or GEMINI_API_KEY"),
					logging.String(logging.FieldImpact, "scan requests will fail with 503"),
				)
			}

			srv, err := server.New(server.Options{
				Bind:     bind,
				Token:    cfg.Paths.APIToken,
				LockPath: cfg.ServerLockPath(),
				Scanner:  scanner,
				History:  &recordingHistory{Store: store, metrics: m},
				Metrics:  m,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			logger.Info("starting platescan api",
				logging.String("bind", bind),
				logging.String("config", ctx.configPath),
				logging.String("history", store.Path()),
				logging.String("backend", cfg.Gemini.Backend),
			)
			err = srv.Run(services.WithSource(cmd.Context(), "api"))
			if errors.Is(err, server.ErrAlreadyRunning) {
				return errors.New("another platescan server is already using " + cfg.Paths.DataDir)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.api_bind)")
	return cmd
}

// recordingHistory counts API-driven deletes and clears.
type recordingHistory struct {
	*history.Store
	metrics *metrics.Metrics
}

func (h *recordingHistory) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := h.Store.Delete(ctx, id)
	if err == nil && removed {
		h.metrics.HistoryWrite("delete")
	}
	return removed, err
}

func (h *recordingHistory) Clear(ctx context.Context) error {
	if err := h.Store.Clear(ctx); err != nil {
		return err
	}
	h.metrics.HistoryWrite("clear")
	return nil
}
