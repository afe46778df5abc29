package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/diagno/callsignal/internal/server"
	"github.com/diagno/callsignal/internal/signaling"
	"github.com/diagno/callsignal/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the signaling server.

Examples:
  callsignal serve
  callsignal serve --bind :9000 --allowed-origins https://app.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("bind", "", "address to listen on")
	flags.StringSlice("allowed-origins", nil, "origins allowed to connect (* for any)")
	flags.String("stats-schedule", "", "cron spec for the periodic stats log, empty to disable")

	mustBind("bind", flags.Lookup("bind"))
	mustBind("allowed_origins", flags.Lookup("allowed-origins"))
	mustBind("stats.schedule", flags.Lookup("stats-schedule"))

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	hub := signaling.NewHub()

	srv := &http.Server{
		Addr:              cfg.Bind,
		Handler:           server.NewRouter(hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Stats.Schedule != "" {
		quartz, err := server.NewStatsReporter(hub, cfg.Stats.Schedule)
		if err != nil {
			return err
		}
		quartz.Start()
		defer quartz.Stop()
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("bind", cfg.Bind).Msgf("Signaling server v%s is started...", version.Version)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msgf("Signaling server v%s is quitting...", version.Version)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by the http server.
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
