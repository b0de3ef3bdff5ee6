package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"whisper.bot/internal/api"
	"whisper.bot/internal/reveal"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway the bot talks to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("store initialisation failed")
				return err
			}
			defer st.Close()

			engine := reveal.NewEngine(st, logger)
			router := api.SetupRouter(st, engine, cfg, logger)

			srv := &http.Server{
				Addr:         cfg.Addr(),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info().
					Str("addr", cfg.Addr()).
					Str("store", cfg.Store.Type).
					Bool("saved_messages", cfg.SavedMessages.Enabled).
					Msg("starting whisper gateway")

				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errc:
				logger.Error().Err(err).Msg("server failed to start")
				return err
			case <-quit:
			}

			logger.Info().Msg("shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server forced to shutdown")
				return err
			}

			logger.Info().Msg("server stopped")
			return nil
		},
	}
}
