package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/api"
	"github.com/sells-group/gdivir/internal/version"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve mappings and version lookups over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		handler := api.New(e.resolver, version.NewTracker(e.store, e.store), e.store)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: handler.Router(api.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				RateLimit:      cfg.Server.RateLimit,
				Burst:          cfg.Server.Burst,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
