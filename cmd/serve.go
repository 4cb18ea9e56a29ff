package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/constants"
	"github.com/kozaktomas/photo-groups/internal/trash"
	"github.com/kozaktomas/photo-groups/internal/web"
	"github.com/kozaktomas/photo-groups/internal/web/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photo Groups API server.
The server exposes the similar-groups and trash endpoints and purges
expired trash in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-purge", false, "Disable the background trash purge")
}

// applyServeFlags lets command line flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	if cfg.Web.TokenSecret == "" {
		return errors.New("WEB_TOKEN_SECRET environment variable is required")
	}
	signer, err := middleware.NewTokenSigner(cfg.Web.TokenSecret)
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setupApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := web.NewServer(cfg, a.service, a.images, signer, a.pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if !mustGetBool(cmd, "no-purge") {
		purger := trash.NewPurger(a.images, cfg.Trash.Retention)
		g.Go(func() error {
			return purger.Run(gctx, cfg.Trash.PurgeInterval)
		})
	}

	log.Info().Str("host", cfg.Web.Host).Int("port", cfg.Web.Port).Msg("Photo Groups API started, press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	log.Info().Msg("Shut down cleanly")
	return nil
}
