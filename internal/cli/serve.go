package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/cache"
	"github.com/adflow/adflow/internal/server"
	"github.com/adflow/adflow/internal/session"
	"github.com/adflow/adflow/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the adflow HTTP server.

The server provides:
  - Flow session endpoints for embedding sites (/api/flow/...)
  - Admin experiment endpoints (/api/experiments, token protected)
  - Health check endpoint

Flow state is cached in Redis when redis.addr is configured.

Example:
  adflow serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				exps, err := a.experimentService(s)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				var states session.StateRepository = s
				if rc := a.cfg.Redis; rc.Enabled() {
					client := redis.NewClient(&redis.Options{
						Addr:     rc.Addr,
						Password: rc.Password,
						DB:       rc.DB,
					})
					defer client.Close()
					if err := client.Ping(ctx).Err(); err != nil {
						return fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
					}
					states = cache.NewFlowSessionCache(client, s, rc.StateTTL, a.logger)
					a.logger.Info("flow state cache enabled", "addr", rc.Addr, "ttl", rc.StateTTL)
				}

				sessions := session.NewService(s, states, exps, a.logger)
				srv := server.New(s, exps, sessions, server.Options{
					Port:      a.cfg.Server.Port,
					Token:     a.cfg.Server.AdminToken,
					TokenFile: a.tokenFilePath(),
					Logger:    a.logger,
				})
				return srv.Start(ctx)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides config)")
	return cmd
}
