package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/clasper-run/clasper/internal/config"
	"github.com/clasper-run/clasper/internal/httpapi"
	"github.com/urfave/cli/v3"
)

// serveCommand starts the HTTP control plane, mirroring cmd/mpe serve's
// signal-driven graceful shutdown.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Runs the governance control plane HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "TCP port to listen on (overrides CLASPER_PORT)"},
		},
		Action: executeServe,
	}
}

func executeServe(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	port := cmd.Int("port")
	if port == 0 {
		port = config.VConfig.GetInt(config.Port)
	}

	server := httpapi.NewServer(a.tokens, a.registry, a.policies, a.ledger, a.ingest, a.chain, httpConfig())
	server.Start(port)
	logger.Info("serve", "start", "control plane listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info("serve", "shutdown", "shutting down server...")

	if err := server.Stop(ctx); err != nil {
		return err
	}
	logger.Info("serve", "shutdown", "server exited gracefully")
	return nil
}
