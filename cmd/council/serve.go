package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/health"
	"github.com/guilhermeleaosoares/llm-council/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Starts the council HTTP API and, when COUNCIL_HEALTH_URL is set, the heartbeat monitor that wipes credentials if the backend restarts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides COUNCIL_PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg, server.Deps{
		Store:   a.store,
		Turns:   a.service,
		Models:  a.registry,
		Gateway: a.client,
		Voter:   a.voter,
		Search:  a.searcher,
	})

	monitor := health.NewMonitor(cfg.HealthURL, cfg.HealthInterval, nil, a.registry)
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Router(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting LLM Council backend on port %d (run %s)...", cfg.Port, srv.RunID())
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
