package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/events"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/router"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the polling API and live leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if cfg.AdminKeySalt == "" {
			return errors.New("admin key salt required (use --admin-salt or ADMIN_KEY_SALT env)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg cliparse.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewPrometheus(reg, "livepoll")

	st, conn, err := openStore(ctx, cfg, logger, rec)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("Database schema ready")

	nc, closeNATS, err := connectNATS(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNATS()

	voteLog, err := events.NewJetStreamLog(ctx, nc, events.DefaultJetStreamConfig(), logger.With("component", "events"))
	if err != nil {
		return err
	}

	eng := engine.New(st, voteLog, engine.Config{
		LeaderboardTTL: cfg.LeaderboardTTL,
		Logger:         logger,
		Metrics:        rec,
	})
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("engine start failed: %w", err)
	}

	server := &http.Server{
		Handler:           middleware.CORS(router.NewRouter(eng, cfg, logger, reg)),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "port", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	// Closes the websocket connections the HTTP server no longer tracks.
	if stopErr := eng.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("Engine shutdown incomplete", "error", stopErr)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Server closed")

	return nil
}

// connectNATS dials the configured server, or starts an embedded one. The
// returned func closes the connection and any embedded server.
func connectNATS(cfg cliparse.Config, logger *slog.Logger) (*nats.Conn, func(), error) {
	url := cfg.NATSURL
	shutdown := func() {}

	if cfg.NATSEmbedded {
		ns, err := events.StartEmbeddedServer(filepath.Join(os.TempDir(), "livepoll-nats"), -1)
		if err != nil {
			return nil, nil, err
		}
		url = ns.ClientURL()
		shutdown = func() {
			ns.Shutdown()
			ns.WaitForShutdown()
		}
		logger.Info("Embedded NATS server started", "url", url)
	}
	if url == "" {
		return nil, nil, errors.New("NATS URL required (use --nats-url, NATS_URL env or --nats-embedded)")
	}

	nc, err := nats.Connect(url,
		nats.Name("livepoll"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("NATS connection failed: %w", err)
	}

	return nc, func() {
		nc.Close()
		shutdown()
	}, nil
}
