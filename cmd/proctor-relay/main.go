package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/vigilexam/proctor-relay/internal/camera"
	"github.com/vigilexam/proctor-relay/internal/config"
	"github.com/vigilexam/proctor-relay/internal/httpserver"
	"github.com/vigilexam/proctor-relay/internal/ingest"
	"github.com/vigilexam/proctor-relay/internal/metrics"
	"github.com/vigilexam/proctor-relay/internal/ratelimit"
	"github.com/vigilexam/proctor-relay/internal/signaling"
	"github.com/vigilexam/proctor-relay/internal/sweep"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting proctor-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"connection_idle_ttl", cfg.ConnectionIdleTTL,
		"frame_max_age", cfg.FrameMaxAge,
		"rate_limit_max_tokens", cfg.RateLimitMaxTokens,
		"rate_limit_grace_requests", cfg.RateLimitGraceRequests,
		"ice_servers", len(cfg.ICEServers),
	)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)

	m := metrics.New()
	registry := camera.NewConnectionRegistry(camera.RealClock{}, cfg.ConnectionIdleTTL)
	frames := camera.NewFrameStore(camera.RealClock{}, cfg.FrameMaxAge)
	limiter := ratelimit.NewSessionLimiter(ratelimit.RealClock{}, ratelimit.Limits{
		MaxTokens:       cfg.RateLimitMaxTokens,
		RefillPerSecond: cfg.RateLimitRefillPerSecond,
		GraceRequests:   cfg.RateLimitGraceRequests,
		StaleAfter:      cfg.RateLimitStateStaleTTL,
	})

	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	ingestHandler := ingest.NewHandler(logger, limiter, registry, frames, m)
	ingestHandler.RegisterRoutes(srv.Mux())

	relay := signaling.NewServer(logger, m, signaling.Config{
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
	})
	relay.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	// Three independent sweeps with independent cadences. The signaling relay
	// has no sweep; it self-cleans when connections close.
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go sweep.Run(sweepCtx, logger, "connections", cfg.ConnectionSweepInterval, func(now time.Time) {
		if removed := registry.EvictStale(now); removed > 0 {
			m.Add(metrics.EventConnectionsEvicted, uint64(removed))
			logger.Debug("evicted idle camera connections", "removed", removed)
		}
	})
	go sweep.Run(sweepCtx, logger, "frames", cfg.FrameSweepInterval, func(now time.Time) {
		if removed := frames.EvictStale(now); removed > 0 {
			m.Add(metrics.EventFramesEvicted, uint64(removed))
			logger.Debug("evicted stale frames", "removed", removed)
		}
	})
	go sweep.Run(sweepCtx, logger, "ratelimit", cfg.RateLimitSweepInterval, func(now time.Time) {
		if removed := limiter.Sweep(now); removed > 0 {
			m.Add(metrics.EventLimiterStatesEvicted, uint64(removed))
			logger.Debug("evicted stale limiter state", "removed", removed)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	stopSweeps()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
