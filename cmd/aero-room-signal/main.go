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

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/room"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/roomcode"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/signaling"
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

	logger.Info("starting aero-room-signal",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"room_idle_timeout", cfg.RoomIdleTimeout,
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
		"room_code_length", cfg.RoomCodeLength,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)
	if err := cfg.ICEConfigError(); err != nil {
		logger.Error("invalid ICE server configuration; /readyz will report unready", "err", err)
	}

	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, buildTime := resolveBuildInfo(buildCommit, buildTime)

	srv, sig, err := newServers(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: buildTime})
	if err != nil {
		logger.Error("failed to configure signaling", "err", err)
		os.Exit(2)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
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
	// Hijacked WebSocket connections survive Shutdown; close them explicitly so
	// every session runs its cleanup.
	sig.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

// newServers builds the process-wide room registry and wires the HTTP and
// signaling servers around it.
func newServers(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*httpserver.Server, *signaling.Server, error) {
	m := metrics.New()
	rooms := room.NewRegistry[signaling.Conn]()

	codes, err := roomcode.New(roomcode.Config{
		Length: cfg.RoomCodeLength,
		InUse:  rooms.Exists,
	})
	if err != nil {
		return nil, nil, err
	}

	srv := httpserver.New(cfg, logger, build, m)
	sig, err := signaling.NewServer(signaling.Config{
		Rooms:                rooms,
		Codes:                codes,
		Logger:               logger,
		Metrics:              m,
		Origins:              srv.Origins(),
		IdleTimeout:          cfg.RoomIdleTimeout,
		WriteWait:            cfg.WSWriteWait,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	})
	if err != nil {
		return nil, nil, err
	}
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters and room gauges in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, rooms))

	return srv, sig, nil
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
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
