package main

import (
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/origin"
)

const (
	largeMessageBytes = 16 << 20
	shortIdleTimeout  = 30 * time.Second
	// Four characters from A-Z0-9 is about 1.7M codes; anyone holding a code
	// can join its room.
	guessableCodeLength = 4
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Mode == config.ModeProd && slices.Contains(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin) while --mode=prod",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxMessagesPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_MESSAGES_PER_SECOND is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_messages_per_second_unlimited_in_prod",
			"max_messages_per_second", cfg.MaxMessagesPerSecond,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.RoomCodeLength <= guessableCodeLength {
		logger.Warn("startup security warning: ROOM_CODE_LENGTH is short while --mode=prod (room codes are the only access control)",
			"warning_code", "room_code_length_short_in_prod",
			"room_code_length", cfg.RoomCodeLength,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxMessageBytes > largeMessageBytes {
		logger.Warn("startup security warning: MAX_MESSAGE_BYTES is very large (every relayed frame is buffered in memory)",
			"warning_code", "max_message_bytes_large",
			"max_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.RoomIdleTimeout > 0 && cfg.RoomIdleTimeout < shortIdleTimeout {
		logger.Warn("startup warning: ROOM_IDLE_TIMEOUT is short (idle browsers may be disconnected mid-transfer)",
			"warning_code", "room_idle_timeout_short",
			"room_idle_timeout", cfg.RoomIdleTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && strings.EqualFold(urlScheme(cfg.PublicBaseURL), "http") {
		logger.Warn("startup security warning: PUBLIC_BASE_URL is plain http while --mode=prod (signaling traffic is unencrypted)",
			"warning_code", "public_base_url_insecure_in_prod",
			"public_base_url_host", safeURLHost(cfg.PublicBaseURL),
			"mode", cfg.Mode,
		)
	}
}

func urlScheme(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Scheme
}

func safeURLHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Host
}
