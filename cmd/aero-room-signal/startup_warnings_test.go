package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	cp := &recordingHandler{
		mu:      h.mu,
		records: h.records,
	}
	if len(h.attrs) > 0 {
		cp.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		cp.groups = append([]string(nil), h.groups...)
	}
	return cp
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

func warningCodes(records []recordedLog) map[string]recordedLog {
	out := make(map[string]recordedLog)
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = r
		}
	}
	return out
}

func TestStartupSecurityWarnings_DevDefaultsAreQuiet(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:            config.ModeDev,
		RoomIdleTimeout: config.DefaultRoomIdleTimeout,
		MaxMessageBytes: config.DefaultMaxMessageBytes,
		RoomCodeLength:  config.DefaultRoomCodeLength,
	})

	if got := warningCodes(records()); len(got) != 0 {
		t.Fatalf("unexpected warnings: %#v", got)
	}
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:           config.ModeProd,
		AllowedOrigins: []string{"*"},
		RoomCodeLength: 8,
	})

	if _, ok := warningCodes(records())["allowed_origins_wildcard"]; !ok {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}

	// The dev default is "*"; it is not worth a warning there.
	devLogger, devRecords := newRecordingLogger()
	logStartupSecurityWarnings(devLogger, config.Config{
		Mode:           config.ModeDev,
		AllowedOrigins: []string{"*"},
	})
	if got := warningCodes(devRecords()); len(got) != 0 {
		t.Fatalf("unexpected dev warnings: %#v", got)
	}
}

func TestStartupSecurityWarnings_ProdHardening(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                 config.ModeProd,
		PublicBaseURL:        "http://signal.example.com",
		RoomIdleTimeout:      5 * time.Second,
		MaxMessageBytes:      64 << 20,
		MaxMessagesPerSecond: 0,
		RoomCodeLength:       4,
	}
	logStartupSecurityWarnings(logger, cfg)

	got := warningCodes(records())
	for _, code := range []string{
		"max_messages_per_second_unlimited_in_prod",
		"room_code_length_short_in_prod",
		"max_message_bytes_large",
		"room_idle_timeout_short",
		"public_base_url_insecure_in_prod",
	} {
		if _, ok := got[code]; !ok {
			t.Fatalf("missing warning_code=%s, got %#v", code, records())
		}
	}
	if host := got["public_base_url_insecure_in_prod"].attrs["public_base_url_host"]; host != "signal.example.com" {
		t.Fatalf("public_base_url_host=%#v, want signal.example.com", host)
	}
	if n := got["room_code_length_short_in_prod"].attrs["room_code_length"]; n != int64(4) {
		t.Fatalf("room_code_length attr=%#v, want 4", n)
	}
}
