package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	betLogger := WithBetID(WithJackpotID(logger, "jp-1"), "bet-1")
	betLogger.Info().Msg("hello")
	logger.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["jackpot_id"] != "jp-1" || entry["bet_id"] != "bet-1" || entry["message"] != "hello" {
		t.Errorf("unexpected entry %v", entry)
	}
	if caller, _ := entry["caller"].(string); !strings.HasPrefix(caller, "logging/logger_test.go:") {
		t.Errorf("caller = %q", caller)
	}
}

func TestTraceIDContext(t *testing.T) {
	ctx := context.Background()
	if got := TraceIDFromContext(ctx); got != "" {
		t.Errorf("TraceIDFromContext(empty) = %q", got)
	}
	if ContextWithTraceID(ctx, "") != ctx {
		t.Error("empty trace id should not wrap the context")
	}
	if got := TraceIDFromContext(ContextWithTraceID(ctx, "t-1")); got != "t-1" {
		t.Errorf("TraceIDFromContext = %q, want t-1", got)
	}
}

func TestFromContext(t *testing.T) {
	var attached, fallback bytes.Buffer
	fb := zerolog.New(&fallback)

	log := FromContext(context.Background(), fb)
	log.Info().Msg("fallback")
	if fallback.Len() == 0 {
		t.Error("expected fallback logger without an attached one")
	}

	ctx := zerolog.New(&attached).WithContext(context.Background())
	log = FromContext(ctx, fb)
	log.Info().Msg("attached")
	if !strings.Contains(attached.String(), "attached") {
		t.Errorf("expected attached logger to be used, got %q", attached.String())
	}
}
