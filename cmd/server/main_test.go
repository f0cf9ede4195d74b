package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "TESTINTEL_DATABASE_URL", "TESTINTEL_SQLITE_PATH", "TESTINTEL_CONFIG", "NEO4J_URI", "OTEL_EXPORTER_OTLP_ENDPOINT", "TESTINTEL_PORT", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"migrate without postgres", []string{"-migrate"}, "DATABASE_URL is required for -migrate"},
		{"invalid port", []string{"-port", "http"}, `invalid port "http"`},
		{"unknown flag", []string{"-verbose"}, "flag provided but not defined"},
		{"missing config file", []string{"-config", "does-not-exist.yaml"}, "failed to load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			err := run(context.Background(), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_StopsWhenContextIsCancelled(t *testing.T) {
	clearEnv(t)
	t.Setenv("TESTINTEL_SQLITE_PATH", filepath.Join(t.TempDir(), "server.db"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-port", "0"}) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}
