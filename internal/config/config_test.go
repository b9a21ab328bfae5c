package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"S3_UPLOAD_BUCKET_NAME", "DYNAMODB_NAME", "PARQUET_QUEUE_URL",
		"PARQ_LLM_PROVIDER", "PARQ_LLM_MODEL", "PARQ_BAD_ROW_POLICY",
		"PARQ_MAX_BAD_ROWS", "PARQ_LOG_LEVEL", "PARQ_LOG_FILE",
		"PARQ_CONFIG_FILE", "PARQ_QUERY_TIMEOUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BadRowPolicy != PolicyCoerceNull {
		t.Errorf("default policy = %q, want coerce-null", cfg.BadRowPolicy)
	}
	if cfg.ChannelCap != 8 {
		t.Errorf("channel cap = %d", cfg.ChannelCap)
	}
	if cfg.ChunkBytes != 512*1024*1024 {
		t.Errorf("chunk bytes = %d", cfg.ChunkBytes)
	}
	if cfg.MaxRecordBytes != 16*1024*1024 {
		t.Errorf("max record bytes = %d", cfg.MaxRecordBytes)
	}
	if cfg.QueryTimeout != 30*time.Second {
		t.Errorf("query timeout = %s", cfg.QueryTimeout)
	}
	if cfg.MaxRowsOut != 10_000 || cfg.RenderRowCap != 200 || cfg.SQLRetries != 2 {
		t.Errorf("query caps = %d/%d/%d", cfg.MaxRowsOut, cfg.RenderRowCap, cfg.SQLRetries)
	}
	if cfg.LLMProvider != ProviderBedrock {
		t.Errorf("provider = %q", cfg.LLMProvider)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_UPLOAD_BUCKET_NAME", "my-bucket")
	t.Setenv("PARQ_BAD_ROW_POLICY", "strict")
	t.Setenv("PARQ_MAX_BAD_ROWS", "0")
	t.Setenv("PARQ_QUERY_TIMEOUT", "10s")
	t.Setenv("PARQ_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BucketName != "my-bucket" {
		t.Errorf("bucket = %q", cfg.BucketName)
	}
	if cfg.BadRowPolicy != PolicyStrict || cfg.MaxBadRows != 0 {
		t.Errorf("policy = %q budget %d", cfg.BadRowPolicy, cfg.MaxBadRows)
	}
	if cfg.QueryTimeout != 10*time.Second {
		t.Errorf("timeout = %s", cfg.QueryTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("level = %v", cfg.LogLevel)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARQ_BAD_ROW_POLICY", "yolo")
	if _, err := Load(); err == nil {
		t.Error("unknown policy must fail")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_UPLOAD_BUCKET_NAME", "env-bucket")

	path := filepath.Join(t.TempDir(), "parq.yaml")
	overlay := "bucket: file-bucket\nbad_row_policy: strict\nmax_bad_rows: 3\nllm_provider: ollama\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARQ_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BucketName != "file-bucket" {
		t.Errorf("bucket = %q, file must win over env", cfg.BucketName)
	}
	if cfg.BadRowPolicy != PolicyStrict || cfg.MaxBadRows != 3 {
		t.Errorf("policy = %q budget %d", cfg.BadRowPolicy, cfg.MaxBadRows)
	}
	if cfg.LLMProvider != ProviderOllama {
		t.Errorf("provider = %q", cfg.LLMProvider)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
