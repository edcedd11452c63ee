package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("FAL_API_KEY", "fal-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.APIPort != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.APIPort)
	}
	if cfg.FalModel != "fal-ai/wan/v2.2-14b/animate/move" {
		t.Errorf("unexpected default model: %s", cfg.FalModel)
	}
	if cfg.UploadThresholdBytes != 90*1024*1024 {
		t.Errorf("unexpected default threshold: %d", cfg.UploadThresholdBytes)
	}
	if cfg.MaxUploadSizeBytes != 500*1024*1024 {
		t.Errorf("unexpected default upload cap: %d", cfg.MaxUploadSizeBytes)
	}
	if cfg.FalPollInterval != 3*time.Second {
		t.Errorf("unexpected default poll interval: %v", cfg.FalPollInterval)
	}
	if cfg.FalPollTimeout != 10*time.Minute {
		t.Errorf("unexpected default poll timeout: %v", cfg.FalPollTimeout)
	}
	if cfg.MaxConcurrentClips != 1 {
		t.Errorf("clip concurrency should default to sequential, got %d", cfg.MaxConcurrentClips)
	}
	if cfg.OpenAIEnabled || cfg.VeoEnabled {
		t.Error("optional services should default to disabled")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	cases := []string{"DATABASE_URL", "FAL_API_KEY", "GEMINI_API_KEY"}

	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")

			if _, err := Load(); err == nil {
				t.Errorf("expected error when %s is missing", missing)
			}
		})
	}
}

func TestLoadOpenAIRequiresKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OPENAI_ENABLED", "true")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when OPENAI_ENABLED without key")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("UPLOAD_THRESHOLD_BYTES", "1048576")
	t.Setenv("FAL_POLL_INTERVAL", "500ms")
	t.Setenv("MAX_CONCURRENT_CLIPS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.UploadThresholdBytes != 1048576 {
		t.Errorf("threshold override ignored: %d", cfg.UploadThresholdBytes)
	}
	if cfg.FalPollInterval != 500*time.Millisecond {
		t.Errorf("poll interval override ignored: %v", cfg.FalPollInterval)
	}
	if cfg.MaxConcurrentClips != 3 {
		t.Errorf("clip concurrency override ignored: %d", cfg.MaxConcurrentClips)
	}
}

func TestLoadRejectsNonPositiveThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("UPLOAD_THRESHOLD_BYTES", "-1")

	if _, err := Load(); err == nil {
		t.Error("expected error for negative threshold")
	}
}
