package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER_NAME", "harvester")
	t.Setenv("DB_NAME", "exams")
	t.Setenv("DO_SPACES_ACCESS_KEY", "key")
	t.Setenv("DO_SPACES_SECRET_KEY", "secret")
	t.Setenv("DO_SPACES_BUCKET", "exam-pdfs")
	t.Setenv("DO_SPACES_REGION", "nyc3")
	t.Setenv("MODEL_ACCESS_KEY", "model-key")
	t.Setenv("SYSTEM_USER_ID_FOR_QUESTIONS", "6f1c9a7e-2b9d-4c51-9a0e-1f3e5d7c9b11")
}

func TestGetDefaults(t *testing.T) {
	setRequiredEnv(t)

	env, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if env.HARVEST_WORKERS != 80 {
		t.Errorf("HARVEST_WORKERS = %d, want 80", env.HARVEST_WORKERS)
	}
	if env.HARVEST_WINDOW_SIZE != 10 {
		t.Errorf("HARVEST_WINDOW_SIZE = %d, want 10", env.HARVEST_WINDOW_SIZE)
	}
	if env.HARVEST_WINDOW_PAUSE != 3*time.Second {
		t.Errorf("HARVEST_WINDOW_PAUSE = %v, want 3s", env.HARVEST_WINDOW_PAUSE)
	}
	if !env.HARVEST_KEEP_PARTIAL {
		t.Error("HARVEST_KEEP_PARTIAL should default to true")
	}
	if env.DO_SPACES_ENDPOINT != "nyc3.digitaloceanspaces.com" {
		t.Errorf("DO_SPACES_ENDPOINT = %q", env.DO_SPACES_ENDPOINT)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestGetParsesOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HARVEST_WORKERS", "8")
	t.Setenv("HARVEST_WINDOW_PAUSE", "500ms")
	t.Setenv("HARVEST_KEEP_PARTIAL", "false")

	env, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if env.HARVEST_WORKERS != 8 {
		t.Errorf("HARVEST_WORKERS = %d, want 8", env.HARVEST_WORKERS)
	}
	if env.HARVEST_WINDOW_PAUSE != 500*time.Millisecond {
		t.Errorf("HARVEST_WINDOW_PAUSE = %v, want 500ms", env.HARVEST_WINDOW_PAUSE)
	}
	if env.HARVEST_KEEP_PARTIAL {
		t.Error("HARVEST_KEEP_PARTIAL should be false")
	}
}

func TestGetRejectsMalformedNumber(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HARVEST_WORKERS", "eighty")

	if _, err := Get(); err == nil {
		t.Fatal("expected error for non-numeric HARVEST_WORKERS")
	}
}

func TestValidateReportsAllMissing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MODEL_ACCESS_KEY", "")
	t.Setenv("DO_SPACES_BUCKET", "")
	t.Setenv("SYSTEM_USER_ID_FOR_QUESTIONS", "not-a-uuid")

	env, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	err = env.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"MODEL_ACCESS_KEY is required", "DO_SPACES_BUCKET is required", "SYSTEM_USER_ID_FOR_QUESTIONS must be a UUID"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}
