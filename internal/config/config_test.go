package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("FACEGATE_ADDR")
	os.Unsetenv("CAMERA_SOURCE")
	os.Unsetenv("EMBEDDING_DIM")
	os.Unsetenv("RECOGNITION_THRESHOLD")
	os.Unsetenv("RECOGNITION_INTERVAL")
	os.Unsetenv("FACEGATE_DATA_DIR")
	os.Unsetenv("CLASSIFIER_MODEL_PATH")

	cfg := Load()

	if cfg.Server.Addr != ":8090" {
		t.Errorf("expected default addr ':8090', got '%s'", cfg.Server.Addr)
	}
	if cfg.Camera.Source != "v4l2:/dev/video0" {
		t.Errorf("expected default camera source 'v4l2:/dev/video0', got '%s'", cfg.Camera.Source)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected default embedding dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Recognition.Threshold != 0.8 {
		t.Errorf("expected default threshold 0.8, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.Interval != time.Second {
		t.Errorf("expected default interval 1s, got %s", cfg.Recognition.Interval)
	}
	if !cfg.Recognition.AllowFallback {
		t.Error("expected fallback to be enabled by default")
	}
}

func TestLoad_ClassifierPathDerivedFromDataDir(t *testing.T) {
	t.Setenv("FACEGATE_DATA_DIR", "/var/lib/facegate")
	os.Unsetenv("CLASSIFIER_MODEL_PATH")

	cfg := Load()

	want := filepath.Join("/var/lib/facegate", "classifier.json")
	if cfg.Storage.ClassifierPath != want {
		t.Errorf("expected classifier path '%s', got '%s'", want, cfg.Storage.ClassifierPath)
	}
}

func TestLoad_ExplicitClassifierPathWins(t *testing.T) {
	t.Setenv("FACEGATE_DATA_DIR", "/var/lib/facegate")
	t.Setenv("CLASSIFIER_MODEL_PATH", "/opt/models/faces.json")

	cfg := Load()

	if cfg.Storage.ClassifierPath != "/opt/models/faces.json" {
		t.Errorf("expected explicit classifier path to win, got '%s'", cfg.Storage.ClassifierPath)
	}
}

func TestLoad_CustomThreshold(t *testing.T) {
	t.Setenv("RECOGNITION_THRESHOLD", "0.55")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.55 {
		t.Errorf("expected threshold 0.55, got %f", cfg.Recognition.Threshold)
	}
}

func TestLoad_InvalidThresholdFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "strict"},
		{"zero", "0"},
		{"negative", "-0.5"},
		{"above one", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RECOGNITION_THRESHOLD", tt.value)

			cfg := Load()

			if cfg.Recognition.Threshold != 0.8 {
				t.Errorf("expected fallback threshold 0.8 for %q, got %f", tt.value, cfg.Recognition.Threshold)
			}
		})
	}
}

func TestLoad_CustomInterval(t *testing.T) {
	t.Setenv("RECOGNITION_INTERVAL", "250ms")

	cfg := Load()

	if cfg.Recognition.Interval != 250*time.Millisecond {
		t.Errorf("expected interval 250ms, got %s", cfg.Recognition.Interval)
	}
}

func TestLoad_InvalidIntervalFallsBack(t *testing.T) {
	t.Setenv("RECOGNITION_INTERVAL", "fast")

	cfg := Load()

	if cfg.Recognition.Interval != time.Second {
		t.Errorf("expected fallback interval 1s, got %s", cfg.Recognition.Interval)
	}
}

func TestLoad_InvalidEmbeddingDim(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "invalid"},
		{"negative", "-100"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EMBEDDING_DIM", tt.value)

			cfg := Load()

			if cfg.Embedding.Dim != 512 {
				t.Errorf("expected default embedding dim 512 for %q, got %d", tt.value, cfg.Embedding.Dim)
			}
		})
	}
}

func TestLoad_DisableFallback(t *testing.T) {
	t.Setenv("RECOGNITION_FALLBACK", "false")

	cfg := Load()

	if cfg.Recognition.AllowFallback {
		t.Error("expected fallback to be disabled")
	}
}

func TestLocation_EmptyUsesLocal(t *testing.T) {
	cfg := AttendanceConfig{Timezone: ""}

	if cfg.Location() != time.Local {
		t.Error("expected local zone for empty timezone")
	}
}

func TestLocation_KnownZone(t *testing.T) {
	cfg := AttendanceConfig{Timezone: "UTC"}

	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", cfg.Location())
	}
}

func TestLocation_UnknownZoneFallsBack(t *testing.T) {
	cfg := AttendanceConfig{Timezone: "Mars/Olympus_Mons"}

	if cfg.Location() != time.Local {
		t.Error("expected local zone fallback for unknown timezone")
	}
}
