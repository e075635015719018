package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Camera      CameraConfig
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Attendance  AttendanceConfig
}

type ServerConfig struct {
	Addr string // listen address (default ":8090")
}

type CameraConfig struct {
	Source string // capture source URL, e.g. v4l2:/dev/video0 or dir:./frames
	Width  int    // requested frame width (default 640)
	Height int    // requested frame height (default 480)
	FPS    int    // requested capture rate (default 30)
}

type EmbeddingConfig struct {
	URL string // embedding engine base URL (default http://localhost:8000)
	Dim int    // embedding dimensionality (default 512)
}

type RecognitionConfig struct {
	Threshold     float64       // minimum score for an accepted match (default 0.8)
	Interval      time.Duration // minimum gap between recognition passes (default 1s)
	AllowFallback bool          // nearest-neighbor fallback when no classifier is loaded
}

type DatabaseConfig struct {
	URL          string // postgres:// or mysql:// DSN; empty runs the in-memory store
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

type StorageConfig struct {
	DataDir        string // enrollment captures and trained models (default ./data)
	ClassifierPath string // trained classifier location (default <DataDir>/classifier.json)
}

type AttendanceConfig struct {
	Timezone string // IANA zone used to bucket work dates (default system local)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a score in (0, 1].
// Match scores are normalized, so anything outside that range is treated as
// invalid and the default is returned.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration ("500ms", "2s").
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
// Returns the default value if the env var is unset, empty, or invalid.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr: envString("FACEGATE_ADDR", ":8090"),
		},
		Camera: CameraConfig{
			Source: envString("CAMERA_SOURCE", "v4l2:/dev/video0"),
			Width:  envInt("CAMERA_WIDTH", 640),
			Height: envInt("CAMERA_HEIGHT", 480),
			FPS:    envInt("CAMERA_FPS", 30),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Recognition: RecognitionConfig{
			Threshold:     envFloat("RECOGNITION_THRESHOLD", 0.8),
			Interval:      envDuration("RECOGNITION_INTERVAL", time.Second),
			AllowFallback: envBool("RECOGNITION_FALLBACK", true),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Storage: StorageConfig{
			DataDir:        envString("FACEGATE_DATA_DIR", "./data"),
			ClassifierPath: os.Getenv("CLASSIFIER_MODEL_PATH"),
		},
		Attendance: AttendanceConfig{
			Timezone: os.Getenv("ATTENDANCE_TIMEZONE"),
		},
	}

	if cfg.Storage.ClassifierPath == "" {
		cfg.Storage.ClassifierPath = filepath.Join(cfg.Storage.DataDir, "classifier.json")
	}

	return cfg
}

// Location resolves the attendance timezone, falling back to the system
// local zone when the configured name is empty or unknown.
func (c *AttendanceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
