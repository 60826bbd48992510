package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/rendis/flowdesk/internal/scheduler"
)

// Config holds all flowdesk client configuration.
// Priority: flags > env vars (.env included) > settings.json > defaults.
type Config struct {
	APIBaseURL      string   `json:"api_base_url"`
	DBPath          string   `json:"db_path"`
	LogLevel        string   `json:"log_level"`
	LogFormat       string   `json:"log_format"`
	ListenAddr      string   `json:"listen_addr"`
	JanitorSchedule string   `json:"janitor_schedule"`
	DraftTTL        duration `json:"draft_ttl"`
	RequestTimeout  duration `json:"request_timeout"`
}

// duration reads "168h" style strings from settings.json.
type duration time.Duration

func (d duration) Std() time.Duration { return time.Duration(d) }

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func defaultConfig() Config {
	return Config{
		APIBaseURL:      "http://localhost:8080/api",
		DBPath:          filepath.Join(flowdeskDir(), "flowdesk.db"),
		LogLevel:        "info",
		LogFormat:       "text",
		ListenAddr:      "127.0.0.1:4300",
		JanitorSchedule: scheduler.DefaultSchedule,
		DraftTTL:        duration(168 * time.Hour),
		RequestTimeout:  duration(15 * time.Second),
	}
}

func flowdeskDir() string {
	if dir := os.Getenv("FLOWDESK_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowdesk"
	}
	return filepath.Join(home, ".flowdesk")
}

func settingsPath() string {
	return filepath.Join(flowdeskDir(), "settings.json")
}

func keyPath() string {
	return filepath.Join(flowdeskDir(), "vault.key")
}

// loadConfig layers settings.json and the environment over the defaults.
// A missing settings file is fine; a malformed one is an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	// Layer 1: .env in the working directory (ignore if missing).
	_ = godotenv.Load()

	// Layer 2: settings.json.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWDESK_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("FLOWDESK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWDESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWDESK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLOWDESK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWDESK_JANITOR_SCHEDULE"); v != "" {
		cfg.JanitorSchedule = v
	}
	if v := os.Getenv("FLOWDESK_DRAFT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("FLOWDESK_DRAFT_TTL: %w", err)
		}
		cfg.DraftTTL = duration(d)
	}
	if v := os.Getenv("FLOWDESK_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("FLOWDESK_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = duration(d)
	}
	return cfg, nil
}
