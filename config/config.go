package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds scraper and server configuration.
type Config struct {
	BaseURL           string
	MaxPages          int
	FallbackPages     int
	Timeout           time.Duration
	LoginWait         time.Duration
	LoginPollInterval time.Duration
	TopN              int
	UserAgent         string
	RespectRobotsTxt  bool
	ListenAddr        string
	HistorySize       int
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	Verbose           bool
}

// DefaultConfig returns defaults for the public archive.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://archiveofourown.org",
		MaxPages:          500,
		FallbackPages:     5,
		Timeout:           30 * time.Second,
		LoginWait:         10 * time.Second,
		LoginPollInterval: time.Second,
		TopN:              5,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt:  false,
		ListenAddr:        ":8000",
		HistorySize:       16,
		OutputFile:        "output/wrapped.json",
		OutputFormat:      "json",
		Verbose:           false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.FallbackPages <= 0 {
		return fmt.Errorf("fallback pages must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.LoginWait <= 0 {
		return fmt.Errorf("login wait must be positive")
	}
	if c.LoginPollInterval <= 0 {
		return fmt.Errorf("login poll interval must be positive")
	}
	if c.LoginPollInterval > c.LoginWait {
		return fmt.Errorf("login poll interval (%s) cannot exceed login wait (%s)", c.LoginPollInterval, c.LoginWait)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top n must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}
