// Package config loads REMI's settings from a JSON file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/caarlos0/env/v11"

	"github.com/tbxark/remi/search"
	"github.com/tbxark/remi/store"
)

// EnvPrefix is prepended to every environment variable, e.g. REMI_LLM_API_KEY.
const EnvPrefix = "REMI_"

const (
	CollaboratorTool     = "tool"
	CollaboratorMarker   = "marker"
	CollaboratorFailback = "failback"
)

type Config struct {
	Listen   string `json:"listen" env:"LISTEN"`
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`
	// TimeZone pins calendar links; empty produces floating times.
	TimeZone string `json:"time_zone" env:"TIME_ZONE"`

	LLM        LLMConfig        `json:"llm" envPrefix:"LLM_"`
	Yelp       YelpConfig       `json:"yelp" envPrefix:"YELP_"`
	RocketChat RocketChatConfig `json:"rocketchat" envPrefix:"ROCKETCHAT_"`
	Store      store.Config     `json:"store" envPrefix:"STORE_"`
}

type LLMConfig struct {
	APIKey         string  `json:"api_key" env:"API_KEY"`
	BaseURL        string  `json:"base_url" env:"BASE_URL"`
	Model          string  `json:"model" env:"MODEL"`
	Temperature    float32 `json:"temperature" env:"TEMPERATURE"`
	TimeoutSeconds int     `json:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	HistoryDepth   int     `json:"history_depth" env:"HISTORY_DEPTH"`
	// Collaborator selects tool, marker, or failback (tool first, then marker).
	Collaborator string `json:"collaborator" env:"COLLABORATOR"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type YelpConfig struct {
	APIKey         string  `json:"api_key" env:"API_KEY"`
	BaseURL        string  `json:"base_url" env:"BASE_URL"`
	Limit          int     `json:"limit" env:"LIMIT"`
	TimeoutSeconds int     `json:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxTries       uint    `json:"max_tries" env:"MAX_TRIES"`
	RateLimit      float64 `json:"rate_limit" env:"RATE_LIMIT"`
	RateBurst      int     `json:"rate_burst" env:"RATE_BURST"`
}

func (c YelpConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RocketChatConfig struct {
	URL            string `json:"url" env:"URL"`
	Token          string `json:"token" env:"TOKEN"`
	UserID         string `json:"user_id" env:"USER_ID"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"TIMEOUT_SECONDS"`
}

func (c RocketChatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func Default() *Config {
	return &Config{
		Listen:   "0.0.0.0:5001",
		LogLevel: "info",
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			TimeoutSeconds: 60,
			HistoryDepth:   10,
			Collaborator:   CollaboratorFailback,
		},
		Yelp: YelpConfig{
			BaseURL:        search.DefaultBaseURL,
			Limit:          5,
			TimeoutSeconds: 10,
			MaxTries:       3,
			RateLimit:      5,
			RateBurst:      5,
		},
		RocketChat: RocketChatConfig{
			URL:            "https://chat.genaiconnect.net",
			TimeoutSeconds: 10,
		},
		Store: store.Config{
			Driver: store.DriverFile,
			Path:   "session_store.json",
		},
	}
}

// Load reads path over the defaults, applies REMI_* environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := sonic.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	switch c.LLM.Collaborator {
	case CollaboratorTool, CollaboratorMarker, CollaboratorFailback:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.collaborator %q", c.LLM.Collaborator))
	}
	if c.LLM.HistoryDepth < 0 {
		errs = append(errs, errors.New("llm.history_depth must not be negative"))
	}
	if c.Yelp.APIKey == "" {
		errs = append(errs, errors.New("yelp.api_key is required"))
	}
	if c.Yelp.Limit < 1 || c.Yelp.Limit > 50 {
		errs = append(errs, fmt.Errorf("yelp.limit must be within 1..50, got %d", c.Yelp.Limit))
	}
	if c.RocketChat.URL == "" || c.RocketChat.Token == "" || c.RocketChat.UserID == "" {
		errs = append(errs, errors.New("rocketchat.url, token and user_id are required"))
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("time_zone: %w", err))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
