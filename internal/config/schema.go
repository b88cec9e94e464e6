// Package config handles configuration loading, saving, and schema definition.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dayuer/charbot-go/internal/lane"
)

// Config is the top-level charbot configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	Channel  ChannelConfig  `json:"channel"`
	Session  SessionConfig  `json:"session"`
	Pipeline PipelineConfig `json:"pipeline"`
	Humanize HumanizeConfig `json:"humanize"`
	Resolver ResolverConfig `json:"resolver"`
	Storage  StorageConfig  `json:"storage"`
	Redis    RedisConfig    `json:"redis"`
	Gateway  GatewayConfig  `json:"gateway"`
	Log      LogConfig      `json:"log"`
}

// ChannelConfig holds per-channel settings.
type ChannelConfig struct {
	WhatsApp *WhatsAppConfig `json:"whatsapp,omitempty"`
}

// WhatsAppConfig holds the bridge connection settings.
type WhatsAppConfig struct {
	BridgeURL   string   `json:"bridgeUrl"`
	BridgeToken string   `json:"bridgeToken,omitempty"`
	AllowFrom   []string `json:"allowFrom,omitempty"`
}

// SessionConfig controls who may drive the bot and how commands are spelled.
type SessionConfig struct {
	Owners            []string `json:"owners"`
	SelfIsOwner       bool     `json:"selfIsOwner"`
	ActivateAliases   []string `json:"activateAliases"`
	DeactivateAliases []string `json:"deactivateAliases"`
	StatusAliases     []string `json:"statusAliases"`
	StaleAfterSeconds int      `json:"staleAfterSeconds"`
	DedupCapacity     int      `json:"dedupCapacity"`
}

// PipelineConfig selects detection behaviour.
type PipelineConfig struct {
	Marker           string `json:"marker"`
	StrictClassifier bool   `json:"strictClassifier"`
	ResolveNames     bool   `json:"resolveNames"`
	// ReplyMode orders replies within a chat: parallel, followup or interrupt.
	ReplyMode string `json:"replyMode,omitempty"`
}

// HumanizeConfig tunes mistakes and typing delays.
type HumanizeConfig struct {
	MistakeRate      float64 `json:"mistakeRate"`
	TypoRate         float64 `json:"typoRate"`
	CorrectionRate   float64 `json:"correctionRate"`
	BaseDelayMs      int     `json:"baseDelayMs"`
	PerTokenMs       int     `json:"perTokenMs"`
	VariationMs      int     `json:"variationMs"`
	CorrectionMinMs  int     `json:"correctionMinMs"`
	CorrectionMaxMs  int     `json:"correctionMaxMs"`
	GuardCorrections bool    `json:"guardCorrections"`
	Seed             uint64  `json:"seed,omitempty"` // 0 = random
}

// ResolverConfig configures external name lookups.
type ResolverConfig struct {
	ServicesFile string `json:"servicesFile,omitempty"`
	MinSpacingMs int    `json:"minSpacingMs"`
	MaxAttempts  int    `json:"maxAttempts"`
	BackoffMs    int    `json:"backoffMs"`
	TimeoutMs    int    `json:"timeoutMs"`
}

// StorageConfig locates the mappings document.
type StorageConfig struct {
	MappingsFile string `json:"mappingsFile,omitempty"`
}

// RedisConfig holds the optional lookup cache connection.
type RedisConfig struct {
	URL        string `json:"url,omitempty"`
	Password   string `json:"password,omitempty"`
	DB         int    `json:"db,omitempty"`
	TTLMinutes int    `json:"ttlMinutes,omitempty"`
}

// GatewayConfig holds the status server settings.
type GatewayConfig struct {
	Port   int    `json:"port,omitempty"`
	Host   string `json:"host,omitempty"`
	APIKey string `json:"apiKey,omitempty"` // guards /api/*
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `json:"level,omitempty"`
	Development bool   `json:"development,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			SelfIsOwner:       true,
			ActivateAliases:   []string{".a", ".تفعيل"},
			DeactivateAliases: []string{".x", ".ايقاف"},
			StatusAliases:     []string{".status", ".حالة"},
			StaleAfterSeconds: 30,
			DedupCapacity:     200,
		},
		Pipeline: PipelineConfig{
			Marker:    "*",
			ReplyMode: string(lane.ModeParallel),
		},
		Humanize: HumanizeConfig{
			MistakeRate:      0.3,
			TypoRate:         0.7,
			CorrectionRate:   0.5,
			BaseDelayMs:      700,
			PerTokenMs:       700,
			VariationMs:      450,
			CorrectionMinMs:  2000,
			CorrectionMaxMs:  3000,
			GuardCorrections: true,
		},
		Resolver: ResolverConfig{
			ServicesFile: filepath.Join(DataDir(), "services.yaml"),
			MinSpacingMs: 350,
			MaxAttempts:  3,
			BackoffMs:    500,
			TimeoutMs:    8000,
		},
		Storage: StorageConfig{
			MappingsFile: filepath.Join(DataDir(), "mappings.json"),
		},
		Redis: RedisConfig{
			TTLMinutes: 24 * 60,
		},
		Gateway: GatewayConfig{
			Port: 18790,
			Host: "127.0.0.1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DataDir returns the charbot data directory (~/.charbot). It does not create it.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".charbot")
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	h := c.Humanize
	for name, v := range map[string]float64{
		"humanize.mistakeRate":    h.MistakeRate,
		"humanize.typoRate":       h.TypoRate,
		"humanize.correctionRate": h.CorrectionRate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if h.BaseDelayMs < 0 || h.PerTokenMs < 0 || h.VariationMs < 0 {
		return fmt.Errorf("humanize delays cannot be negative")
	}
	if h.CorrectionMaxMs < h.CorrectionMinMs {
		return fmt.Errorf("humanize.correctionMaxMs (%d) < correctionMinMs (%d)", h.CorrectionMaxMs, h.CorrectionMinMs)
	}
	if c.Session.DedupCapacity <= 0 {
		return fmt.Errorf("session.dedupCapacity must be > 0")
	}
	if c.Session.StaleAfterSeconds < 0 {
		return fmt.Errorf("session.staleAfterSeconds cannot be negative")
	}
	if c.Pipeline.Marker == "" {
		return fmt.Errorf("pipeline.marker cannot be empty")
	}
	if _, err := lane.ParseMode(c.Pipeline.ReplyMode); err != nil {
		return fmt.Errorf("pipeline.replyMode: %w", err)
	}
	if c.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("resolver.maxAttempts must be >= 1")
	}
	if c.Storage.MappingsFile == "" {
		return fmt.Errorf("storage.mappingsFile cannot be empty")
	}
	return nil
}
