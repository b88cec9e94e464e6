package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Schema Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.3, cfg.Humanize.MistakeRate)
	assert.Equal(t, 0.7, cfg.Humanize.TypoRate)
	assert.Equal(t, 0.5, cfg.Humanize.CorrectionRate)
	assert.Equal(t, 200, cfg.Session.DedupCapacity)
	assert.Equal(t, 30, cfg.Session.StaleAfterSeconds)
	assert.Equal(t, "*", cfg.Pipeline.Marker)
	assert.False(t, cfg.Pipeline.StrictClassifier)
	assert.True(t, cfg.Humanize.GuardCorrections)
	assert.Contains(t, cfg.Session.ActivateAliases, ".a")
	assert.Contains(t, cfg.Session.DeactivateAliases, ".x")
	assert.Contains(t, cfg.Session.StatusAliases, ".status")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_CamelCaseJSON(t *testing.T) {
	jsonStr := `{
		"channel": {"whatsapp": {"bridgeUrl": "ws://bridge:3001", "bridgeToken": "t"}},
		"session": {"owners": ["9665"], "staleAfterSeconds": 10},
		"pipeline": {"strictClassifier": true},
		"humanize": {"mistakeRate": 0.1}
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &cfg))

	assert.Equal(t, "ws://bridge:3001", cfg.Channel.WhatsApp.BridgeURL)
	assert.Equal(t, []string{"9665"}, cfg.Session.Owners)
	assert.Equal(t, 10, cfg.Session.StaleAfterSeconds)
	assert.True(t, cfg.Pipeline.StrictClassifier)
	assert.Equal(t, 0.1, cfg.Humanize.MistakeRate)
}

func TestConfig_NilChannels(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.Channel.WhatsApp)
}

// --- Loader Tests ---

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"session": {"owners": ["1"]}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, cfg.Session.Owners)
	assert.Equal(t, 200, cfg.Session.DedupCapacity)
	assert.Equal(t, 0.3, cfg.Humanize.MistakeRate)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{bad`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Session.Owners = []string{"966500000000"}
	cfg.Channel.WhatsApp = &WhatsAppConfig{BridgeURL: "ws://localhost:3001"}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"rate above one", func(c *Config) { c.Humanize.MistakeRate = 1.5 }},
		{"negative rate", func(c *Config) { c.Humanize.TypoRate = -0.1 }},
		{"correction window inverted", func(c *Config) { c.Humanize.CorrectionMaxMs = 100 }},
		{"zero dedup", func(c *Config) { c.Session.DedupCapacity = 0 }},
		{"empty marker", func(c *Config) { c.Pipeline.Marker = "" }},
		{"no attempts", func(c *Config) { c.Resolver.MaxAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Humanize.BaseDelayMs = -1 }},
		{"unknown reply mode", func(c *Config) { c.Pipeline.ReplyMode = "collect" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHARBOT_BRIDGE_URL", "ws://env:3001")
	t.Setenv("CHARBOT_OWNERS", "111, 222 ,")
	t.Setenv("CHARBOT_STRICT_CLASSIFIER", "yes")
	t.Setenv("CHARBOT_PORT", "9000")
	t.Setenv("CHARBOT_SELF_IS_OWNER", "garbage")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)

	require.NotNil(t, cfg.Channel.WhatsApp)
	assert.Equal(t, "ws://env:3001", cfg.Channel.WhatsApp.BridgeURL)
	assert.Equal(t, []string{"111", "222"}, cfg.Session.Owners)
	assert.True(t, cfg.Pipeline.StrictClassifier)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.True(t, cfg.Session.SelfIsOwner)
}

// --- Services Tests ---

func TestLoadServices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - name: anime-db
    url: http://db.local/search
    headers:
      X-Key: secret
  - name: off
    url: http://off.local
    enabled: false
  - url: http://nameless.local
    query_param: term
    name_field: title
    confidence_field: score
`), 0o644))

	specs, err := LoadServices(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "anime-db", specs[0].Name)
	assert.Equal(t, "q", specs[0].QueryParam)
	assert.Equal(t, "name", specs[0].NameField)
	assert.Equal(t, "confidence", specs[0].ConfidenceField)
	assert.Equal(t, "secret", specs[0].Headers["X-Key"])

	assert.Equal(t, "http://nameless.local", specs[1].Name)
	assert.Equal(t, "term", specs[1].QueryParam)
	assert.Equal(t, "title", specs[1].NameField)
	assert.Equal(t, "score", specs[1].ConfidenceField)
}

func TestLoadServices_Missing(t *testing.T) {
	specs, err := LoadServices(filepath.Join(t.TempDir(), "none.yaml"))
	assert.NoError(t, err)
	assert.Nil(t, specs)
}

func TestLoadServices_NoURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  - name: broken\n"), 0o644))
	_, err := LoadServices(path)
	assert.Error(t, err)
}

func TestExampleServicesYAML_Parses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ExampleServicesYAML), 0o644))
	specs, err := LoadServices(path)
	require.NoError(t, err)
	assert.Empty(t, specs)
}
