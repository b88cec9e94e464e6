package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// GetConfigPath returns the default config file path (~/.charbot/config.json).
func GetConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads configuration from a JSON file.
// If path is empty, uses the default config path.
// If the file doesn't exist, returns DefaultConfig().
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, err
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// Save writes configuration to a JSON file.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overlays CHARBOT_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if v := getEnv("CHARBOT_BRIDGE_URL", ""); v != "" {
		ensureWhatsApp(cfg).BridgeURL = v
	}
	if v := getEnv("CHARBOT_BRIDGE_TOKEN", ""); v != "" {
		ensureWhatsApp(cfg).BridgeToken = v
	}
	if v := getEnv("CHARBOT_OWNERS", ""); v != "" {
		cfg.Session.Owners = splitList(v)
	}
	cfg.Session.SelfIsOwner = getEnvBool("CHARBOT_SELF_IS_OWNER", cfg.Session.SelfIsOwner)
	cfg.Pipeline.StrictClassifier = getEnvBool("CHARBOT_STRICT_CLASSIFIER", cfg.Pipeline.StrictClassifier)
	cfg.Pipeline.ResolveNames = getEnvBool("CHARBOT_RESOLVE_NAMES", cfg.Pipeline.ResolveNames)
	cfg.Pipeline.ReplyMode = getEnv("CHARBOT_REPLY_MODE", cfg.Pipeline.ReplyMode)
	cfg.Storage.MappingsFile = getEnv("CHARBOT_MAPPINGS_FILE", cfg.Storage.MappingsFile)
	cfg.Resolver.ServicesFile = getEnv("CHARBOT_SERVICES_FILE", cfg.Resolver.ServicesFile)
	cfg.Redis.URL = getEnv("CHARBOT_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnv("CHARBOT_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Gateway.Port = getEnvInt("CHARBOT_PORT", cfg.Gateway.Port)
	cfg.Gateway.APIKey = getEnv("CHARBOT_API_KEY", cfg.Gateway.APIKey)
	cfg.Log.Level = getEnv("CHARBOT_LOG_LEVEL", cfg.Log.Level)
}

func ensureWhatsApp(cfg *Config) *WhatsAppConfig {
	if cfg.Channel.WhatsApp == nil {
		cfg.Channel.WhatsApp = &WhatsAppConfig{}
	}
	return cfg.Channel.WhatsApp
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
