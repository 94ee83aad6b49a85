package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML file at path (a missing file just keeps defaults),
// merges it over Defaults, then applies TACHYON_* environment
// overrides. The caller should Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// .env is optional; ignore when absent.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Addr, "TACHYON_SERVER_ADDR")
	setStrSlice(&cfg.Server.AllowedOrigins, "TACHYON_SERVER_ALLOWED_ORIGINS")

	setStr(&cfg.Engine.Venue, "TACHYON_ENGINE_VENUE")
	setUint(&cfg.Engine.RetireRing, "TACHYON_ENGINE_RETIRE_RING")

	setStr(&cfg.FeedLog.Dir, "TACHYON_FEEDLOG_DIR")
	setBool(&cfg.FeedLog.Replay, "TACHYON_FEEDLOG_REPLAY")

	setStr(&cfg.Snapshot.Dir, "TACHYON_SNAPSHOT_DIR")

	setStrSlice(&cfg.Kafka.Brokers, "TACHYON_KAFKA_BROKERS")
	setStr(&cfg.Kafka.TradeTopic, "TACHYON_KAFKA_TRADE_TOPIC")
	setStr(&cfg.Kafka.EventTopic, "TACHYON_KAFKA_EVENT_TOPIC")

	setStr(&cfg.LogLevel, "TACHYON_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func setUint(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
