// Package config defines the engine's top-level configuration and
// validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and
// may be overridden by TACHYON_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Engine   EngineConfig   `toml:"engine"`
	FeedLog  FeedLogConfig  `toml:"feedlog"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Kafka    KafkaConfig    `toml:"kafka"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the market-data HTTP/WS listener parameters.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// EngineConfig sizes the book engine's memory machinery.
type EngineConfig struct {
	Venue         string        `toml:"venue"`
	RetireRing    uint64        `toml:"retire_ring"`
	EpochInterval time.Duration `toml:"epoch_interval"`
}

// FeedLogConfig controls quote-feed journaling.
type FeedLogConfig struct {
	Dir             string        `toml:"dir"`
	SegmentSize     int64         `toml:"segment_size"`
	SegmentDuration time.Duration `toml:"segment_duration"`
	FlushInterval   time.Duration `toml:"flush_interval"`
	Replay          bool          `toml:"replay"`
}

// SnapshotConfig controls the periodic pebble level-snapshot job.
type SnapshotConfig struct {
	Dir      string        `toml:"dir"`
	Interval time.Duration `toml:"interval"`
}

// KafkaConfig holds broker addresses and topics; empty brokers disable
// publishing entirely.
type KafkaConfig struct {
	Brokers           []string      `toml:"brokers"`
	TradeTopic        string        `toml:"trade_topic"`
	EventTopic        string        `toml:"event_topic"`
	BroadcastInterval time.Duration `toml:"broadcast_interval"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Engine: EngineConfig{
			Venue:         "KRX",
			RetireRing:    1 << 18,
			EpochInterval: 2 * time.Second,
		},
		FeedLog: FeedLogConfig{
			Dir:             "./data/feedlog",
			SegmentSize:     64 << 20,
			SegmentDuration: time.Hour,
			FlushInterval:   2 * time.Second,
			Replay:          true,
		},
		Snapshot: SnapshotConfig{
			Dir:      "./data/books",
			Interval: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			TradeTopic:        "tachyon.trades",
			EventTopic:        "tachyon.events",
			BroadcastInterval: 250 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Engine.RetireRing == 0 || c.Engine.RetireRing&(c.Engine.RetireRing-1) != 0 {
		return fmt.Errorf("config: engine.retire_ring must be a power of two, got %d", c.Engine.RetireRing)
	}
	if c.FeedLog.Dir == "" {
		return fmt.Errorf("config: feedlog.dir is required")
	}
	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.TradeTopic == "" || c.Kafka.EventTopic == "" {
			return fmt.Errorf("config: kafka topics are required when brokers are set")
		}
	}
	return nil
}
