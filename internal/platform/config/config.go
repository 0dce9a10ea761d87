package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates process configuration.
type Config struct {
	Server       Server
	Ledger       Ledger
	Privacy      Privacy
	Threshold    Threshold
	Notarization Notarization
	Redis        RedisConfig
	Kafka        KafkaConfig
	Snapshot     Snapshot
	Audit        Audit
	LogLevel     string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Ledger selects the hash used for chain linking and fingerprints.
type Ledger struct {
	HashAlgorithm string
}

// Privacy configures the differential-privacy layer.
type Privacy struct {
	Epsilon     float64
	Delta       float64
	TotalBudget float64
	// SplitHistogramEpsilon divides epsilon across histogram buckets.
	SplitHistogramEpsilon bool
}

// Threshold configures the multi-party signature coordinator.
type Threshold struct {
	Threshold int
	Parties   []PartyConfig
}

// PartyConfig is one authorized signer.
type PartyConfig struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

// Notarization configures the default witness acceptance policy.
type Notarization struct {
	MinSignatures     int
	RequiredWitnesses []string
	MaxSignatureAge   time.Duration
}

// RedisConfig configures the snapshot store. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the append-event publisher. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Partitions and ReplicationFactor apply when the topic is created at
	// startup; -1 uses the broker default.
	Partitions        int32
	ReplicationFactor int16
}

// Snapshot configures periodic persistence of attestation state. Zero
// Interval saves only on shutdown.
type Snapshot struct {
	Interval time.Duration
}

// Audit bounds the in-process compliance trail. Events past Capacity evict
// the oldest; zero keeps everything.
type Audit struct {
	Capacity int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            getEnv("LEXAUDIT_ADDR", ":8080"),
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: Ledger{
			HashAlgorithm: getEnv("LEDGER_HASH_ALGORITHM", "sha256"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_LEDGER_TOPIC", "lexaudit.ledger.appended"),
		},
		Snapshot: Snapshot{
			Interval: 5 * time.Minute,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Privacy.Epsilon, err = getFloat("PRIVACY_EPSILON", 1.0); err != nil {
		return Config{}, err
	}
	if cfg.Privacy.Delta, err = getFloat("PRIVACY_DELTA", 0); err != nil {
		return Config{}, err
	}
	if cfg.Privacy.TotalBudget, err = getFloat("PRIVACY_TOTAL_BUDGET", 10.0); err != nil {
		return Config{}, err
	}
	cfg.Privacy.SplitHistogramEpsilon = os.Getenv("PRIVACY_SPLIT_HISTOGRAM_EPSILON") == "true"

	if cfg.Threshold.Threshold, err = getInt("THRESHOLD_REQUIRED", 0); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv("THRESHOLD_PARTIES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Threshold.Parties); err != nil {
			return Config{}, fmt.Errorf("parse THRESHOLD_PARTIES: %w", err)
		}
	}

	if cfg.Notarization.MinSignatures, err = getInt("NOTARIZATION_MIN_SIGNATURES", 1); err != nil {
		return Config{}, err
	}
	cfg.Notarization.RequiredWitnesses = splitList(os.Getenv("NOTARIZATION_REQUIRED_WITNESSES"))
	if raw := os.Getenv("NOTARIZATION_MAX_SIGNATURE_AGE"); raw != "" {
		if cfg.Notarization.MaxSignatureAge, err = time.ParseDuration(raw); err != nil {
			return Config{}, fmt.Errorf("parse NOTARIZATION_MAX_SIGNATURE_AGE: %w", err)
		}
	}

	partitions, err := getInt("KAFKA_LEDGER_PARTITIONS", 3)
	if err != nil {
		return Config{}, err
	}
	replication, err := getInt("KAFKA_REPLICATION_FACTOR", -1)
	if err != nil {
		return Config{}, err
	}
	cfg.Kafka.Partitions = int32(partitions)
	cfg.Kafka.ReplicationFactor = int16(replication)

	if cfg.Audit.Capacity, err = getInt("AUDIT_EVENT_CAPACITY", 10000); err != nil {
		return Config{}, err
	}

	if raw := os.Getenv("LEXAUDIT_SHUTDOWN_TIMEOUT"); raw != "" {
		if cfg.Server.ShutdownTimeout, err = time.ParseDuration(raw); err != nil {
			return Config{}, fmt.Errorf("parse LEXAUDIT_SHUTDOWN_TIMEOUT: %w", err)
		}
	}

	if raw := os.Getenv("SNAPSHOT_INTERVAL"); raw != "" {
		if cfg.Snapshot.Interval, err = time.ParseDuration(raw); err != nil {
			return Config{}, fmt.Errorf("parse SNAPSHOT_INTERVAL: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the services would refuse at construction.
func (c Config) Validate() error {
	if c.Privacy.Epsilon <= 0 {
		return fmt.Errorf("privacy epsilon must be positive, got %v", c.Privacy.Epsilon)
	}
	if c.Privacy.Delta < 0 || c.Privacy.Delta >= 1 {
		return fmt.Errorf("privacy delta must be in [0, 1), got %v", c.Privacy.Delta)
	}
	if c.Privacy.TotalBudget <= 0 {
		return fmt.Errorf("privacy total budget must be positive, got %v", c.Privacy.TotalBudget)
	}
	if c.Notarization.MinSignatures < 0 {
		return fmt.Errorf("notarization min signatures must not be negative")
	}
	if c.Threshold.Threshold > 0 && c.Threshold.Threshold > len(c.Threshold.Parties) {
		return fmt.Errorf("threshold %d exceeds %d configured parties", c.Threshold.Threshold, len(c.Threshold.Parties))
	}
	if c.Audit.Capacity < 0 {
		return fmt.Errorf("audit event capacity must not be negative")
	}
	if c.Snapshot.Interval < 0 {
		return fmt.Errorf("snapshot interval must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
