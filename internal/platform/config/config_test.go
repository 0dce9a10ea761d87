package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10000, cfg.Audit.Capacity)
	assert.Equal(t, "sha256", cfg.Ledger.HashAlgorithm)
	assert.Equal(t, 1.0, cfg.Privacy.Epsilon)
	assert.Equal(t, 10.0, cfg.Privacy.TotalBudget)
	assert.Equal(t, 1, cfg.Notarization.MinSignatures)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PRIVACY_EPSILON", "0.5")
	t.Setenv("PRIVACY_DELTA", "0.00001")
	t.Setenv("THRESHOLD_REQUIRED", "2")
	t.Setenv("THRESHOLD_PARTIES", `[{"id":"p1","name":"Court","public_key":"aa"},{"id":"p2","name":"Ombudsman","public_key":"bb"}]`)
	t.Setenv("NOTARIZATION_REQUIRED_WITNESSES", "w1, w2")
	t.Setenv("NOTARIZATION_MAX_SIGNATURE_AGE", "24h")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Privacy.Epsilon)
	assert.Equal(t, 2, cfg.Threshold.Threshold)
	require.Len(t, cfg.Threshold.Parties, 2)
	assert.Equal(t, "Ombudsman", cfg.Threshold.Parties[1].Name)
	assert.Equal(t, []string{"w1", "w2"}, cfg.Notarization.RequiredWitnesses)
	assert.Equal(t, 24*time.Hour, cfg.Notarization.MaxSignatureAge)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvRejectsInvalidPrivacy(t *testing.T) {
	t.Run("zero epsilon", func(t *testing.T) {
		t.Setenv("PRIVACY_EPSILON", "0")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("delta of one", func(t *testing.T) {
		t.Setenv("PRIVACY_DELTA", "1")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unparseable", func(t *testing.T) {
		t.Setenv("PRIVACY_TOTAL_BUDGET", "lots")
		_, err := FromEnv()
		require.Error(t, err)
	})
}

func TestFromEnvKafkaAndSnapshot(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, int32(3), cfg.Kafka.Partitions)
	assert.Equal(t, int16(-1), cfg.Kafka.ReplicationFactor)
	assert.Equal(t, 5*time.Minute, cfg.Snapshot.Interval)

	t.Setenv("KAFKA_LEDGER_PARTITIONS", "12")
	t.Setenv("KAFKA_REPLICATION_FACTOR", "3")
	t.Setenv("SNAPSHOT_INTERVAL", "30s")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, int32(12), cfg.Kafka.Partitions)
	assert.Equal(t, int16(3), cfg.Kafka.ReplicationFactor)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.Interval)
}

func TestValidateThresholdAgainstParties(t *testing.T) {
	t.Setenv("THRESHOLD_REQUIRED", "2")
	t.Setenv("THRESHOLD_PARTIES", `[{"id":"p1","public_key":"aa"}]`)
	_, err := FromEnv()
	require.Error(t, err)
}
