package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: development
jwt:
  secret: s3cret
mongo:
  uri: mongodb://localhost:27017
redis:
  addr: localhost:6379
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.App.Port)
	assert.Equal(t, "chat", c.Mongo.Database)
	assert.Equal(t, "rt", c.Redis.Prefix)
	assert.Equal(t, int64(64*1024), c.WS.MaxMessageSizeBytes)
	assert.Equal(t, 20, c.WS.RateLimitPerSec)
	assert.Equal(t, 25*time.Second, c.PingInterval)
	assert.Equal(t, 10*time.Second, c.WriteDeadline)
	assert.Equal(t, 60*time.Second, c.PongWait)
}

func TestLoadDerivesDurationsFromOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
ws:
  ping_interval_seconds: 5
  write_deadline_seconds: 3
  pong_wait_seconds: 12
  rate_limit_per_sec: 50
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic_chat_events: chat.events
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.App.Port)
	assert.Equal(t, 5*time.Second, c.PingInterval)
	assert.Equal(t, 3*time.Second, c.WriteDeadline)
	assert.Equal(t, 12*time.Second, c.PongWait)
	assert.Equal(t, 50, c.WS.RateLimitPerSec)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "chat.events", c.Kafka.TopicChatEvents)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
