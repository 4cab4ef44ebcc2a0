package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ".", cfg.Indexer.Root)
	assert.Equal(t, filepath.Join("data", DefaultIndexFile), cfg.Indexer.IndexPath)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)

	f, err := cfg.Indexer.Filter()
	require.NoError(t, err)
	assert.True(t, f.Excluded("/src/.git"))
	assert.True(t, f.Excluded("/src/node_modules/pkg/index.js"))
	assert.True(t, f.Excluded("data/index.json"))
	assert.False(t, f.Excluded("/src/database.go"))
	assert.False(t, f.Excluded("/src/main.go"))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9000
indexer:
  root: /srv/corpus
  include: '\.txt$'
  exclude: ''
  indexPath: /var/lib/bigram/index.json.zst
redis:
  enabled: true
  cacheTTL: 2m
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/srv/corpus", cfg.Indexer.Root)
	assert.Equal(t, `\.txt$`, cfg.Indexer.Include)
	assert.Empty(t, cfg.Indexer.Exclude)
	assert.Equal(t, "/var/lib/bigram/index.json.zst", cfg.Indexer.IndexPath)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "unset fields keep defaults")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BS_INDEXER_ROOT", "/data")
	t.Setenv("BS_INDEXER_INCLUDE", `\.md$`)
	t.Setenv("BS_SERVER_PORT", "7070")
	t.Setenv("BS_KAFKA_ENABLED", "true")
	t.Setenv("BS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.Indexer.Root)
	assert.Equal(t, `\.md$`, cfg.Indexer.Include)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejectsBadPatterns(t *testing.T) {
	t.Setenv("BS_INDEXER_EXCLUDE", "(")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}
