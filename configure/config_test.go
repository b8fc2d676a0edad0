package configure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load([]string{"--config_file", filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)

	c, err := Unmarshal(config)
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, c.Store)
	assert.Equal(t, time.Minute, c.SweepInterval)
	assert.Equal(t, 5*time.Minute, c.RateWindow)
	assert.Equal(t, 10, c.RateLimit)
	assert.Equal(t, ":3001", c.ListenerAddress)
}

func TestLoadLayers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("rate_limit: 3\nmongo_db: fromfile\nstore: memory\n"), 0o600))

	t.Setenv("MONGO_DB", "fromenv")

	config, err := Load([]string{"--config_file", file, "--rate_limit", "7"})
	require.NoError(t, err)

	c, err := Unmarshal(config)
	require.NoError(t, err)
	assert.Equal(t, 7, c.RateLimit, "flag beats file")
	assert.Equal(t, "fromenv", c.MongoDB, "env beats file")
	assert.Equal(t, StoreMemory, c.Store, "file beats default")
}

func TestLoadBadFlag(t *testing.T) {
	_, err := Load([]string{"--no_such_flag"})
	assert.Error(t, err)
}
