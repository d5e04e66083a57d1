package cli_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JOBTRACK_URL", "")

	cfg, err := cli.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://tracker:9000\ntimeout: 3s\n"), 0o600))

	t.Setenv("JOBTRACK_URL", "")
	cfg, err := cli.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://tracker:9000", cfg.URL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)

	t.Setenv("JOBTRACK_URL", "http://override:1")
	cfg, err = cli.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:1", cfg.URL)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: [unterminated\n"), 0o600))

	_, err := cli.LoadConfig(path)
	assert.Error(t, err)
}
