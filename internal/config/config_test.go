package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bindery/novelbind/internal/novel"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Fetch.Workers)
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.BaseDelay())
	require.Equal(t, 5*time.Second, cfg.MaxDelay())
	require.True(t, cfg.Render.Enabled)
	require.Equal(t, 2, cfg.Render.MaxSessions)
	require.Equal(t, "downloads", cfg.Output.Dir)
	require.Equal(t, []novel.Format{novel.FormatEPUB}, cfg.DefaultFormats())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
fetch:
  workers: 8
  domain_qps: 0.5
render:
  enabled: false
output:
  dir: /tmp/books
  formats: [markdown, html]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 8, cfg.Fetch.Workers)
	require.InDelta(t, 0.5, cfg.Fetch.DomainQPS, 1e-9)
	require.False(t, cfg.Render.Enabled)
	require.Equal(t, "/tmp/books", cfg.Output.Dir)
	require.Equal(t, []novel.Format{novel.FormatMarkdown, novel.FormatHTML}, cfg.DefaultFormats())
	// Untouched keys keep their defaults.
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NOVELBIND_SERVER_PORT", "7070")
	t.Setenv("NOVELBIND_FETCH_USER_AGENT", "custom-agent/1.0")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "custom-agent/1.0", cfg.Fetch.UserAgent)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Fetch.Workers = -1
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Retry.BaseDelayMs = 1000
	cfg.Retry.MaxDelayMs = 100
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Render.Enabled = true
	cfg.Render.MaxSessions = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Output.Formats = []string{"pdf"}
	require.Error(t, cfg.Validate())
}
