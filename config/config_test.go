package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.RecoveryHeadless)
	assert.Equal(t, DefaultUserAgent, cfg.Browser.UserAgent)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 720, cfg.Browser.ViewportHeight)
	assert.Equal(t, "en-US", cfg.Browser.Locale)

	assert.Equal(t, "https://search.recoversy.in/", cfg.Search.EntryURL)
	assert.Equal(t, "Bihar", cfg.Search.State)
	assert.Equal(t, 30*time.Second, cfg.Search.ChallengeWait)

	assert.Equal(t, 20*time.Second, cfg.Timing.FastProbeTimeout)
	assert.Equal(t, 90*time.Second, cfg.Timing.TableTimeout)

	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, 100, cfg.Extract.MaxRows)
	assert.Equal(t, "ID", cfg.Extract.PayloadParam)
	assert.Equal(t, "recovery_values", cfg.Extract.PayloadField)

	assert.Equal(t, 1500*time.Millisecond, cfg.Pacing.RowDelay)
	assert.Equal(t, 10, cfg.Pacing.PauseEvery)
	assert.Equal(t, 5*time.Second, cfg.Pacing.PauseFor)

	assert.Equal(t, "output.csv", cfg.Output.CSVPath)
	assert.Empty(t, cfg.Output.SQLitePath)
	assert.Empty(t, cfg.Output.RedisAddr)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FINDER_HEADLESS", "true")
	t.Setenv("FINDER_FIRST_NAME", "ravi")
	t.Setenv("FINDER_MAX_ROWS", "25")
	t.Setenv("FINDER_ROW_DELAY", "250ms")
	t.Setenv("FINDER_NAV_RPS", "2.5")
	t.Setenv("FINDER_API_KEYS", "a, b,,c")
	t.Setenv("FINDER_SQLITE_PATH", "/tmp/records.db")

	cfg := Load()
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "ravi", cfg.Search.FirstName)
	assert.Equal(t, 25, cfg.Extract.MaxRows)
	assert.Equal(t, 250*time.Millisecond, cfg.Pacing.RowDelay)
	assert.Equal(t, 2.5, cfg.Pacing.NavigationsPerSecond)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.Equal(t, "/tmp/records.db", cfg.Output.SQLitePath)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FINDER_MAX_ROWS", "many")
	t.Setenv("FINDER_ROW_DELAY", "soon")
	t.Setenv("FINDER_HEADLESS", "perhaps")

	cfg := Load()
	assert.Equal(t, 100, cfg.Extract.MaxRows)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pacing.RowDelay)
	assert.False(t, cfg.Browser.Headless)
}
