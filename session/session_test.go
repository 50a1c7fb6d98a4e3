package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/recoveryfinder/browser/browsertest"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/models"
)

const (
	entryURL   = "https://search.example/"
	resultsURL = "https://search.example/results?q=kumar"
)

func newManager(l *browsertest.Launcher) *Manager {
	cfg := config.Load().Browser
	return NewManager(l, cfg, entryURL, time.Second)
}

func TestOpenAppliesIdentity(t *testing.T) {
	l := browsertest.NewLauncher()
	m := newManager(l)

	s, err := m.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Alive())
	assert.Equal(t, 0, s.Generation)

	launches := l.Launches()
	require.Len(t, launches, 1)
	assert.False(t, launches[0].Headless)

	ctxs := l.Processes()[0].Contexts()
	require.Len(t, ctxs, 1)
	assert.Equal(t, config.DefaultUserAgent, ctxs[0].Identity.UserAgent)
	assert.Equal(t, 1280, ctxs[0].Identity.Width)
	assert.Equal(t, 720, ctxs[0].Identity.Height)
	assert.Equal(t, "en-US", ctxs[0].Identity.Locale)
}

func TestEnsureAliveIsNoOpForLiveSession(t *testing.T) {
	l := browsertest.NewLauncher()
	m := newManager(l)
	s, err := m.Open(context.Background())
	require.NoError(t, err)

	got, err := m.EnsureAlive(context.Background(), s, resultsURL)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, l.Launches(), 1)
}

func TestEnsureAliveRecoversClosedPage(t *testing.T) {
	l := browsertest.NewLauncher()
	rendered := 0
	l.Handle("https://search.example/results", func(p *browsertest.Page) {
		rendered++
		p.Set("table tbody tr", browsertest.El("row"))
	})
	m := newManager(l)
	s, err := m.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Page.Close())

	got, err := m.EnsureAlive(context.Background(), s, resultsURL)
	require.NoError(t, err)
	assert.NotSame(t, s, got)
	assert.True(t, got.Alive())
	assert.Equal(t, 1, got.Generation)
	assert.Equal(t, resultsURL, got.Page.URL())
	assert.Equal(t, 1, rendered)

	// the dead process was released and the new one is headless
	procs := l.Processes()
	require.Len(t, procs, 2)
	assert.False(t, procs[0].Alive())
	assert.True(t, procs[1].Options.Headless)
	assert.Contains(t, procs[1].Options.Flags, "disable-gpu")

	// idempotent once alive again
	again, err := m.EnsureAlive(context.Background(), got, resultsURL)
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestEnsureAliveRecoversCrashedProcess(t *testing.T) {
	l := browsertest.NewLauncher()
	m := newManager(l)
	s, err := m.Open(context.Background())
	require.NoError(t, err)
	l.Processes()[0].Crash()
	assert.False(t, s.Alive())

	got, err := m.EnsureAlive(context.Background(), s, "")
	require.NoError(t, err)
	assert.Equal(t, entryURL, got.Page.URL())
}

func TestEnsureAliveFromNothing(t *testing.T) {
	l := browsertest.NewLauncher()
	m := newManager(l)

	got, err := m.EnsureAlive(context.Background(), nil, resultsURL)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Generation)
	assert.Equal(t, resultsURL, got.Page.URL())
}

func TestEnsureAliveLaunchFailure(t *testing.T) {
	l := browsertest.NewLauncher()
	m := newManager(l)
	s, err := m.Open(context.Background())
	require.NoError(t, err)
	l.Processes()[0].Crash()

	l.LaunchErr = models.NewScrapeError(models.ErrCodeBrowserCrash, "no chromium", errors.New("exec"))
	_, err = m.EnsureAlive(context.Background(), s, resultsURL)
	assert.True(t, models.HasCode(err, models.ErrCodeBrowserCrash))
}

func TestSessionAliveNilParts(t *testing.T) {
	var s *Session
	assert.False(t, s.Alive())
	assert.False(t, (&Session{}).Alive())
}

func TestReleaseClosesProcess(t *testing.T) {
	l := browsertest.NewLauncher()
	m := newManager(l)
	s, err := m.Open(context.Background())
	require.NoError(t, err)

	m.Release(s)
	m.Release(nil)
	assert.False(t, s.Alive())
}
