// Package session owns the browser process, browsing context and page the
// pipeline works on, and replaces them when they die.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/models"
)

// Session is the live triple every page operation targets. Generation is 0
// for the first session and increases with every recovery.
type Session struct {
	Process    browser.Process
	Context    browser.Context
	Page       browser.Page
	Generation int
}

// Alive reports whether the session can still be used: all three parts
// exist, the process answers and the page is not closed.
func (s *Session) Alive() bool {
	if s == nil || s.Process == nil || s.Context == nil || s.Page == nil {
		return false
	}
	return s.Process.Alive() && !s.Page.Closed()
}

// Manager creates, checks and recreates sessions.
type Manager struct {
	launcher   browser.Launcher
	browserCfg config.BrowserConfig
	entryURL   string
	navTimeout time.Duration
}

// NewManager returns a Manager launching through l. entryURL is where a
// recovered session lands when no results location is known.
func NewManager(l browser.Launcher, browserCfg config.BrowserConfig, entryURL string, navTimeout time.Duration) *Manager {
	return &Manager{
		launcher:   l,
		browserCfg: browserCfg,
		entryURL:   entryURL,
		navTimeout: navTimeout,
	}
}

// Open launches the first session of a run.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	s, err := m.launch(ctx, m.browserCfg.Headless, nil)
	if err != nil {
		return nil, err
	}
	slog.Info("session opened", "headless", m.browserCfg.Headless)
	return s, nil
}

// EnsureAlive returns s unchanged when it is alive. Otherwise it tears the
// old session down, launches a replacement and navigates it to lastKnown,
// or to the entry URL when lastKnown is empty.
func (m *Manager) EnsureAlive(ctx context.Context, s *Session, lastKnown string) (*Session, error) {
	if s.Alive() {
		return s, nil
	}

	generation := 1
	if s != nil {
		generation = s.Generation + 1
	}
	slog.Warn("session is dead, recovering", "generation", generation, "target", lastKnown)
	m.Release(s)

	flags := []string{"disable-gpu", "no-sandbox", "disable-dev-shm-usage"}
	next, err := m.launch(ctx, m.browserCfg.RecoveryHeadless, flags)
	if err != nil {
		return nil, fmt.Errorf("recover session: %w", err)
	}
	next.Generation = generation

	target := lastKnown
	if target == "" {
		target = m.entryURL
		slog.Warn("no results location known, search state is lost", "entry", target)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.navTimeout)
	defer cancel()
	if err := next.Page.Navigate(navCtx, target); err != nil {
		m.Release(next)
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "recovered session could not reach "+target, err)
	}

	slog.Info("session recovered", "generation", generation, "url", target)
	return next, nil
}

// Release closes the session's process. It never fails: a session being
// released is usually already broken.
func (m *Manager) Release(s *Session) {
	if s == nil {
		return
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil {
			slog.Debug("release: context close failed", "error", err)
		}
	}
	if s.Process != nil {
		if err := s.Process.Close(); err != nil {
			slog.Warn("release: browser close failed", "error", err)
		}
	}
}

func (m *Manager) identity() browser.Identity {
	return browser.Identity{
		UserAgent:      m.browserCfg.UserAgent,
		AcceptLanguage: m.browserCfg.AcceptLanguage,
		Locale:         m.browserCfg.Locale,
		Width:          m.browserCfg.ViewportWidth,
		Height:         m.browserCfg.ViewportHeight,
		Blocked:        m.browserCfg.BlockedResourceTypes,
	}
}

func (m *Manager) launch(ctx context.Context, headless bool, extra []string) (*Session, error) {
	proc, err := m.launcher.Launch(ctx, browser.LaunchOptions{
		Headless:  headless,
		NoSandbox: m.browserCfg.NoSandbox,
		Bin:       m.browserCfg.BrowserBin,
		Proxy:     m.browserCfg.Proxy,
		Flags:     extra,
	})
	if err != nil {
		return nil, err
	}

	bctx, err := proc.NewContext(ctx, m.identity())
	if err != nil {
		_ = proc.Close()
		return nil, err
	}

	page, err := bctx.NewPage(ctx)
	if err != nil {
		_ = bctx.Close()
		_ = proc.Close()
		return nil, err
	}
	return &Session{Process: proc, Context: bctx, Page: page}, nil
}
