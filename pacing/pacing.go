// Package pacing spaces out row processing so the site sees human-like
// traffic.
package pacing

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/engine"
)

// Controller applies the inter-row delay, the periodic longer pause and a
// rate limit on detail-view navigations.
type Controller struct {
	cfg     config.PacingConfig
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// New returns a Controller for cfg. A non-positive NavigationsPerSecond
// disables the navigation limit.
func New(cfg config.PacingConfig) *Controller {
	limit := rate.Inf
	if cfg.NavigationsPerSecond > 0 {
		limit = rate.Limit(cfg.NavigationsPerSecond)
	}
	burst := cfg.NavigationBurst
	if burst < 1 {
		burst = 1
	}
	return &Controller{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		sleep:   engine.Sleep,
	}
}

// AfterRow waits after the row at the 0-based index: the long pause after
// every PauseEvery rows, then the regular row delay.
func (c *Controller) AfterRow(ctx context.Context, index int) error {
	if c.cfg.PauseEvery > 0 && (index+1)%c.cfg.PauseEvery == 0 {
		slog.Info("pausing to avoid detection", "after", index+1, "pause", c.cfg.PauseFor)
		if err := c.sleep(ctx, c.cfg.PauseFor); err != nil {
			return err
		}
	}
	return c.sleep(ctx, c.cfg.RowDelay)
}

// Throttle blocks until another navigation is allowed.
func (c *Controller) Throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}
