// Package webhook notifies an HTTP endpoint when a run finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/recoveryfinder/engine"
	"github.com/use-agent/recoveryfinder/models"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Finder-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string           `json:"type"`
	RunID     string           `json:"run_id"`
	Timestamp int64            `json:"timestamp"`
	Data      models.RunStatus `json:"data"`
}

// NewRunEvent builds the terminal event for status.
func NewRunEvent(status models.RunStatus) *Event {
	typ := EventRunCompleted
	if status.State == models.StateFailed {
		typ = EventRunFailed
	}
	return &Event{Type: typ, RunID: status.RunID, Timestamp: time.Now().Unix(), Data: status}
}

// Notifier delivers events to one endpoint with retries.
type Notifier struct {
	url    string
	secret string
	client *http.Client

	// Delays is waited before each attempt; its length is the attempt count.
	Delays []time.Duration
}

// NewNotifier returns a Notifier, or nil when url is empty.
func NewNotifier(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		Delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Notify delivers event, retrying per Delays. It returns the last error once
// every attempt has failed. A nil Notifier does nothing.
func (n *Notifier) Notify(ctx context.Context, event *Event) error {
	if n == nil {
		return nil
	}
	var lastErr error
	for attempt, delay := range n.Delays {
		if err := engine.Sleep(ctx, delay); err != nil {
			return err
		}
		err := n.deliver(ctx, event)
		if err == nil {
			slog.Info("webhook delivered",
				"url", n.url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
			)
			return nil
		}
		lastErr = err
		slog.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"run_id", event.RunID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries", "url", n.url, "event", event.Type, "run_id", event.RunID)
	return lastErr
}

func (n *Notifier) deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RecoveryFinder-Webhook/1.0")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
