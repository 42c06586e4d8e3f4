package feeds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solwatch/tracker/internal/dedup"
	"github.com/solwatch/tracker/pkg/wsfeed"
)

// WalletFeedConfig is the wallet-activity feed's static configuration
// (spec §4.6 "RPC feed: standard JSON-RPC logsSubscribe").
type WalletFeedConfig struct {
	RPCWSURL string
}

// wsConn is the narrow slice of *wsfeed.Feed that WalletFeed depends on,
// small enough to stub in tests without opening a real socket.
type wsConn interface {
	Connected() bool
	Send(msg []byte) error
}

// WalletFeed tracks logsSubscribe subscriptions for the union of every
// subscriber's WalletSubscriptions. The provider has no per-mention
// unsubscribe, so a wallet removed from tracking is filtered
// consumer-side via the dropped set rather than actually unsubscribed.
type WalletFeed struct {
	cfg      WalletFeedConfig
	dedupSet *dedup.Set
	handler  Handler
	log      zerolog.Logger
	feed     wsConn
	runner   *wsfeed.Feed
	now      func() time.Time

	mu      sync.Mutex
	current map[string]bool // desired subscriptions
	dropped map[string]bool // removed, filtered consumer-side
}

// NewWalletFeed constructs a WalletFeed.
func NewWalletFeed(cfg WalletFeedConfig, dedupSet *dedup.Set, handler Handler, log zerolog.Logger) *WalletFeed {
	f := &WalletFeed{
		cfg:      cfg,
		dedupSet: dedupSet,
		handler:  handler,
		log:      log.With().Str("component", "walletfeed").Logger(),
		now:      time.Now,
		current:  make(map[string]bool),
		dropped:  make(map[string]bool),
	}
	f.runner = wsfeed.New(cfg.RPCWSURL, f.log, f.onOpen)
	f.feed = f.runner
	return f
}

// Run starts the WebSocket loop; it stops when ctx is cancelled.
func (f *WalletFeed) Run(ctx context.Context) {
	frames := f.runner.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			f.handleFrame(ctx, frame)
		}
	}
}

// onOpen fully reinitializes subscriptions for every currently-desired
// wallet (spec §4.6 "On open, fully reinitializes subscriptions").
func (f *WalletFeed) onOpen(ctx context.Context, send func([]byte) error) error {
	f.mu.Lock()
	wallets := make([]string, 0, len(f.current))
	for w := range f.current {
		wallets = append(wallets, w)
	}
	f.dropped = make(map[string]bool)
	f.mu.Unlock()

	for _, w := range wallets {
		if err := sendLogsSubscribe(send, w); err != nil {
			f.log.Warn().Err(err).Str("wallet", w).Msg("subscribe send failed on open")
		}
	}
	return nil
}

// Refresh sends logsSubscribe only for newly-added wallets (a delta),
// and marks removed wallets as dropped for consumer-side filtering
// (spec §4.6 "refresh() only sends deltas"). When connected, the delta
// is sent immediately. When the socket is not open, Refresh only records
// the desired set and does not trigger a reconnect; the wsfeed loop
// reconnects on its own backoff schedule and onOpen then subscribes
// every wallet in the set.
func (f *WalletFeed) Refresh(wallets []string) {
	f.mu.Lock()
	newSet := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		newSet[w] = true
	}

	var added []string
	for w := range newSet {
		if !f.current[w] {
			added = append(added, w)
		}
	}
	for w := range f.current {
		if !newSet[w] {
			f.dropped[w] = true
		}
	}
	f.current = newSet
	connected := f.feed.Connected()
	f.mu.Unlock()

	if !connected {
		// The socket is down; onOpen will fully resubscribe once it
		// reconnects, so there is nothing more to do here.
		return
	}
	for _, w := range added {
		if err := sendLogsSubscribe(f.feed.Send, w); err != nil {
			f.log.Warn().Err(err).Str("wallet", w).Msg("delta subscribe failed")
		}
	}
}

func sendLogsSubscribe(send func([]byte) error, wallet string) error {
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{wallet}},
			map[string]any{"commitment": "confirmed"},
		},
	})
	if err != nil {
		return err
	}
	return send(msg)
}

func (f *WalletFeed) handleFrame(ctx context.Context, frame []byte) {
	var fields map[string]any
	if err := json.Unmarshal(frame, &fields); err != nil {
		f.log.Debug().Err(err).Msg("dropping unparseable wallet frame")
		return
	}
	if isHeartbeat(fields) {
		return
	}

	wallet := walletFromNotification(fields)
	f.mu.Lock()
	isDropped := wallet != "" && f.dropped[wallet]
	f.mu.Unlock()
	if isDropped {
		return
	}

	sig := sigFromFields(fields)
	if sig == "" {
		return
	}
	if f.dedupSet.SeenOrAdd(sig, f.now()) {
		return
	}
	f.handler(ctx, RawMessage{Source: "wallet", Fields: fields, Sig: sig})
}

func isHeartbeat(fields map[string]any) bool {
	if _, ok := fields["result"]; ok {
		if _, hasMethod := fields["method"]; !hasMethod {
			return true // subscription ack, not a notification
		}
	}
	method, _ := fields["method"].(string)
	return method == "" && fields["params"] == nil && fields["error"] == nil
}

func walletFromNotification(fields map[string]any) string {
	if v, ok := fields["wallet"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
