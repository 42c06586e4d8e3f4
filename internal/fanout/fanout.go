// Package fanout implements the subscriber filter and fan-out layer
// (spec §4.9): for each classified SemanticEvent, scan subscribers,
// evaluate the per-event-type predicate, and send through the
// NotificationSink at a paced rate, handling rate-limit and
// permanent-block outcomes.
//
// Grounded on the teacher's Send-then-WaitForTransaction two-step
// confirm loop (blackhole.go Swap/Mint/Stake/Unstake): enqueue, await
// confirmation, branch on three outcome classes. Here the three classes
// are success / rate-limited-retry / permanent failure rather than
// tx-confirmed / tx-pending / tx-failed.
package fanout

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	tracker "github.com/solwatch/tracker"
)

// Config is the fan-out layer's static configuration.
type Config struct {
	MaxRecentAlerts int
}

// SendResult is the outcome of one NotificationSink.Send call.
type SendResult int

const (
	SentOk SendResult = iota
	RateLimited
	BlockedUser
	TransientError
)

// NotificationSink is the downstream boundary (spec §6): renders and
// delivers one message to one chat.
type NotificationSink interface {
	Send(ctx context.Context, chatID int64, message string, actionHints []string) (SendResult, time.Duration, error)
}

// Renderer turns a SemanticEvent into the pre-rendered text + optional
// action hints a subscriber sees. Kept separate from the predicate
// table so message copy can evolve independently of eligibility rules.
type Renderer func(ev tracker.SemanticEvent, sub *tracker.Subscriber) (string, []string)

// SubscriberStore is the minimal read/write surface fan-out needs over
// the subscriber map (spec §5 "single writer per subscriber or a
// per-subscriber lock").
type SubscriberStore interface {
	All() []*tracker.Subscriber
	MarkBlocked(chatID int64)
	SchedulePersist(chatID int64)
}

// Fanout evaluates and delivers one SemanticEvent to every eligible
// subscriber.
type Fanout struct {
	cfg      Config
	sink     NotificationSink
	store    SubscriberStore
	render   Renderer
	log      zerolog.Logger
	now      func() time.Time
	pacer    func(ctx context.Context, d time.Duration)
}

// New constructs a Fanout.
func New(cfg Config, sink NotificationSink, store SubscriberStore, render Renderer, log zerolog.Logger) *Fanout {
	return &Fanout{
		cfg:    cfg,
		sink:   sink,
		store:  store,
		render: render,
		log:    log.With().Str("component", "fanout").Logger(),
		now:    time.Now,
		pacer:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// EventContext identifies where an event occurred, needed by the per-event
// predicates (primary pool vs. other pool, wallet match, watchlist
// match).
type EventContext struct {
	IsPrimaryPool    bool
	WalletIsTracked  bool
	PoolInWatchlist  bool
	TokenInTracked   bool
}

// Dispatch evaluates ev against every subscriber and sends to every
// eligible recipient, pacing 100ms every 20 sends (spec §4.9 "Send
// contract").
func (f *Fanout) Dispatch(ctx context.Context, ev tracker.SemanticEvent, evctx EventContext) {
	now := f.now()
	sent := 0

	for _, sub := range f.store.All() {
		if !sub.Eligible(now) {
			continue
		}
		matched := Predicate(ev, evctx, sub)
		if ev.IsUnknown() && ev.Wallet != "" {
			// Wallet-feed events carry no Kind; they match on the wallet.
			matched = WalletAlertPredicate(ev.Wallet, sub)
		}
		if !matched {
			continue
		}

		message, hints := f.render(ev, sub)
		f.deliver(ctx, sub, ev, message, hints)

		sent++
		if sent%20 == 0 {
			f.pacer(ctx, 100*time.Millisecond)
		}
	}
}

// SendDirect delivers a pre-rendered message outside the per-event
// predicate path (used by the daily digest job, which addresses
// subscribers directly rather than reacting to a SemanticEvent).
func (f *Fanout) SendDirect(ctx context.Context, chatID int64, message string, hints []string) {
	for {
		result, retryAfter, err := f.sink.Send(ctx, chatID, message, hints)
		if err != nil && result != RateLimited {
			f.log.Warn().Err(err).Int64("chat_id", chatID).Msg("direct send failed")
			return
		}
		switch result {
		case SentOk, TransientError:
			return
		case RateLimited:
			f.pacer(ctx, retryAfter)
			continue
		case BlockedUser:
			f.store.MarkBlocked(chatID)
			f.store.SchedulePersist(chatID)
			return
		}
	}
}

// deliver sends to one subscriber, handling rate-limit retry and
// permanent-block outcomes, then records the success bookkeeping.
func (f *Fanout) deliver(ctx context.Context, sub *tracker.Subscriber, ev tracker.SemanticEvent, message string, hints []string) {
	for {
		result, retryAfter, err := f.sink.Send(ctx, sub.ChatID, message, hints)
		if err != nil && result != RateLimited {
			f.log.Warn().Err(err).Int64("chat_id", sub.ChatID).Msg("sink send failed")
			return
		}

		switch result {
		case SentOk:
			f.recordSuccess(sub, ev)
			return
		case RateLimited:
			f.pacer(ctx, retryAfter)
			continue // retry the same recipient
		case BlockedUser:
			sub.Enabled = false
			sub.Blocked = true
			f.store.MarkBlocked(sub.ChatID)
			f.store.SchedulePersist(sub.ChatID)
			return
		case TransientError:
			return
		}
	}
}

func (f *Fanout) recordSuccess(sub *tracker.Subscriber, ev tracker.SemanticEvent) {
	now := f.now()
	sub.PushRecentAlert(tracker.RecentAlert{Sig: ev.Sig, Kind: ev.Kind, USD: ev.USD, Timestamp: now}, f.cfg.MaxRecentAlerts)
	sub.Daily.AlertsSent++
	sub.Daily.VolumeUSDSeen += ev.USD
	sub.Lifetime.AlertsSent++
	sub.Lifetime.VolumeUSDSeen += ev.USD
	f.store.SchedulePersist(sub.ChatID)
}
