package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tracker "github.com/solwatch/tracker"
)

type fakeSink struct {
	calls   int
	results []SendResult
	result  SendResult
	retry   time.Duration
}

func (f *fakeSink) Send(ctx context.Context, chatID int64, message string, hints []string) (SendResult, time.Duration, error) {
	f.calls++
	f.results = append(f.results, f.result)
	if f.result == TransientError {
		return f.result, 0, assert.AnError
	}
	return f.result, f.retry, nil
}

type fakeStore struct {
	subs    []*tracker.Subscriber
	blocked []int64
}

func (s *fakeStore) All() []*tracker.Subscriber { return s.subs }
func (s *fakeStore) MarkBlocked(chatID int64)   { s.blocked = append(s.blocked, chatID) }
func (s *fakeStore) SchedulePersist(chatID int64) {}

func renderNoop(ev tracker.SemanticEvent, sub *tracker.Subscriber) (string, []string) {
	return "msg", nil
}

func eligibleSubscriber(chatID int64) *tracker.Subscriber {
	return &tracker.Subscriber{
		ChatID:  chatID,
		Enabled: true,
		Filters: tracker.FilterPrefs{PrimaryBuys: true, PrimaryTradeMin: 0},
	}
}

func TestDispatchSkipsBlockedSubscriber(t *testing.T) {
	sub := eligibleSubscriber(1)
	sub.Blocked = true
	store := &fakeStore{subs: []*tracker.Subscriber{sub}}
	sink := &fakeSink{result: SentOk}
	f := New(Config{MaxRecentAlerts: 20}, sink, store, renderNoop, zerolog.Nop())

	f.Dispatch(context.Background(), tracker.SemanticEvent{Kind: tracker.EventSwap, Direction: tracker.DirectionBuy}, EventContext{IsPrimaryPool: true})

	assert.Equal(t, 0, sink.calls, "blocked subscriber must receive zero sink calls")
}

func TestDispatchSendsToEligibleMatchingSubscriber(t *testing.T) {
	sub := eligibleSubscriber(1)
	store := &fakeStore{subs: []*tracker.Subscriber{sub}}
	sink := &fakeSink{result: SentOk}
	f := New(Config{MaxRecentAlerts: 20}, sink, store, renderNoop, zerolog.Nop())

	f.Dispatch(context.Background(), tracker.SemanticEvent{Kind: tracker.EventSwap, Direction: tracker.DirectionBuy, USD: 5}, EventContext{IsPrimaryPool: true})

	assert.Equal(t, 1, sink.calls)
	assert.Len(t, sub.RecentAlerts, 1)
	assert.Equal(t, 1, sub.Daily.AlertsSent)
}

func TestDeliverBlockedUserClearsEnabledAndSetsBlocked(t *testing.T) {
	sub := eligibleSubscriber(1)
	store := &fakeStore{subs: []*tracker.Subscriber{sub}}
	sink := &fakeSink{result: BlockedUser}
	f := New(Config{MaxRecentAlerts: 20}, sink, store, renderNoop, zerolog.Nop())

	f.deliver(context.Background(), sub, tracker.SemanticEvent{}, "msg", nil)

	assert.False(t, sub.Enabled)
	assert.True(t, sub.Blocked)
	assert.Contains(t, store.blocked, int64(1))
}

func TestDeliverRateLimitedRetriesSameRecipient(t *testing.T) {
	sub := eligibleSubscriber(1)
	store := &fakeStore{subs: []*tracker.Subscriber{sub}}
	sink := &fakeSink{result: RateLimited, retry: time.Millisecond}
	f := New(Config{MaxRecentAlerts: 20}, sink, store, renderNoop, zerolog.Nop())
	f.pacer = func(ctx context.Context, d time.Duration) {}

	// Flip to SentOk after two rate-limited attempts.
	attempts := 0
	f.sink = sinkFunc(func(ctx context.Context, chatID int64, msg string, hints []string) (SendResult, time.Duration, error) {
		attempts++
		if attempts < 3 {
			return RateLimited, time.Millisecond, nil
		}
		return SentOk, 0, nil
	})

	f.deliver(context.Background(), sub, tracker.SemanticEvent{}, "msg", nil)
	assert.Equal(t, 3, attempts)
}

type sinkFunc func(ctx context.Context, chatID int64, message string, hints []string) (SendResult, time.Duration, error)

func (f sinkFunc) Send(ctx context.Context, chatID int64, message string, hints []string) (SendResult, time.Duration, error) {
	return f(ctx, chatID, message, hints)
}

func TestPredicateSwapPrimaryBuy(t *testing.T) {
	u := &tracker.Subscriber{Filters: tracker.FilterPrefs{PrimaryBuys: true, PrimaryTradeMin: 10}}
	ev := tracker.SemanticEvent{Kind: tracker.EventSwap, Direction: tracker.DirectionBuy, USD: 5}
	assert.False(t, Predicate(ev, EventContext{IsPrimaryPool: true}, u), "below threshold must not notify")

	ev.USD = 10
	assert.True(t, Predicate(ev, EventContext{IsPrimaryPool: true}, u))
}

func TestPredicateUnknownNeverMatches(t *testing.T) {
	u := &tracker.Subscriber{Filters: tracker.FilterPrefs{AdminAlerts: true, PrimaryBuys: true, OtherBuys: true}}
	ev := tracker.SemanticEvent{Kind: tracker.EventUnknown}
	assert.False(t, Predicate(ev, EventContext{}, u))
}

func TestWalletAlertPredicate(t *testing.T) {
	u := &tracker.Subscriber{Filters: tracker.FilterPrefs{WalletAlerts: true}, WalletSubscriptions: []string{"WalletA"}}
	assert.True(t, WalletAlertPredicate("WalletA", u))
	assert.False(t, WalletAlertPredicate("WalletB", u))
}

func TestDispatchPacesEvery20Sends(t *testing.T) {
	subs := make([]*tracker.Subscriber, 25)
	for i := range subs {
		subs[i] = eligibleSubscriber(int64(i))
	}
	store := &fakeStore{subs: subs}
	sink := &fakeSink{result: SentOk}
	f := New(Config{MaxRecentAlerts: 20}, sink, store, renderNoop, zerolog.Nop())

	pauses := 0
	f.pacer = func(ctx context.Context, d time.Duration) { pauses++ }

	f.Dispatch(context.Background(), tracker.SemanticEvent{Kind: tracker.EventSwap, Direction: tracker.DirectionBuy, USD: 1}, EventContext{IsPrimaryPool: true})

	require.Equal(t, 25, sink.calls)
	assert.Equal(t, 1, pauses, "20 sends in, exactly one pause for 25 total sends")
}
