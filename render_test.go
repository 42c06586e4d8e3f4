package tracker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/solwatch/tracker/internal/resolver"
)

func newTestResolver() *resolver.Resolver {
	return resolver.New(resolver.Config{PrimaryTokenMint: "PRIMARYMINT000000", RefreshInterval: time.Minute}, nil, nil, 100, zerolog.Nop())
}

func TestRenderSwapDescribesSideAndPool(t *testing.T) {
	render := NewRenderer(newTestResolver())
	ev := SemanticEvent{
		Kind:      EventSwap,
		PoolID:    "POOL1234567890",
		Direction: DirectionBuy,
		USD:       42.5,
		Amounts:   SwapAmounts{MintIn: "USDCMINT00000000", MintOut: "PRIMARYMINT000000"},
	}

	msg, hints := render(ev, &Subscriber{})

	assert.Contains(t, msg, "Swap on")
	assert.Contains(t, msg, "bought")
	assert.Contains(t, msg, "$42.50")
	assert.Equal(t, []string{"view-tx", "snooze-1h"}, hints)
}

func TestRenderSwapDescribesSellSide(t *testing.T) {
	render := NewRenderer(newTestResolver())
	ev := SemanticEvent{
		Kind:      EventSwap,
		PoolID:    "POOL1",
		Direction: DirectionSell,
		USD:       10,
	}

	msg, _ := render(ev, &Subscriber{})

	assert.Contains(t, msg, "sold")
}

func TestRenderLpAddAndRemove(t *testing.T) {
	render := NewRenderer(newTestResolver())

	addMsg, addHints := render(SemanticEvent{Kind: EventLpAdd, PoolID: "POOL1", Wallet: "WALLET1234567890", USD: 5}, &Subscriber{})
	assert.Contains(t, addMsg, "added liquidity to")
	assert.Equal(t, []string{"view-tx", "add-to-watchlist"}, addHints)

	removeMsg, removeHints := render(SemanticEvent{Kind: EventLpRemove, PoolID: "POOL1", Wallet: "WALLET1234567890", USD: 5}, &Subscriber{})
	assert.Contains(t, removeMsg, "removed liquidity from")
	assert.Equal(t, []string{"view-tx"}, removeHints)
}

func TestRenderPoolInitAndClose(t *testing.T) {
	render := NewRenderer(newTestResolver())

	initMsg, initHints := render(SemanticEvent{Kind: EventPoolInit, PoolID: "POOL1"}, &Subscriber{})
	assert.Contains(t, initMsg, "New pool initialized")
	assert.Equal(t, []string{"add-to-watchlist"}, initHints)

	closeMsg, closeHints := render(SemanticEvent{Kind: EventClosePool, PoolID: "POOL1"}, &Subscriber{})
	assert.Contains(t, closeMsg, "Pool closed")
	assert.Nil(t, closeHints)
}

func TestRenderUnknownWithWalletFallsBackToWalletActivity(t *testing.T) {
	render := NewRenderer(newTestResolver())

	msg, hints := render(SemanticEvent{Kind: EventUnknown, Wallet: "WALLET1234567890", Sig: "SIGNATURE1234567890"}, &Subscriber{})

	assert.Contains(t, msg, "Tracked wallet")
	assert.Equal(t, []string{"view-tx"}, hints)
}

func TestRenderUnknownWithoutWalletIsGenericActivity(t *testing.T) {
	render := NewRenderer(newTestResolver())

	msg, hints := render(SemanticEvent{Kind: EventUnknown, Sig: "SIGNATURE1234567890"}, &Subscriber{})

	assert.Contains(t, msg, "Activity detected")
	assert.Nil(t, hints)
}

func TestShortPoolHandlesEmptyPoolID(t *testing.T) {
	assert.Equal(t, "unknown pool", shortPool(SemanticEvent{}, newTestResolver()))
}
