package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tracker "github.com/solwatch/tracker"
)

type fakePriceProvider struct {
	name   string
	prices map[string]float64
	err    error
}

func (f *fakePriceProvider) Name() string { return f.name }
func (f *fakePriceProvider) FetchPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	return f.prices, f.err
}

func TestGetPriceStableShortCircuits(t *testing.T) {
	cfg := Config{StableMints: map[string]bool{"USDC": true}, RefreshInterval: time.Minute}
	r := New(cfg, nil, nil, 100, zerolog.Nop())

	usd, ok := r.GetPrice("USDC")
	require.True(t, ok)
	assert.Equal(t, 1.0, usd)
}

func TestGetPriceUnknownMintIsMiss(t *testing.T) {
	r := New(Config{RefreshInterval: time.Minute}, nil, nil, 100, zerolog.Nop())
	_, ok := r.GetPrice("NotTracked")
	assert.False(t, ok)
}

func TestRefreshPricesStopsOnFirstPrimarySuccess(t *testing.T) {
	cfg := Config{PrimaryTokenMint: "PRIMARY", RefreshInterval: time.Minute}
	p1 := &fakePriceProvider{name: "a", prices: map[string]float64{"PRIMARY": 2.5}}
	p2 := &fakePriceProvider{name: "b", prices: map[string]float64{"PRIMARY": 999}}
	r := New(cfg, []PriceProvider{p1, p2}, nil, 100, zerolog.Nop())

	r.RefreshPrices(context.Background(), []string{"PRIMARY"})

	usd, ok := r.GetPrice("PRIMARY")
	require.True(t, ok)
	assert.Equal(t, 2.5, usd, "first successful provider wins, second is never consulted")
}

func TestRefreshPricesFallsThroughOnFailure(t *testing.T) {
	cfg := Config{PrimaryTokenMint: "PRIMARY", RefreshInterval: time.Minute}
	failing := &fakePriceProvider{name: "a", err: assert.AnError}
	working := &fakePriceProvider{name: "b", prices: map[string]float64{"PRIMARY": 3.0}}
	r := New(cfg, []PriceProvider{failing, working}, nil, 100, zerolog.Nop())

	r.RefreshPrices(context.Background(), []string{"PRIMARY"})

	usd, ok := r.GetPrice("PRIMARY")
	require.True(t, ok)
	assert.Equal(t, 3.0, usd)

	health := r.Health()
	assert.Equal(t, 1, health["a"].ConsecutiveFailures)
}

// §8 boundary: a fetched price older than 2x the refresh interval is
// treated as missing.
func TestPriceStaleBeyondTwiceRefreshIntervalIsMissing(t *testing.T) {
	cfg := Config{PrimaryTokenMint: "PRIMARY", RefreshInterval: time.Minute}
	r := New(cfg, nil, nil, 100, zerolog.Nop())

	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }
	r.prices.Set("PRIMARY", tracker.PriceEntry{Mint: "PRIMARY", PriceUSD: 5, UpdatedAt: fakeNow})

	_, ok := r.GetPrice("PRIMARY")
	require.True(t, ok)

	fakeNow = fakeNow.Add(119 * time.Second)
	_, ok = r.GetPrice("PRIMARY")
	assert.True(t, ok)

	fakeNow = fakeNow.Add(2 * time.Second) // now 121s, past 2x60s
	_, ok = r.GetPrice("PRIMARY")
	assert.False(t, ok)
}

func TestGetSymbolReturnsPlaceholderBeforeResolution(t *testing.T) {
	r := New(Config{RefreshInterval: time.Minute}, nil, nil, 100, zerolog.Nop())
	sym := r.GetSymbol("SomeVeryLongMintAddressXYZ")
	assert.Contains(t, sym, "…")
}

func TestEscapeMarkdown(t *testing.T) {
	out := EscapeMarkdown("A_B*C")
	assert.Equal(t, "A\\_B\\*C", out)
}

func TestShortMint(t *testing.T) {
	assert.Equal(t, "short", ShortMint("short"))
	assert.Equal(t, "Abcd…wxyz", ShortMint("Abcdefghijklmnopqrstuvwxyz"))
}
