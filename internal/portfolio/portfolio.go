// Package portfolio implements the portfolio aggregation engine (spec
// §4.10): per-chat-id sync, coalesced via singleflight, fanning out
// four parallel sub-fetches per wallet, then aggregating across
// wallets with a cost-basis realized-PnL pass.
//
// Grounded on the teacher's Mint/Stake two-phase flow (query on-chain
// state, compute derived amounts, validate, execute) generalized to
// "fetch many wallets' sub-resources in parallel, then compute derived
// portfolio fields".
package portfolio

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/internal/cache"
)

// Config is the portfolio engine's static configuration.
type Config struct {
	AutoSyncInterval time.Duration
}

// WalletBalances is sub-fetch (a): native + fungible token balances,
// each already priced in USD.
type WalletBalances struct {
	SolBalance    float64
	SolValueUSD   float64
	Tokens        []tracker.TokenHolding
	TokenValueUSD float64
}

// AggregatorPnL is sub-fetch (d): aggregator-derived net-worth/PnL,
// when the upstream aggregator supplies one directly.
type AggregatorPnL struct {
	RealizedPnLUSD   *float64
	UnrealizedPnLUSD *float64
}

// DataSource is the per-wallet sub-fetch boundary (spec §4.10 step 3).
type DataSource interface {
	Balances(ctx context.Context, wallet string) (WalletBalances, error)
	RecentTrades(ctx context.Context, wallet string) ([]tracker.Trade, error)
	LPPositions(ctx context.Context, wallet string) ([]tracker.LpPosition, error)
	AggregatorPnL(ctx context.Context, wallet string) (AggregatorPnL, error)
	StakedPositions(ctx context.Context, wallet string) ([]tracker.StakedPosition, error)
}

// Engine runs portfolio syncs.
type Engine struct {
	source DataSource
	log    zerolog.Logger

	balanceCache *cache.Cache // wallet -> WalletBalances, 30s
	stakedCache  *cache.Cache // wallet -> []tracker.StakedPosition, 10min

	group singleflight.Group
	now   func() time.Time
}

// New constructs an Engine.
func New(cfg Config, source DataSource, log zerolog.Logger) *Engine {
	return &Engine{
		source:       source,
		log:          log.With().Str("component", "portfolio").Logger(),
		balanceCache: cache.New(0, 30*time.Second),
		stakedCache:  cache.New(0, 10*time.Minute),
		now:          time.Now,
	}
}

// Sync assembles a snapshot for chatID across wallets. Concurrent calls
// for the same chatID coalesce onto one in-flight sync (spec §4.10
// step 2).
func (e *Engine) Sync(ctx context.Context, chatID int64, wallets []string) (*tracker.PortfolioSnapshot, error) {
	if len(wallets) == 0 {
		return nil, nil
	}

	key := chatKey(chatID)
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.syncOnce(ctx, wallets)
	})
	if err != nil {
		return nil, err
	}
	return v.(*tracker.PortfolioSnapshot), nil
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

type walletResult struct {
	wallet    string
	balances  WalletBalances
	trades    []tracker.Trade
	lps       []tracker.LpPosition
	pnl       AggregatorPnL
	staked    []tracker.StakedPosition
}

func (e *Engine) syncOnce(ctx context.Context, wallets []string) (*tracker.PortfolioSnapshot, error) {
	results := make([]walletResult, len(wallets))

	var wg sync.WaitGroup
	wg.Add(len(wallets))
	for i, w := range wallets {
		go func(idx int, wallet string) {
			defer wg.Done()
			results[idx] = e.fetchWallet(ctx, wallet)
		}(i, w)
	}
	wg.Wait()

	return e.aggregate(results), nil
}

// fetchWallet runs the four (five, including staked) sub-fetches for
// one wallet in parallel (spec §4.10 step 3).
func (e *Engine) fetchWallet(ctx context.Context, wallet string) walletResult {
	res := walletResult{wallet: wallet}

	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		if v, ok := e.balanceCache.Get(wallet); ok {
			res.balances = v.(WalletBalances)
			return
		}
		b, err := e.source.Balances(ctx, wallet)
		if err != nil {
			e.log.Warn().Err(err).Str("wallet", wallet).Msg("balance fetch failed")
			return
		}
		e.balanceCache.Set(wallet, b)
		res.balances = b
	}()

	go func() {
		defer wg.Done()
		trades, err := e.source.RecentTrades(ctx, wallet)
		if err != nil {
			e.log.Warn().Err(err).Str("wallet", wallet).Msg("trade fetch failed")
			return
		}
		res.trades = trades
	}()

	go func() {
		defer wg.Done()
		lps, err := e.source.LPPositions(ctx, wallet)
		if err != nil {
			e.log.Warn().Err(err).Str("wallet", wallet).Msg("lp fetch failed")
			return
		}
		res.lps = lps
	}()

	go func() {
		defer wg.Done()
		pnl, err := e.source.AggregatorPnL(ctx, wallet)
		if err != nil {
			return
		}
		res.pnl = pnl
	}()

	go func() {
		defer wg.Done()
		if v, ok := e.stakedCache.Get(wallet); ok {
			res.staked = v.([]tracker.StakedPosition)
			return
		}
		staked, err := e.source.StakedPositions(ctx, wallet)
		if err != nil {
			e.log.Warn().Err(err).Str("wallet", wallet).Msg("staked fetch failed")
			return
		}
		e.stakedCache.Set(wallet, staked)
		res.staked = staked
	}()

	wg.Wait()
	return res
}

// aggregate implements spec §4.10 steps 4-7: per-wallet computed
// fields, cross-wallet aggregation, total value, realized/unrealized
// PnL.
func (e *Engine) aggregate(results []walletResult) *tracker.PortfolioSnapshot {
	snap := &tracker.PortfolioSnapshot{
		WalletCount: len(results),
		PerWallet:   make(map[string]tracker.WalletBreakdown, len(results)),
		LastSync:    e.now(),
	}

	tokenTotals := make(map[tracker.Mint]*tracker.TokenHolding)
	var allTrades []tracker.Trade

	for _, r := range results {
		lpValue := sumLPValue(r.lps)
		stakedValue := sumStakedValue(r.staked)
		walletValue := r.balances.SolValueUSD + r.balances.TokenValueUSD + lpValue

		realized := RealizedPnL(r.trades)
		if r.pnl.RealizedPnLUSD != nil {
			realized = *r.pnl.RealizedPnLUSD
		}
		var unrealized float64
		if r.pnl.UnrealizedPnLUSD != nil {
			unrealized = *r.pnl.UnrealizedPnLUSD
		}

		buyCount, sellCount := 0, 0
		for _, tr := range r.trades {
			switch tr.Direction {
			case tracker.DirectionBuy:
				buyCount++
			case tracker.DirectionSell:
				sellCount++
			}
			snap.TotalVolumeUSD += tr.USD
		}

		snap.PerWallet[r.wallet] = tracker.WalletBreakdown{
			Wallet:        r.wallet,
			SolValueUSD:   r.balances.SolValueUSD,
			TokenValueUSD: r.balances.TokenValueUSD,
			LpValueUSD:    lpValue,
			StakedUSD:     stakedValue,
			TotalUSD:      walletValue + stakedValue,
			RealizedPnL:   realized,
			UnrealizedPnL: unrealized,
			BuyCount:      buyCount,
			SellCount:     sellCount,
		}

		snap.SolBalance += r.balances.SolBalance
		snap.SolValueUSD += r.balances.SolValueUSD
		snap.TokenValueUSD += r.balances.TokenValueUSD
		snap.LpValueUSD += lpValue
		snap.StakedValueUSD += stakedValue
		snap.RealizedPnLUSD += realized
		snap.UnrealizedPnLUSD += unrealized
		snap.TradeCount += len(r.trades)
		snap.BuyCount += buyCount
		snap.SellCount += sellCount
		snap.LPs = append(snap.LPs, r.lps...)
		snap.Staked = append(snap.Staked, r.staked...)

		for _, tok := range r.balances.Tokens {
			if existing, ok := tokenTotals[tok.Mint]; ok {
				existing.Balance += tok.Balance
				existing.USD += tok.USD
			} else {
				cp := tok
				tokenTotals[tok.Mint] = &cp
			}
		}
		allTrades = append(allTrades, r.trades...)
	}

	snap.TotalValueUSD = snap.SolValueUSD + snap.TokenValueUSD + snap.LpValueUSD + snap.StakedValueUSD

	sort.Slice(allTrades, func(i, j int) bool { return allTrades[i].Timestamp.After(allTrades[j].Timestamp) })
	if len(allTrades) > 100 {
		allTrades = allTrades[:100]
	}
	snap.Trades = allTrades

	tokens := make([]tracker.TokenHolding, 0, len(tokenTotals))
	for _, t := range tokenTotals {
		tokens = append(tokens, *t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].USD > tokens[j].USD })
	if len(tokens) > 20 {
		tokens = tokens[:20]
	}
	snap.Tokens = tokens

	return snap
}

func sumLPValue(lps []tracker.LpPosition) float64 {
	var total float64
	for _, l := range lps {
		total += l.USD
	}
	return total
}

func sumStakedValue(staked []tracker.StakedPosition) float64 {
	var total float64
	for _, s := range staked {
		total += s.USD
	}
	return total
}
