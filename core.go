package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/solwatch/tracker/internal/db"
	"github.com/solwatch/tracker/internal/decoder"
	"github.com/solwatch/tracker/internal/dedup"
	"github.com/solwatch/tracker/internal/fanout"
	"github.com/solwatch/tracker/internal/feeds"
	"github.com/solwatch/tracker/internal/portfolio"
	"github.com/solwatch/tracker/internal/registry"
	"github.com/solwatch/tracker/internal/resolver"
	"github.com/solwatch/tracker/internal/scheduler"
	"github.com/solwatch/tracker/internal/valuation"
	"github.com/solwatch/tracker/pkg/httpclient"
)

// CoreConfig gathers every collaborator's translated configuration plus
// the subscriber-invariant limits (§3 invariant 4, §6 configuration
// table). configs.Config.To*Config() methods build these pieces.
type CoreConfig struct {
	Decoder   decoder.Config
	Registry  registry.Config
	Resolver  resolver.Config
	Fanout    fanout.Config
	Portfolio portfolio.Config
	Scheduler scheduler.Config

	DexAPIBaseURL string

	MaxWallets      int
	MaxWatchlist    int
	MaxRecentAlerts int
	SeenTxCapacity  int
}

// Core owns every long-lived collaborator in the process (§9 "Global
// mutable state... Replace it with a Core value"). It is constructed
// once at process start; every goroutine (feed readers, scheduled jobs,
// command handlers) holds a reference to the same Core.
//
// Grounded on the teacher's Blackhole struct: one struct holding a
// private key, an address, a tx listener, and a map of clients — the
// single-owner shape generalized here to eleven named collaborators.
type Core struct {
	cfg CoreConfig
	log zerolog.Logger

	Registry  *registry.Registry
	Resolver  *resolver.Resolver
	Decoder   *decoder.Decoder
	Dedup     *dedup.Store
	Fanout    *fanout.Fanout
	Portfolio *portfolio.Engine
	Scheduler *scheduler.Scheduler
	Store     *db.Store

	DexFeed    *feeds.DexFeed
	WalletFeed *feeds.WalletFeed

	dexAPI    *httpclient.Client
	dexHealth atomic.Pointer[ApiHealth]

	mu          sync.RWMutex
	subscribers map[int64]*Subscriber

	now func() time.Time
}

// NewCore wires every collaborator except the two live feeds, which the
// caller builds afterwards and assigns to DexFeed and WalletFeed. Nothing
// is started here; StartScheduledJobs starts the periodic jobs.
func NewCore(
	cfg CoreConfig,
	store *db.Store,
	reg *registry.Registry,
	res *resolver.Resolver,
	dec *decoder.Decoder,
	dexAPI *httpclient.Client,
	sink fanout.NotificationSink,
	render fanout.Renderer,
	source portfolio.DataSource,
	log zerolog.Logger,
) *Core {
	c := &Core{
		cfg:         cfg,
		log:         log.With().Str("component", "core").Logger(),
		Registry:    reg,
		Resolver:    res,
		Decoder:     dec,
		Dedup:       dedup.NewStore(cfg.SeenTxCapacity),
		Portfolio:   portfolio.New(cfg.Portfolio, source, log),
		Scheduler:   scheduler.New(log),
		Store:       store,
		dexAPI:      dexAPI,
		subscribers: make(map[int64]*Subscriber),
		now:         time.Now,
	}
	c.Fanout = fanout.New(cfg.Fanout, sink, c, render, log)
	c.dexHealth.Store(&ApiHealth{Status: HealthUnknown})
	return c
}

// --- fanout.SubscriberStore ---

// All returns every subscriber. Safe for concurrent use; the caller
// must not retain the slice across a Load/bootstrap reset.
func (c *Core) All() []*Subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Subscriber, 0, len(c.subscribers))
	for _, s := range c.subscribers {
		out = append(out, s)
	}
	return out
}

// MarkBlocked marks chatID's subscriber as blocked in memory: Enabled is
// cleared and Blocked is set. fanout.deliver has already flipped both on
// the struct before calling this, so there the call changes nothing;
// fanout.SendDirect does not flip them itself and relies on this hook.
func (c *Core) MarkBlocked(chatID int64) {
	c.mu.RLock()
	sub, ok := c.subscribers[chatID]
	c.mu.RUnlock()
	if ok {
		sub.Enabled = false
		sub.Blocked = true
	}
}

// SchedulePersist marks chatID dirty for the next debounced flush
// (§6 "Writes are transactional per subscriber and batched when
// debounced").
func (c *Core) SchedulePersist(chatID int64) {
	c.mu.RLock()
	sub, ok := c.subscribers[chatID]
	c.mu.RUnlock()
	if ok {
		c.Store.MarkDirty(sub)
	}
}

// Bootstrap loads every subscriber row and every unexpired seen-tx
// signature into memory (process start).
func (c *Core) Bootstrap(ctx context.Context) error {
	subs, err := c.Store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}
	c.mu.Lock()
	for _, s := range subs {
		c.subscribers[s.ChatID] = s
	}
	c.mu.Unlock()

	sigs, err := c.Store.LoadSeenTxs(ctx, c.now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("load seen txs: %w", err)
	}
	now := c.now()
	for _, sig := range sigs {
		c.Dedup.DexTxs.SeenOrAdd(sig, now)
		c.Dedup.WalletTxs.SeenOrAdd(sig, now)
	}
	return nil
}

// GetSubscriber returns the subscriber for chatID, creating a fresh
// default-enabled record on first contact (§3 "Onboarded defaults").
func (c *Core) GetSubscriber(chatID int64) *Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subscribers[chatID]; ok {
		sub.LastActive = c.now()
		return sub
	}
	sub := &Subscriber{
		ChatID:     chatID,
		CreatedAt:  c.now(),
		LastActive: c.now(),
		Enabled:    true,
		Filters:    FilterPrefs{Enabled: true, PrimaryBuys: true, PrimarySells: true},
	}
	c.subscribers[chatID] = sub
	return sub
}

// --- Command API (§6) ---

// Toggle implements toggle(chat_id, field).
func (c *Core) Toggle(chatID int64, field ToggleField) bool {
	sub := c.GetSubscriber(chatID)
	ok := sub.Filters.Toggle(field)
	if ok {
		if field == FieldEnabled {
			sub.Enabled = sub.Filters.Enabled
		}
		c.SchedulePersist(chatID)
	}
	return ok
}

// SetThreshold implements set_threshold(chat_id, which, amount_usd).
func (c *Core) SetThreshold(chatID int64, which ThresholdKind, amountUSD float64) bool {
	sub := c.GetSubscriber(chatID)
	switch which {
	case ThresholdPrimary:
		sub.Filters.PrimaryTradeMin = amountUSD
	case ThresholdOtherTrade:
		sub.Filters.OtherTradeMin = amountUSD
	case ThresholdOtherLp:
		sub.Filters.OtherLpMin = amountUSD
	default:
		return false
	}
	c.SchedulePersist(chatID)
	return true
}

// SetSnooze implements set_snooze(chat_id, minutes). minutes <= 0 clears
// the snooze.
func (c *Core) SetSnooze(chatID int64, minutes int) {
	sub := c.GetSubscriber(chatID)
	if minutes <= 0 {
		sub.SnoozedUntil = time.Time{}
	} else {
		sub.SnoozedUntil = c.now().Add(time.Duration(minutes) * time.Minute)
	}
	c.SchedulePersist(chatID)
}

// SetQuietHours implements set_quiet_hours(chat_id, start_utc, end_utc).
// Both nil clears the window.
func (c *Core) SetQuietHours(chatID int64, start, end *int) bool {
	if (start == nil) != (end == nil) {
		return false
	}
	if start != nil && (*start < 0 || *start > 23 || *end < 0 || *end > 23) {
		return false
	}
	sub := c.GetSubscriber(chatID)
	sub.QuietStart = start
	sub.QuietEnd = end
	c.SchedulePersist(chatID)
	return true
}

// AddWallet implements add_wallet(chat_id, address), capped at
// cfg.MaxWallets (§3 invariant 4).
func (c *Core) AddWallet(chatID int64, address string) bool {
	sub := c.GetSubscriber(chatID)
	if containsString(sub.WalletSubscriptions, address) {
		return true
	}
	if len(sub.WalletSubscriptions) >= c.cfg.MaxWallets {
		return false
	}
	sub.WalletSubscriptions = append(sub.WalletSubscriptions, address)
	c.SchedulePersist(chatID)
	c.refreshWalletFeed()
	return true
}

// RemoveWallet implements remove_wallet(chat_id, address).
func (c *Core) RemoveWallet(chatID int64, address string) bool {
	sub := c.GetSubscriber(chatID)
	removed, newList := removeString(sub.WalletSubscriptions, address)
	if !removed {
		return false
	}
	sub.WalletSubscriptions = newList
	c.SchedulePersist(chatID)
	c.refreshWalletFeed()
	return true
}

// AddPortfolioWallet implements add_portfolio_wallet(chat_id, address),
// capped at 5 (§6).
func (c *Core) AddPortfolioWallet(chatID int64, address string) bool {
	sub := c.GetSubscriber(chatID)
	if containsString(sub.PortfolioWallets, address) {
		return true
	}
	if len(sub.PortfolioWallets) >= 5 {
		return false
	}
	sub.PortfolioWallets = append(sub.PortfolioWallets, address)
	c.SchedulePersist(chatID)
	return true
}

// RemovePortfolioWallet implements remove_portfolio_wallet(chat_id, address).
func (c *Core) RemovePortfolioWallet(chatID int64, address string) bool {
	sub := c.GetSubscriber(chatID)
	removed, newList := removeString(sub.PortfolioWallets, address)
	if !removed {
		return false
	}
	sub.PortfolioWallets = newList
	c.SchedulePersist(chatID)
	return true
}

// AddWatchlistPool implements add_watchlist_pool(chat_id, id). The
// combined watchlist+tracked-tokens count is capped at cfg.MaxWatchlist.
func (c *Core) AddWatchlistPool(chatID int64, poolID string) bool {
	sub := c.GetSubscriber(chatID)
	if containsString(sub.Watchlist, poolID) {
		return true
	}
	if len(sub.Watchlist)+len(sub.TrackedTokens) >= c.cfg.MaxWatchlist {
		return false
	}
	sub.Watchlist = append(sub.Watchlist, poolID)
	c.SchedulePersist(chatID)
	return true
}

// RemoveWatchlistPool implements remove_watchlist_pool(chat_id, id).
func (c *Core) RemoveWatchlistPool(chatID int64, poolID string) bool {
	sub := c.GetSubscriber(chatID)
	removed, newList := removeString(sub.Watchlist, poolID)
	if !removed {
		return false
	}
	sub.Watchlist = newList
	c.SchedulePersist(chatID)
	return true
}

// AddWatchlistToken implements add_watchlist_token(chat_id, mint).
func (c *Core) AddWatchlistToken(chatID int64, mint Mint) bool {
	sub := c.GetSubscriber(chatID)
	for _, m := range sub.TrackedTokens {
		if m == mint {
			return true
		}
	}
	if len(sub.Watchlist)+len(sub.TrackedTokens) >= c.cfg.MaxWatchlist {
		return false
	}
	sub.TrackedTokens = append(sub.TrackedTokens, mint)
	c.SchedulePersist(chatID)
	return true
}

// RemoveWatchlistToken implements remove_watchlist_token(chat_id, mint).
func (c *Core) RemoveWatchlistToken(chatID int64, mint Mint) bool {
	sub := c.GetSubscriber(chatID)
	idx := -1
	for i, m := range sub.TrackedTokens {
		if m == mint {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	sub.TrackedTokens = append(sub.TrackedTokens[:idx], sub.TrackedTokens[idx+1:]...)
	c.SchedulePersist(chatID)
	return true
}

// SyncPortfolio implements sync_portfolio(chat_id).
func (c *Core) SyncPortfolio(ctx context.Context, chatID int64) (*PortfolioSnapshot, error) {
	sub := c.GetSubscriber(chatID)
	wallets := sub.PortfolioWallets
	snap, err := c.Portfolio.Sync(ctx, chatID, wallets)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		sub.Portfolio = snap
		c.SchedulePersist(chatID)
	}
	return snap, nil
}

func (c *Core) refreshWalletFeed() {
	if c.WalletFeed == nil {
		return
	}
	c.WalletFeed.Refresh(c.allTrackedWallets())
}

// RefreshWalletFeed re-syncs WalletFeed's subscriptions to the union of
// every subscriber's tracked wallets. Exposed for cmd/tracker/main.go to
// call once right after WalletFeed is constructed and assigned.
func (c *Core) RefreshWalletFeed() {
	c.refreshWalletFeed()
}

func (c *Core) allTrackedWallets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, sub := range c.subscribers {
		for _, w := range sub.WalletSubscriptions {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) (bool, []string) {
	for i, v := range list {
		if v == s {
			return true, append(list[:i:i], list[i+1:]...)
		}
	}
	return false, list
}

// --- Read-only queries ---

// GetPool implements get_pool(id).
func (c *Core) GetPool(id string) (Pool, bool) {
	snap := c.Registry.Snapshot()
	p, ok := snap.ByID[id]
	return p, ok
}

// SearchPools implements search_pools(substring): a case-insensitive
// substring match over each pool's derived pair name.
func (c *Core) SearchPools(substring string) []Pool {
	snap := c.Registry.Snapshot()
	needle := strings.ToLower(substring)
	var out []Pool
	for _, p := range snap.Pools {
		if strings.Contains(strings.ToLower(p.PairName), needle) {
			out = append(out, p)
		}
	}
	return out
}

// TopPoolsByVolume implements top_pools_by_volume(n): ranks the current
// snapshot by 24h USD volume, refreshed into each Pool's Volume24hUSD by
// the scheduler's volume_refresh job (spec §4.11). A pool the volume
// table hasn't reported on yet (just-discovered, or the job hasn't run)
// falls back to TVL as a liquidity-weighted proxy.
func (c *Core) TopPoolsByVolume(n int) []Pool {
	snap := c.Registry.Snapshot()
	pools := append([]Pool(nil), snap.Pools...)
	sort.Slice(pools, func(i, j int) bool {
		return volumeOrTVL(pools[i]) > volumeOrTVL(pools[j])
	})
	if n > 0 && len(pools) > n {
		pools = pools[:n]
	}
	return pools
}

func volumeOrTVL(p Pool) float64 {
	if p.Volume24hUSD != nil {
		return *p.Volume24hUSD
	}
	return tvlOrZero(p)
}

func tvlOrZero(p Pool) float64 {
	if p.TVL == nil {
		return 0
	}
	return *p.TVL
}

// Leaderboard implements leaderboard(pool_id, limit): proxies the DEX
// API's per-pool trades endpoint, ranking distinct wallets by summed USD
// volume. It takes a pool id only; a mint is not resolved to its pools.
func (c *Core) Leaderboard(ctx context.Context, poolID string, limit int) ([]WalletBreakdown, error) {
	var raw []struct {
		Wallet string  `json:"wallet"`
		USD    float64 `json:"usd"`
		Side   string  `json:"side"`
	}
	url := fmt.Sprintf("%s/trades/%s?limit=200", c.cfg.DexAPIBaseURL, poolID)
	if err := c.dexAPI.FetchJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("leaderboard fetch: %w", err)
	}

	totals := make(map[string]*WalletBreakdown)
	for _, t := range raw {
		wb, ok := totals[t.Wallet]
		if !ok {
			wb = &WalletBreakdown{Wallet: t.Wallet}
			totals[t.Wallet] = wb
		}
		wb.TotalUSD += t.USD
		switch strings.ToLower(t.Side) {
		case "buy":
			wb.BuyCount++
		case "sell":
			wb.SellCount++
		}
	}
	out := make([]WalletBreakdown, 0, len(totals))
	for _, wb := range totals {
		out = append(out, *wb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalUSD > out[j].TotalUSD })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Candle is one OHLC bucket for candles(pool_id, tf, limit).
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VolumeUSD float64
}

// Candles implements candles(pool_id, tf, limit).
func (c *Core) Candles(ctx context.Context, poolID, timeframe string, limit int) ([]Candle, error) {
	var raw []struct {
		Timestamp int64   `json:"timestamp"`
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Close     float64 `json:"close"`
		VolumeUSD float64 `json:"volume_usd"`
	}
	url := fmt.Sprintf("%s/candles/%s?tf=%s&limit=%d", c.cfg.DexAPIBaseURL, poolID, timeframe, limit)
	if err := c.dexAPI.FetchJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("candles fetch: %w", err)
	}
	out := make([]Candle, len(raw))
	for i, r := range raw {
		out[i] = Candle{
			Timestamp: time.Unix(r.Timestamp, 0),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			VolumeUSD: r.VolumeUSD,
		}
	}
	return out, nil
}

// LiquidityPoint is one sample of liquidity_history(pool_id, limit).
type LiquidityPoint struct {
	Timestamp time.Time
	TVL       float64
}

// LiquidityHistory implements liquidity_history(pool_id, limit).
func (c *Core) LiquidityHistory(ctx context.Context, poolID string, limit int) ([]LiquidityPoint, error) {
	var raw []struct {
		Timestamp int64   `json:"timestamp"`
		TVL       float64 `json:"tvl"`
	}
	url := fmt.Sprintf("%s/pool/%s?history=tvl&limit=%d", c.cfg.DexAPIBaseURL, poolID, limit)
	if err := c.dexAPI.FetchJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("liquidity history fetch: %w", err)
	}
	out := make([]LiquidityPoint, len(raw))
	for i, r := range raw {
		out[i] = LiquidityPoint{Timestamp: time.Unix(r.Timestamp, 0), TVL: r.TVL}
	}
	return out, nil
}

// --- Ingestion pipeline: [Live Feeds] -> [Decoder] -> [Dedup] -> [Valuation] -> [Fan-Out] ---

// HandleDexMessage is the DexFeed Handler (spec's data-flow diagram:
// Live Feeds -> Decoder -> Dedup -> USD Valuation -> Fan-Out). Dedup
// against DexTxs already happened in the feed's own handleFrame before
// this Handler was invoked — DexFeed is constructed with c.Dedup.DexTxs
// as its dedup set, so there is exactly one dedup check per signature,
// not a second one here.
func (c *Core) HandleDexMessage(ctx context.Context, msg feeds.RawMessage) {
	ev := c.Decoder.Decode(msg.Fields, msg.InstructionData, msg.Logs)
	if ev.IsUnknown() {
		return
	}

	snap := c.Registry.Snapshot()
	pool, hasPool := snap.ByID[ev.PoolID]
	c.valueEvent(&ev, pool)

	evctx := fanout.EventContext{IsPrimaryPool: hasPool && pool.IsPrimary}
	if ev.Wallet != "" {
		evctx.WalletIsTracked = c.walletIsTracked(ev.Wallet)
	}
	evctx.PoolInWatchlist, evctx.TokenInTracked = c.poolOrTokenWatched(ev.PoolID, pool)

	c.Fanout.Dispatch(ctx, ev, evctx)
}

// HandleWalletMessage is the WalletFeed Handler.
func (c *Core) HandleWalletMessage(ctx context.Context, msg feeds.RawMessage) {
	ev := SemanticEvent{
		Kind:      EventUnknown,
		Sig:       msg.Sig,
		Timestamp: c.now(),
		Wallet:    walletFromRawMessage(msg),
	}
	if ev.Wallet == "" {
		return
	}
	c.Fanout.Dispatch(ctx, ev, fanout.EventContext{WalletIsTracked: true})
}

func walletFromRawMessage(msg feeds.RawMessage) string {
	if v, ok := msg.Fields["wallet"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// valueEvent computes ev.USD following spec §4.8's fallback chain. pool
// supplies the base/quote mints for priorities (b)/(c); it is the zero
// value when ev.PoolID matched no known pool, in which case those two
// fallbacks are skipped. Priority (d), the pool spot price, is never
// supplied here (TradeInput.PoolSpotPrice stays nil), so without a known
// pool only the explicit-USD priority remains.
func (c *Core) valueEvent(ev *SemanticEvent, pool Pool) {
	if ev.Kind != EventSwap {
		return
	}
	usd, ok := valuation.TradeUSD(valuation.TradeInput{
		ExplicitUSD: ev.ExplicitUSD,
		MintIn:      ev.Amounts.MintIn,
		MintOut:     ev.Amounts.MintOut,
		AmountIn:    ev.Amounts.In,
		AmountOut:   ev.Amounts.Out,
		DecIn:       ev.Amounts.DecIn,
		DecOut:      ev.Amounts.DecOut,
		BaseMint:    pool.Base,
		QuoteMint:   pool.Quote,
	}, func(mint string) (float64, bool) { return c.Resolver.GetPrice(mint) })
	if ok {
		ev.USD = usd
	}
}

func (c *Core) walletIsTracked(wallet string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subscribers {
		if containsString(sub.WalletSubscriptions, wallet) {
			return true
		}
	}
	return false
}

func (c *Core) poolOrTokenWatched(poolID string, pool Pool) (poolWatched, tokenWatched bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subscribers {
		if containsString(sub.Watchlist, poolID) {
			poolWatched = true
		}
		for _, m := range sub.TrackedTokens {
			if m == pool.Base || m == pool.Quote {
				tokenWatched = true
			}
		}
		if poolWatched && tokenWatched {
			return
		}
	}
	return
}

// --- Scheduled jobs (§4.11) ---

// StartScheduledJobs registers and starts every periodic job named in
// §4.11's table. ctx governs the lifetime of the whole set; call
// c.Scheduler.Shutdown to stop them.
func (c *Core) StartScheduledJobs(ctx context.Context) {
	c.Scheduler.StartInterval(ctx, "pool_refresh", c.cfg.Scheduler.PoolRefreshInterval, func(ctx context.Context) {
		if err := c.Registry.Refresh(ctx); err != nil {
			c.log.Warn().Err(err).Msg("pool refresh failed")
		}
	})
	c.Scheduler.StartInterval(ctx, "price_refresh", c.cfg.Scheduler.PriceRefreshInterval, func(ctx context.Context) {
		c.Resolver.RefreshPrices(ctx, c.trackedMints())
	})
	c.Scheduler.StartInterval(ctx, "volume_refresh", c.cfg.Scheduler.VolumeRefreshInterval, func(ctx context.Context) {
		if err := c.Registry.RefreshVolumes(ctx); err != nil {
			c.log.Warn().Err(err).Msg("volume refresh failed")
		}
	})
	c.Scheduler.StartInterval(ctx, "upstream_health", c.cfg.Scheduler.HealthCheckInterval, func(ctx context.Context) {
		c.checkDexAPIHealth(ctx)
	})
	c.Scheduler.StartInterval(ctx, "cache_prune", c.cfg.Scheduler.CachePruneInterval, func(ctx context.Context) {
		now := c.now()
		c.Dedup.DexTxs.Prune(now, 24*time.Hour)
		c.Dedup.WalletTxs.Prune(now, 24*time.Hour)
		c.Resolver.Prune()
	})
	c.Scheduler.StartInterval(ctx, "persistence_flush", c.cfg.Scheduler.PersistenceFlushInterval, func(ctx context.Context) {
		if err := c.Store.Flush(ctx); err != nil {
			c.log.Warn().Err(err).Msg("persistence flush failed")
		}
	})
	c.Scheduler.StartInterval(ctx, "portfolio_auto_sync", c.cfg.Scheduler.PortfolioAutoSyncInterval, func(ctx context.Context) {
		c.autoSyncPortfolios(ctx)
	})
	c.Scheduler.StartDaily(ctx, "daily_digest", c.cfg.Scheduler.DailyDigestHour, c.cfg.Scheduler.DailyDigestMinute, func(ctx context.Context) {
		c.broadcastDailyDigest(ctx)
	})
	c.Scheduler.StartDaily(ctx, "seen_tx_prune", c.cfg.Scheduler.SeenTxPruneHour, 0, func(ctx context.Context) {
		if _, err := c.Store.PruneSeenTxs(ctx, c.now().Add(-24*time.Hour)); err != nil {
			c.log.Warn().Err(err).Msg("seen-tx prune failed")
		}
	})
}

// DexAPIHealth returns the most recently observed health of the DEX
// API's /health endpoint (§4.11 "Upstream health").
func (c *Core) DexAPIHealth() ApiHealth {
	return *c.dexHealth.Load()
}

func (c *Core) checkDexAPIHealth(ctx context.Context) {
	if c.cfg.DexAPIBaseURL == "" {
		return
	}
	now := c.now()
	h := *c.dexHealth.Load()
	var resp any
	if err := c.dexAPI.FetchJSON(ctx, c.cfg.DexAPIBaseURL+"/health", &resp); err != nil {
		h.RecordFailure(now)
		c.log.Warn().Err(err).Msg("dex api health check failed")
	} else {
		h.RecordSuccess(now)
	}
	c.dexHealth.Store(&h)
}

func (c *Core) trackedMints() []string {
	snap := c.Registry.Snapshot()
	seen := make(map[string]bool)
	var mints []string
	for _, p := range snap.Pools {
		for _, m := range []Mint{p.Base, p.Quote} {
			if !seen[string(m)] {
				seen[string(m)] = true
				mints = append(mints, string(m))
			}
		}
	}
	return mints
}

// autoSyncPortfolios implements §4.10's auto-sync predicate: subscribers
// active within the last 30 min whose last sync is stale.
func (c *Core) autoSyncPortfolios(ctx context.Context) {
	now := c.now()
	for _, sub := range c.All() {
		if len(sub.PortfolioWallets) == 0 {
			continue
		}
		if now.Sub(sub.LastActive) > 30*time.Minute {
			continue
		}
		if sub.Portfolio != nil && now.Sub(sub.Portfolio.LastSync) < c.cfg.Portfolio.AutoSyncInterval {
			continue
		}
		if _, err := c.SyncPortfolio(ctx, sub.ChatID); err != nil {
			c.log.Warn().Err(err).Int64("chat_id", sub.ChatID).Msg("auto portfolio sync failed")
		}
	}
}

// broadcastDailyDigest sends a daily summary to digest-enabled
// subscribers and resets their DailyStats (§4.11 "Daily digest").
func (c *Core) broadcastDailyDigest(ctx context.Context) {
	today := c.now().UTC().Format("2006-01-02")
	for _, sub := range c.All() {
		if !sub.Filters.DailyDigest || !sub.Eligible(c.now()) {
			continue
		}
		message := fmt.Sprintf("Daily digest: %d alerts, $%.2f volume seen", sub.Daily.AlertsSent, sub.Daily.VolumeUSDSeen)
		c.Fanout.SendDirect(ctx, sub.ChatID, message, nil)
		sub.Daily = DailyStats{Date: today}
		c.SchedulePersist(sub.ChatID)
	}
}
