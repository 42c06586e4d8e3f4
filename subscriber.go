package tracker

import "time"

// FilterPrefs is the set of boolean toggles and numeric thresholds a
// subscriber can set, one field per Command API toggle field (§6).
type FilterPrefs struct {
	Enabled bool

	PrimaryBuys     bool
	PrimarySells    bool
	PrimaryLpAdd    bool
	PrimaryLpRemove bool

	TrackOtherPools bool
	OtherLpAdd      bool
	OtherLpRemove   bool
	OtherBuys       bool
	OtherSells      bool

	WalletAlerts       bool
	DailyDigest        bool
	NewPoolAlerts      bool
	LockAlerts         bool
	RewardAlerts       bool
	ClosePoolAlerts    bool
	ProtocolFeeAlerts  bool
	AdminAlerts        bool

	PrimaryTradeMin float64
	OtherTradeMin   float64
	OtherLpMin      float64
}

// ToggleField is the closed set of boolean fields toggle(chat_id, field)
// may address.
type ToggleField string

const (
	FieldEnabled           ToggleField = "enabled"
	FieldPrimaryBuys       ToggleField = "primary_buys"
	FieldPrimarySells      ToggleField = "primary_sells"
	FieldPrimaryLpAdd      ToggleField = "primary_lp_add"
	FieldPrimaryLpRemove   ToggleField = "primary_lp_remove"
	FieldTrackOtherPools   ToggleField = "track_other_pools"
	FieldOtherLpAdd        ToggleField = "other_lp_add"
	FieldOtherLpRemove     ToggleField = "other_lp_remove"
	FieldOtherBuys         ToggleField = "other_buys"
	FieldOtherSells        ToggleField = "other_sells"
	FieldWalletAlerts      ToggleField = "wallet_alerts"
	FieldDailyDigest       ToggleField = "daily_digest"
	FieldNewPoolAlerts     ToggleField = "new_pool_alerts"
	FieldLockAlerts        ToggleField = "lock_alerts"
	FieldRewardAlerts      ToggleField = "reward_alerts"
	FieldClosePoolAlerts   ToggleField = "close_pool_alerts"
	FieldProtocolFeeAlerts ToggleField = "protocol_fee_alerts"
	FieldAdminAlerts       ToggleField = "admin_alerts"
)

// Toggle flips the named boolean field in place. Returns false if field is
// not in the closed set (§7 "Invalid command input": rejected, no state
// change).
func (f *FilterPrefs) Toggle(field ToggleField) bool {
	switch field {
	case FieldEnabled:
		f.Enabled = !f.Enabled
	case FieldPrimaryBuys:
		f.PrimaryBuys = !f.PrimaryBuys
	case FieldPrimarySells:
		f.PrimarySells = !f.PrimarySells
	case FieldPrimaryLpAdd:
		f.PrimaryLpAdd = !f.PrimaryLpAdd
	case FieldPrimaryLpRemove:
		f.PrimaryLpRemove = !f.PrimaryLpRemove
	case FieldTrackOtherPools:
		f.TrackOtherPools = !f.TrackOtherPools
	case FieldOtherLpAdd:
		f.OtherLpAdd = !f.OtherLpAdd
	case FieldOtherLpRemove:
		f.OtherLpRemove = !f.OtherLpRemove
	case FieldOtherBuys:
		f.OtherBuys = !f.OtherBuys
	case FieldOtherSells:
		f.OtherSells = !f.OtherSells
	case FieldWalletAlerts:
		f.WalletAlerts = !f.WalletAlerts
	case FieldDailyDigest:
		f.DailyDigest = !f.DailyDigest
	case FieldNewPoolAlerts:
		f.NewPoolAlerts = !f.NewPoolAlerts
	case FieldLockAlerts:
		f.LockAlerts = !f.LockAlerts
	case FieldRewardAlerts:
		f.RewardAlerts = !f.RewardAlerts
	case FieldClosePoolAlerts:
		f.ClosePoolAlerts = !f.ClosePoolAlerts
	case FieldProtocolFeeAlerts:
		f.ProtocolFeeAlerts = !f.ProtocolFeeAlerts
	case FieldAdminAlerts:
		f.AdminAlerts = !f.AdminAlerts
	default:
		return false
	}
	return true
}

// ThresholdKind selects which numeric threshold set_threshold targets.
type ThresholdKind string

const (
	ThresholdPrimary    ThresholdKind = "primary"
	ThresholdOtherTrade ThresholdKind = "other_trade"
	ThresholdOtherLp    ThresholdKind = "other_lp"
)

// RecentAlert is one entry in a subscriber's capped ring buffer.
type RecentAlert struct {
	Sig       string
	Kind      EventKind
	USD       float64
	Timestamp time.Time
}

// DailyStats and LifetimeStats are simple fan-out counters.
type DailyStats struct {
	Date          string // UTC yyyy-mm-dd, reset at digest time
	AlertsSent    int
	VolumeUSDSeen float64
}

type LifetimeStats struct {
	AlertsSent    int
	VolumeUSDSeen float64
}

// Subscriber is the full per-user record (§3).
type Subscriber struct {
	ChatID int64

	CreatedAt     time.Time
	LastActive    time.Time
	Enabled       bool
	Blocked       bool
	Onboarded     bool
	SnoozedUntil  time.Time // zero value == inactive
	QuietStart    *int      // UTC hour 0..23
	QuietEnd      *int      // UTC hour 0..23

	Filters FilterPrefs

	WalletSubscriptions []string // ≤ maxWallets
	Watchlist           []string // pool ids; + TrackedTokens ≤ maxWatchlist
	TrackedTokens       []Mint
	PortfolioWallets    []string // ordered, ≤5, first is primary for display

	RecentAlerts []RecentAlert // capped ring, length maxRecentAlerts

	Portfolio *PortfolioSnapshot

	Daily    DailyStats
	Lifetime LifetimeStats
}

// IsSnoozed reports whether notifications should currently be withheld:
// either an active snooze window or inside the (possibly midnight-
// wrapping) quiet-hours interval.
func (s *Subscriber) IsSnoozed(now time.Time) bool {
	if !s.SnoozedUntil.IsZero() && now.Before(s.SnoozedUntil) {
		return true
	}
	if s.QuietStart == nil || s.QuietEnd == nil {
		return false
	}
	hour := now.UTC().Hour()
	start, end := *s.QuietStart, *s.QuietEnd
	if start <= end {
		return hour >= start && hour < end
	}
	// Wraps midnight: active for [start..24) ∪ [0..end).
	return hour >= start || hour < end
}

// Eligible reports whether the subscriber should be considered at all by
// fan-out, independent of any per-event predicate.
func (s *Subscriber) Eligible(now time.Time) bool {
	return s.Enabled && !s.Blocked && !s.IsSnoozed(now)
}

// PushRecentAlert appends an alert, evicting the oldest entry once at cap.
func (s *Subscriber) PushRecentAlert(a RecentAlert, cap int) {
	s.RecentAlerts = append(s.RecentAlerts, a)
	if len(s.RecentAlerts) > cap {
		s.RecentAlerts = s.RecentAlerts[len(s.RecentAlerts)-cap:]
	}
}

// TokenHolding is one mint's aggregated balance/value within a portfolio.
type TokenHolding struct {
	Mint     Mint
	Symbol   string
	Balance  float64
	USD      float64
}

// LpPosition is one LP-mint holding identified within a wallet.
type LpPosition struct {
	PoolID  string
	Mint    Mint
	Balance float64
	USD     float64
}

// StakedPosition is one staked/receipt-token holding.
type StakedPosition struct {
	Wallet        string
	ReceiptMint   Mint
	Balance       float64
	USD           float64
	OriginalStake float64
}

// Trade is one classified trade observed for a wallet.
type Trade struct {
	Sig       string
	Wallet    string
	PoolID    string
	Direction Direction
	USD       float64
	Timestamp time.Time
}

// WalletBreakdown is one wallet's contribution to an aggregated snapshot.
type WalletBreakdown struct {
	Wallet        string
	SolValueUSD   float64
	TokenValueUSD float64
	LpValueUSD    float64
	StakedUSD     float64
	TotalUSD      float64
	RealizedPnL   float64
	UnrealizedPnL float64
	BuyCount      int
	SellCount     int
}

// PortfolioSnapshot is the aggregated-across-wallets result of a portfolio
// sync (§3, §4.10).
type PortfolioSnapshot struct {
	WalletCount int

	SolBalance    float64
	SolValueUSD   float64
	TokenValueUSD float64
	LpValueUSD    float64
	StakedValueUSD float64
	TotalValueUSD float64

	Tokens   []TokenHolding   // top 20 by USD
	LPs      []LpPosition
	Staked   []StakedPosition
	Trades   []Trade // top 100 most recent

	TradeCount     int
	BuyCount       int
	SellCount      int
	TotalVolumeUSD float64

	RealizedPnLUSD   float64
	UnrealizedPnLUSD float64

	PerWallet map[string]WalletBreakdown

	LastSync time.Time
}
