package db

import "time"

// SubscriberRecord is the durable row behind a tracker.Subscriber. Slices
// and the filter block are stored as JSON text columns, mirroring the
// teacher's big.Int-as-string scalar-column approach for anything that
// isn't itself a relational column.
type SubscriberRecord struct {
	ChatID int64 `gorm:"primaryKey"`

	CreatedAt    time.Time `gorm:"not null"`
	LastActive   time.Time `gorm:"index"`
	Enabled      bool      `gorm:"not null"`
	Blocked      bool      `gorm:"not null"`
	Onboarded    bool      `gorm:"not null"`
	SnoozedUntil time.Time
	QuietStart   *int
	QuietEnd     *int

	FiltersJSON  string `gorm:"type:text;not null"`
	WalletsJSON  string `gorm:"type:text;not null"`
	WatchlistJSON string `gorm:"type:text;not null"`
	TrackedTokensJSON string `gorm:"type:text;not null"`
	PortfolioWalletsJSON string `gorm:"type:text;not null"`
	RecentAlertsJSON string `gorm:"type:text;not null"`

	DailyDate          string
	DailyAlertsSent    int
	DailyVolumeUSDSeen float64
	LifetimeAlertsSent int
	LifetimeVolumeUSDSeen float64

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName pins the GORM table name (teacher convention).
func (SubscriberRecord) TableName() string {
	return "subscribers"
}

// SeenTxRecord backs the restart-survival half of signature dedup (§4.7):
// the in-memory internal/dedup sets are the hot path, this table lets a
// freshly-restarted process rebuild them without re-alerting on
// already-seen signatures from the last 24h.
type SeenTxRecord struct {
	Signature string    `gorm:"primaryKey;type:varchar(128)"`
	FirstSeen time.Time `gorm:"index;not null"`
	Source    string    `gorm:"type:varchar(16);not null"` // "dex" or "wallet"
}

func (SeenTxRecord) TableName() string {
	return "seen_txs"
}

// WhaleWalletRecord is one globally-tracked whale wallet (distinct from a
// subscriber's own wallet_alerts list — §3/§6 "whale wallets" component).
type WhaleWalletRecord struct {
	Wallet    string `gorm:"primaryKey;type:varchar(64)"`
	Label     string `gorm:"type:varchar(128)"`
	AddedAt   time.Time
}

func (WhaleWalletRecord) TableName() string {
	return "whale_wallets"
}
