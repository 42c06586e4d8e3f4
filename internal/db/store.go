// Package db is the durable store: GORM models plus a Store that
// debounces writes and persists everything the command API mutates so a
// restart rebuilds state instead of losing it (§5 "writes are debounced
// and batched, default every 2s"; §4.7/§4.11 24h seen-tx pruning).
//
// Grounded on the teacher's internal/db/transaction_recorder.go
// (NewMySQLRecorder, AutoMigrate, TableName(), wrapped errors) generalized
// from a single write-only snapshot table to the full subscriber/watchlist/
// seen-tx storage contract of §6.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	tracker "github.com/solwatch/tracker"
)

// Store owns the GORM connection and the in-flight dirty set awaiting
// the next debounced flush.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	dirty map[int64]*tracker.Subscriber
}

// Open connects to MySQL and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func Open(dsn string) (*Store, error) {
	gormDB, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return OpenWithDB(gormDB)
}

// OpenWithDB wraps an already-open GORM connection (used directly by tests
// with a sqlmock-backed *sql.DB).
func OpenWithDB(gormDB *gorm.DB) (*Store, error) {
	if err := gormDB.AutoMigrate(&SubscriberRecord{}, &SeenTxRecord{}, &WhaleWalletRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: gormDB, dirty: make(map[int64]*tracker.Subscriber)}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// MarkDirty queues sub for the next Flush. Multiple marks before a flush
// collapse to one write of the latest state.
func (s *Store) MarkDirty(sub *tracker.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[sub.ChatID] = sub
}

// Flush persists every subscriber queued since the last call and clears
// the dirty set. Intended to be driven by the scheduler's
// PersistenceFlushInterval job.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.dirty
	s.dirty = make(map[int64]*tracker.Subscriber)
	s.mu.Unlock()

	for _, sub := range batch {
		if err := s.UpsertSubscriber(ctx, sub); err != nil {
			return fmt.Errorf("flush chat_id=%d: %w", sub.ChatID, err)
		}
	}
	return nil
}

// UpsertSubscriber writes one subscriber immediately, bypassing the
// debounce queue (Flush calls it once per queued subscriber).
func (s *Store) UpsertSubscriber(ctx context.Context, sub *tracker.Subscriber) error {
	record, err := toRecord(sub)
	if err != nil {
		return fmt.Errorf("encode subscriber: %w", err)
	}
	result := s.db.WithContext(ctx).Save(record)
	if result.Error != nil {
		return fmt.Errorf("save subscriber: %w", result.Error)
	}
	return nil
}

// LoadAll reconstructs every subscriber from the durable store, for
// process startup.
func (s *Store) LoadAll(ctx context.Context) ([]*tracker.Subscriber, error) {
	var records []SubscriberRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	subs := make([]*tracker.Subscriber, 0, len(records))
	for _, r := range records {
		sub, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("decode subscriber chat_id=%d: %w", r.ChatID, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// RecordSeenTx inserts a signature for restart-survival dedup. A
// duplicate insert (already seen) is not an error.
func (s *Store) RecordSeenTx(ctx context.Context, sig, source string, now time.Time) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&SeenTxRecord{Signature: sig, FirstSeen: now, Source: source})
	if result.Error != nil {
		return fmt.Errorf("record seen_tx: %w", result.Error)
	}
	return nil
}

// PruneSeenTxs deletes every seen_tx row older than the 24h horizon
// (§4.11 "seen-tx prune, once daily").
func (s *Store) PruneSeenTxs(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("first_seen < ?", before).Delete(&SeenTxRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune seen_txs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LoadSeenTxs reconstructs the set of still-fresh signatures for
// internal/dedup to seed on startup.
func (s *Store) LoadSeenTxs(ctx context.Context, since time.Time) ([]string, error) {
	var records []SeenTxRecord
	if err := s.db.WithContext(ctx).Where("first_seen >= ?", since).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load seen_txs: %w", err)
	}
	sigs := make([]string, len(records))
	for i, r := range records {
		sigs[i] = r.Signature
	}
	return sigs, nil
}

// UpsertWhaleWallet adds or updates a globally-tracked whale wallet.
func (s *Store) UpsertWhaleWallet(ctx context.Context, wallet, label string, addedAt time.Time) error {
	result := s.db.WithContext(ctx).Save(&WhaleWalletRecord{Wallet: wallet, Label: label, AddedAt: addedAt})
	if result.Error != nil {
		return fmt.Errorf("upsert whale wallet: %w", result.Error)
	}
	return nil
}

// ListWhaleWallets returns every globally-tracked whale wallet.
func (s *Store) ListWhaleWallets(ctx context.Context) ([]WhaleWalletRecord, error) {
	var records []WhaleWalletRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list whale wallets: %w", err)
	}
	return records, nil
}

func toRecord(sub *tracker.Subscriber) (*SubscriberRecord, error) {
	filtersJSON, err := json.Marshal(sub.Filters)
	if err != nil {
		return nil, err
	}
	walletsJSON, err := json.Marshal(sub.WalletSubscriptions)
	if err != nil {
		return nil, err
	}
	watchlistJSON, err := json.Marshal(sub.Watchlist)
	if err != nil {
		return nil, err
	}
	trackedJSON, err := json.Marshal(sub.TrackedTokens)
	if err != nil {
		return nil, err
	}
	portfolioJSON, err := json.Marshal(sub.PortfolioWallets)
	if err != nil {
		return nil, err
	}
	alertsJSON, err := json.Marshal(sub.RecentAlerts)
	if err != nil {
		return nil, err
	}

	return &SubscriberRecord{
		ChatID:                sub.ChatID,
		CreatedAt:             sub.CreatedAt,
		LastActive:            sub.LastActive,
		Enabled:               sub.Enabled,
		Blocked:               sub.Blocked,
		Onboarded:             sub.Onboarded,
		SnoozedUntil:          sub.SnoozedUntil,
		QuietStart:            sub.QuietStart,
		QuietEnd:              sub.QuietEnd,
		FiltersJSON:           string(filtersJSON),
		WalletsJSON:           string(walletsJSON),
		WatchlistJSON:         string(watchlistJSON),
		TrackedTokensJSON:     string(trackedJSON),
		PortfolioWalletsJSON:  string(portfolioJSON),
		RecentAlertsJSON:      string(alertsJSON),
		DailyDate:             sub.Daily.Date,
		DailyAlertsSent:       sub.Daily.AlertsSent,
		DailyVolumeUSDSeen:    sub.Daily.VolumeUSDSeen,
		LifetimeAlertsSent:    sub.Lifetime.AlertsSent,
		LifetimeVolumeUSDSeen: sub.Lifetime.VolumeUSDSeen,
	}, nil
}

func fromRecord(r SubscriberRecord) (*tracker.Subscriber, error) {
	sub := &tracker.Subscriber{
		ChatID:       r.ChatID,
		CreatedAt:    r.CreatedAt,
		LastActive:   r.LastActive,
		Enabled:      r.Enabled,
		Blocked:      r.Blocked,
		Onboarded:    r.Onboarded,
		SnoozedUntil: r.SnoozedUntil,
		QuietStart:   r.QuietStart,
		QuietEnd:     r.QuietEnd,
		Daily: tracker.DailyStats{
			Date:          r.DailyDate,
			AlertsSent:    r.DailyAlertsSent,
			VolumeUSDSeen: r.DailyVolumeUSDSeen,
		},
		Lifetime: tracker.LifetimeStats{
			AlertsSent:    r.LifetimeAlertsSent,
			VolumeUSDSeen: r.LifetimeVolumeUSDSeen,
		},
	}
	if err := json.Unmarshal([]byte(r.FiltersJSON), &sub.Filters); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	if err := unmarshalOrEmpty(r.WalletsJSON, &sub.WalletSubscriptions); err != nil {
		return nil, err
	}
	if err := unmarshalOrEmpty(r.WatchlistJSON, &sub.Watchlist); err != nil {
		return nil, err
	}
	if err := unmarshalOrEmpty(r.TrackedTokensJSON, &sub.TrackedTokens); err != nil {
		return nil, err
	}
	if err := unmarshalOrEmpty(r.PortfolioWalletsJSON, &sub.PortfolioWallets); err != nil {
		return nil, err
	}
	if err := unmarshalOrEmpty(r.RecentAlertsJSON, &sub.RecentAlerts); err != nil {
		return nil, err
	}
	return sub, nil
}

func unmarshalOrEmpty(s string, out any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}
