package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	tracker "github.com/solwatch/tracker"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Store{db: gormDB, dirty: make(map[int64]*tracker.Subscriber)}, mock
}

func TestUpsertSubscriberIssuesSave(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `subscribers`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sub := &tracker.Subscriber{
		ChatID:    1,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	err := store.UpsertSubscriber(context.Background(), sub)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlushWritesEveryDirtySubscriberAndClearsQueue(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `subscribers`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store.MarkDirty(&tracker.Subscriber{ChatID: 7, CreatedAt: time.Now()})
	err := store.Flush(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.dirty, "Flush must clear the dirty queue")
}

func TestMarkDirtyCollapsesRepeatedMarksForSameChat(t *testing.T) {
	store, _ := newTestStore(t)
	store.MarkDirty(&tracker.Subscriber{ChatID: 1, Enabled: false})
	store.MarkDirty(&tracker.Subscriber{ChatID: 1, Enabled: true})

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.dirty, 1)
	assert.True(t, store.dirty[1].Enabled, "second mark should win")
}

func TestRecordAndPruneSeenTxs(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `seen_txs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	err := store.RecordSeenTx(context.Background(), "sig1", "dex", time.Now())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `seen_txs`").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	n, err := store.PruneSeenTxs(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRecordFromRecordRoundTrip(t *testing.T) {
	quietStart := 22
	quietEnd := 6
	sub := &tracker.Subscriber{
		ChatID:              42,
		Enabled:             true,
		Filters:             tracker.FilterPrefs{Enabled: true, PrimaryTradeMin: 10},
		WalletSubscriptions: []string{"walletA", "walletB"},
		Watchlist:           []string{"poolA"},
		TrackedTokens:       []tracker.Mint{"mintA"},
		PortfolioWallets:    []string{"walletA"},
		RecentAlerts: []tracker.RecentAlert{
			{Sig: "sig1", Kind: tracker.EventSwap, USD: 5, Timestamp: time.Now()},
		},
		QuietStart: &quietStart,
		QuietEnd:   &quietEnd,
	}

	record, err := toRecord(sub)
	require.NoError(t, err)

	decoded, err := fromRecord(*record)
	require.NoError(t, err)

	assert.Equal(t, sub.WalletSubscriptions, decoded.WalletSubscriptions)
	assert.Equal(t, sub.Watchlist, decoded.Watchlist)
	assert.Equal(t, sub.TrackedTokens, decoded.TrackedTokens)
	assert.Equal(t, sub.PortfolioWallets, decoded.PortfolioWallets)
	assert.Equal(t, sub.Filters, decoded.Filters)
	require.Len(t, decoded.RecentAlerts, 1)
	assert.Equal(t, "sig1", decoded.RecentAlerts[0].Sig)
	require.NotNil(t, decoded.QuietStart)
	assert.Equal(t, 22, *decoded.QuietStart)
}
