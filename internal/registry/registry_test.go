package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/pkg/httpclient"
)

func newTestRegistry(t *testing.T, body string, status int) (*Registry, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))

	limiters := httpclient.NewLimiters(map[string]float64{"dex": 50})
	client := httpclient.New("dex", limiters, httpclient.WithMaxRetries(0))
	r := New(Config{PrimaryTokenMint: "PRIMARY"}, client, srv.URL, zerolog.Nop())
	return r, srv
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	body := `[{"id":"P1","base":"PRIMARY","quote":"USDC"},{"id":"P2","base":"OTHER","quote":"USDC"}]`
	r, srv := newTestRegistry(t, body, http.StatusOK)
	defer srv.Close()

	require.NoError(t, r.Refresh(context.Background()))

	snap := r.Snapshot()
	require.Len(t, snap.Pools, 2)
	assert.True(t, snap.ByID["P1"].IsPrimary)
	assert.False(t, snap.ByID["P2"].IsPrimary)
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	ok := `[{"id":"P1","base":"PRIMARY","quote":"USDC"}]`
	r, srv := newTestRegistry(t, ok, http.StatusOK)
	defer srv.Close()
	require.NoError(t, r.Refresh(context.Background()))
	first := r.Snapshot()

	srv.Close()
	err := r.Refresh(context.Background())
	assert.Error(t, err)
	assert.Same(t, first, r.Snapshot(), "a failed refresh must not replace the published snapshot")
}

func TestFindByToken(t *testing.T) {
	body := `[{"id":"P1","base":"PRIMARY","quote":"USDC"},{"id":"P2","base":"OTHER","quote":"PRIMARY"}]`
	r, srv := newTestRegistry(t, body, http.StatusOK)
	defer srv.Close()
	require.NoError(t, r.Refresh(context.Background()))

	matches := r.Snapshot().FindByToken(tracker.Mint("PRIMARY"))
	assert.Len(t, matches, 2)
}

func TestIsDexTransaction(t *testing.T) {
	body := `[{"id":"P1","base":"PRIMARY","quote":"USDC"}]`
	limiters := httpclient.NewLimiters(map[string]float64{"dex": 50})
	client := httpclient.New("dex", limiters, httpclient.WithMaxRetries(0))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	r := New(Config{PrimaryTokenMint: "PRIMARY", DexProgramID: "DEXPROG"}, client, srv.URL, zerolog.Nop())
	require.NoError(t, r.Refresh(context.Background()))

	assert.True(t, r.IsDexTransaction([]string{"DEXPROG"}))
	assert.True(t, r.IsDexTransaction([]string{"P1"}))
	assert.False(t, r.IsDexTransaction([]string{"SomeOtherAccount"}))
}

func TestPoolBaseNeverEqualsQuote(t *testing.T) {
	// Invariant (§8): for every pool p in the published snapshot, p.base != p.quote.
	body := `[{"id":"P1","base":"A","quote":"B"}]`
	r, srv := newTestRegistry(t, body, http.StatusOK)
	defer srv.Close()
	require.NoError(t, r.Refresh(context.Background()))

	for _, p := range r.Snapshot().Pools {
		assert.NotEqual(t, p.Base, p.Quote)
	}
}
