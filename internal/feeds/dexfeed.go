package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/internal/dedup"
	"github.com/solwatch/tracker/internal/registry"
	"github.com/solwatch/tracker/pkg/httpclient"
	"github.com/solwatch/tracker/pkg/wsfeed"
)

// DexFeedConfig is the DEX feed's static configuration (spec §4.6).
type DexFeedConfig struct {
	// WSURLForTicket builds the `wss://…?ticket=…` URL given a freshly
	// fetched ticket.
	WSURLForTicket func(ticket string) string
	TicketURL      string

	// TradesURL builds the `/trades/{pool_id}?limit=N` backup-poll URL.
	TradesURL func(poolID string, limit int) string

	BackupPollInterval time.Duration
	BackupTopN         int
	SubscribeLimit     int
}

type ticketResponse struct {
	Ticket string `json:"ticket"`
}

// rawTrade is the opaque upstream shape for one backup-poll trade.
type rawTrade struct {
	Fields map[string]any
}

func (t *rawTrade) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &t.Fields)
}

func sigFromFields(fields map[string]any) string {
	for _, key := range []string{"sig", "signature", "txSig", "tx_hash", "txHash"} {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// DexFeed is the DEX program activity feed: primary WebSocket
// subscription per known pool, with a backup HTTP poller that kicks in
// once the socket has been down for longer than one polling interval.
type DexFeed struct {
	cfg      DexFeedConfig
	client   *httpclient.Client
	reg      *registry.Registry
	dedupSet *dedup.Set
	handler  Handler
	log      zerolog.Logger
	feed     *wsfeed.Feed
	now      func() time.Time
}

// NewDexFeed constructs a DexFeed.
func NewDexFeed(cfg DexFeedConfig, client *httpclient.Client, reg *registry.Registry, dedupSet *dedup.Set, handler Handler, log zerolog.Logger) *DexFeed {
	f := &DexFeed{
		cfg:      cfg,
		client:   client,
		reg:      reg,
		dedupSet: dedupSet,
		handler:  handler,
		log:      log.With().Str("component", "dexfeed").Logger(),
		now:      time.Now,
	}
	f.feed = wsfeed.NewDynamic(f.resolveURL, f.log, f.onOpen)
	return f
}

// Run starts the WebSocket loop and the backup poller; both stop when
// ctx is cancelled.
func (f *DexFeed) Run(ctx context.Context) {
	frames := f.feed.Run(ctx)
	go f.runBackupPoller(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			f.handleFrame(ctx, frame)
		}
	}
}

func (f *DexFeed) resolveURL(ctx context.Context) (string, error) {
	var resp ticketResponse
	if err := f.client.FetchJSON(ctx, f.cfg.TicketURL, &resp); err != nil {
		return "", fmt.Errorf("fetch ws ticket: %w", err)
	}
	return f.cfg.WSURLForTicket(resp.Ticket), nil
}

// onOpen subscribes to every pool in the current registry snapshot
// (spec §4.6: "the next reconnect re-subscribes all pools").
func (f *DexFeed) onOpen(ctx context.Context, send func([]byte) error) error {
	limit := f.cfg.SubscribeLimit
	if limit == 0 {
		limit = 10
	}
	for _, pool := range f.reg.Snapshot().Pools {
		msg, err := json.Marshal(map[string]any{"type": "subscribe", "pool": pool.ID, "limit": limit})
		if err != nil {
			continue
		}
		if err := send(msg); err != nil {
			// Spec: "If a subscribe send throws (socket not open), the
			// subscription is dropped silently and the next reconnect
			// re-subscribes all pools."
			f.log.Warn().Err(err).Str("pool", pool.ID).Msg("subscribe send failed, dropping silently")
			return nil
		}
	}
	return nil
}

func (f *DexFeed) handleFrame(ctx context.Context, frame []byte) {
	var fields map[string]any
	if err := json.Unmarshal(frame, &fields); err != nil {
		f.log.Debug().Err(err).Msg("dropping unparseable dex frame")
		return
	}
	sig := sigFromFields(fields)
	if sig == "" {
		return
	}
	if f.dedupSet.SeenOrAdd(sig, f.now()) {
		return
	}
	f.handler(ctx, RawMessage{Source: "dex", Fields: fields, Sig: sig})
}

// runBackupPoller polls the top-N pools, ranked by TVL, when the socket has
// been down for more than one polling interval (spec §4.6).
func (f *DexFeed) runBackupPoller(ctx context.Context) {
	interval := f.cfg.BackupPollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	downSince := f.now()
	wasConnected := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := f.feed.Connected()
			if connected {
				wasConnected = true
				continue
			}
			if wasConnected {
				downSince = f.now()
				wasConnected = false
			}
			if f.now().Sub(downSince) <= interval {
				continue
			}
			f.pollTopPools(ctx)
		}
	}
}

func (f *DexFeed) pollTopPools(ctx context.Context) {
	pools := topPoolsByActivity(f.reg.Snapshot().Pools, f.cfg.BackupTopN)
	for _, pool := range pools {
		var raw []rawTrade
		url := f.cfg.TradesURL(pool.ID, 50)
		if err := f.client.FetchJSON(ctx, url, &raw); err != nil {
			f.log.Warn().Err(err).Str("pool", pool.ID).Msg("backup poll failed")
			continue
		}
		for _, t := range raw {
			sig := sigFromFields(t.Fields)
			if sig == "" || f.dedupSet.SeenOrAdd(sig, f.now()) {
				continue
			}
			f.handler(ctx, RawMessage{Source: "dex", Fields: t.Fields, Sig: sig})
		}
	}
}

func topPoolsByActivity(pools []tracker.Pool, n int) []tracker.Pool {
	sorted := make([]tracker.Pool, len(pools))
	copy(sorted, pools)
	sort.Slice(sorted, func(i, j int) bool {
		return tvlOf(sorted[i]) > tvlOf(sorted[j])
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func tvlOf(p tracker.Pool) float64 {
	if p.TVL == nil {
		return 0
	}
	return *p.TVL
}
