// Package registry implements the pool registry (spec §4.4): a
// periodically refreshed, atomically published snapshot of every known
// pool, with by-id and by-token lookups.
//
// Grounded on the teacher's GetAMMState idiom (fetch a read-only view,
// return a plain struct) generalized from "one pool, on demand" to "all
// pools, on a timer, published via sync/atomic.Pointer so every reader
// sees a fully-formed snapshot (spec §5 ordering guarantee)".
package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/pkg/httpclient"
)

// Config is the pool registry's static configuration.
type Config struct {
	PrimaryTokenMint string
	DexProgramID     string
	RefreshInterval  time.Duration

	// VolumesURL is the DEX API's 24h volume table endpoint
	// (spec §4.4 data source list: "/volumes?tf=24h"). Empty disables
	// the volume_refresh job's effect (RefreshVolumes becomes a no-op).
	VolumesURL string
}

// rawPool is the opaque upstream shape for one pool list entry.
type rawPool struct {
	ID             string   `json:"id"`
	Base           string   `json:"base"`
	Quote          string   `json:"quote"`
	TVL            *float64 `json:"tvl"`
	FeeBps         *int     `json:"fee_bps"`
	ProtocolFeeBps *int     `json:"protocol_fee_bps"`
}

// Snapshot is the fully-formed, immutable pool view readers see.
type Snapshot struct {
	Pools []tracker.Pool
	ByID  map[string]tracker.Pool
}

// Registry holds the current snapshot and refreshes it on a timer.
type Registry struct {
	cfg    Config
	client *httpclient.Client
	url    string
	log    zerolog.Logger

	snapshot atomic.Pointer[Snapshot]
}

// New constructs a Registry. The initial snapshot is empty until the
// first successful Refresh.
func New(cfg Config, client *httpclient.Client, poolListURL string, log zerolog.Logger) *Registry {
	r := &Registry{cfg: cfg, client: client, url: poolListURL, log: log.With().Str("component", "registry").Logger()}
	r.snapshot.Store(&Snapshot{ByID: map[string]tracker.Pool{}})
	return r
}

// Snapshot returns the current published snapshot. Always non-nil.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Refresh fetches the pool list and publishes a new snapshot on
// success. On failure the previous snapshot remains untouched (spec
// §4.4 "On fetch failure, the previous snapshot remains").
func (r *Registry) Refresh(ctx context.Context) error {
	var raw []rawPool
	if err := r.client.FetchJSON(ctx, r.url, &raw); err != nil {
		r.log.Warn().Err(err).Msg("pool refresh failed, keeping previous snapshot")
		return fmt.Errorf("refresh pool registry: %w", err)
	}

	pools := make([]tracker.Pool, 0, len(raw))
	byID := make(map[string]tracker.Pool, len(raw))
	for _, p := range raw {
		pool := tracker.Pool{
			ID:             p.ID,
			Base:           tracker.Mint(p.Base),
			Quote:          tracker.Mint(p.Quote),
			PairName:       pairName(p.Base, p.Quote),
			IsPrimary:      p.Base == r.cfg.PrimaryTokenMint || p.Quote == r.cfg.PrimaryTokenMint,
			TVL:            p.TVL,
			FeeBps:         p.FeeBps,
			ProtocolFeeBps: p.ProtocolFeeBps,
		}
		pools = append(pools, pool)
		byID[pool.ID] = pool
	}

	r.snapshot.Store(&Snapshot{Pools: pools, ByID: byID})
	return nil
}

// rawVolume is the opaque upstream shape for one /volumes entry.
type rawVolume struct {
	PoolID    string   `json:"pool_id"`
	VolumeUSD *float64 `json:"volume_usd"`
}

// RefreshVolumes fetches the 24h volume table and merges it into the
// current snapshot's pools (spec §4.11 "Volume refresh: Refresh 24-h
// volume table"), leaving everything else about the snapshot untouched.
// A pool the response doesn't mention keeps its previous Volume24hUSD.
func (r *Registry) RefreshVolumes(ctx context.Context) error {
	if r.cfg.VolumesURL == "" {
		return nil
	}

	var raw []rawVolume
	if err := r.client.FetchJSON(ctx, r.cfg.VolumesURL, &raw); err != nil {
		r.log.Warn().Err(err).Msg("volume refresh failed, keeping previous volumes")
		return fmt.Errorf("refresh pool volumes: %w", err)
	}

	cur := r.Snapshot()
	pools := append([]tracker.Pool(nil), cur.Pools...)
	byID := make(map[string]tracker.Pool, len(pools))
	for i := range pools {
		byID[pools[i].ID] = pools[i]
	}
	for _, v := range raw {
		idx, ok := indexOf(pools, v.PoolID)
		if !ok || v.VolumeUSD == nil {
			continue
		}
		pools[idx].Volume24hUSD = v.VolumeUSD
		byID[v.PoolID] = pools[idx]
	}

	r.snapshot.Store(&Snapshot{Pools: pools, ByID: byID})
	return nil
}

func indexOf(pools []tracker.Pool, id string) (int, bool) {
	for i, p := range pools {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}

func pairName(base, quote string) string {
	return shortMint(base) + "/" + shortMint(quote)
}

func shortMint(m string) string {
	if len(m) <= 8 {
		return m
	}
	return m[:4] + "…" + m[len(m)-4:]
}

// FindByToken returns every pool where base or quote equals mint.
func (s *Snapshot) FindByToken(mint tracker.Mint) []tracker.Pool {
	var out []tracker.Pool
	for _, p := range s.Pools {
		if p.Base == mint || p.Quote == mint {
			out = append(out, p)
		}
	}
	return out
}

// IsDexTransaction reports whether any of the given accounts is the DEX
// program id or a known pool id (spec §4.4).
func (r *Registry) IsDexTransaction(accounts []string) bool {
	snap := r.Snapshot()
	for _, a := range accounts {
		if a == r.cfg.DexProgramID {
			return true
		}
		if _, ok := snap.ByID[a]; ok {
			return true
		}
	}
	return false
}
