// Package decoder implements the event decoder (spec §4.5): it turns a
// raw feed message — however it was shaped by the upstream, however the
// fields happen to be spelled — into a tagged tracker.SemanticEvent.
//
// Grounded on the parser-registry/discriminator-cascade design in the
// solana-token-lab reference (internal/discovery/dex_parser.go): an
// ordered cascade of increasingly loose match strategies, each one a
// pinned lookup table rather than an inferred heuristic wherever
// possible.
package decoder

import (
	"encoding/base64"
	"strings"

	tracker "github.com/solwatch/tracker"
)

// Config is the event decoder's static configuration.
type Config struct {
	PrimaryTokenMint string
	DexProgramID     string
}

// Decoder classifies raw feed payloads into SemanticEvents.
type Decoder struct {
	cfg Config
}

// New constructs a Decoder.
func New(cfg Config) *Decoder {
	return &Decoder{cfg: cfg}
}

// RawEvent is the normalized view of whatever shape the feed handed us:
// a structured message with named fields, optionally carrying an
// instruction-data blob and/or a list of program-log lines. Fields is
// the typed payload struct that payload.go fills from the opaque
// upstream JSON via mapstructure, aliasing each key onto a named field.
type RawEvent struct {
	Fields          payload
	InstructionData []byte   // decoded instruction data, if present
	Logs            []string // raw program-log lines, if present
	Sig             string
}

// Decode runs the five-stage cascade described in spec §4.5 and returns
// a fully-populated SemanticEvent. Decode never errors: an undecodable
// event is returned as EventUnknown (§7 "Invalid event payload").
func (d *Decoder) Decode(raw map[string]any, instructionData []byte, logs []string) tracker.SemanticEvent {
	p := parsePayload(raw)
	re := RawEvent{Fields: p, InstructionData: instructionData, Logs: logs, Sig: p.sig()}

	ev := tracker.SemanticEvent{
		Kind:       tracker.EventUnknown,
		Sig:        re.Sig,
		Confidence: tracker.ConfidenceLow,
	}

	// 1. Explicit fields.
	if kind, ok := matchExplicitLabel(p.label()); ok {
		ev.Kind = kind
		ev.Confidence = tracker.ConfidenceHigh
		d.fillCommon(&ev, p)
		d.fillDirection(&ev, p)
		return ev
	}

	// 2. Instruction discriminator.
	if len(instructionData) >= 8 {
		if kind, ok := instructionDiscriminators[[8]byte(instructionData[:8])]; ok {
			ev.Kind = kind
			ev.Confidence = tracker.ConfidenceHigh
			d.fillCommon(&ev, p)
			d.fillDirection(&ev, p)
			return ev
		}
	}

	// 3. Event log discriminator.
	if kind, ok := matchLogDiscriminator(logs); ok {
		ev.Kind = kind
		ev.Confidence = tracker.ConfidenceHigh
		d.fillCommon(&ev, p)
		d.fillDirection(&ev, p)
		return ev
	}

	// 4. Heuristics.
	if kind, ok := matchHeuristic(p); ok {
		ev.Kind = kind
		ev.Confidence = tracker.ConfidenceMedium
		d.fillCommon(&ev, p)
		d.fillDirection(&ev, p)
		return ev
	}

	// 5. Trade-side tag.
	if dir, ok := p.side(); ok {
		ev.Kind = tracker.EventSwap
		ev.Confidence = tracker.ConfidenceLow
		ev.Direction = dir
		d.fillCommon(&ev, p)
		return ev
	}

	return ev
}

func (d *Decoder) fillCommon(ev *tracker.SemanticEvent, p payload) {
	ev.PoolID = p.PoolID
	ev.Wallet = p.Wallet
	ev.EventName = p.EventName
	ev.ExplicitUSD = p.explicitUSD()
	if amounts, ok := p.amounts(); ok {
		ev.Amounts = amounts
	}
}

// fillDirection applies the swap direction rule (§4.5): explicit side
// wins; otherwise infer from which side of {base, quote, primary,
// protocol} the in/out mints land on; otherwise leave the zero value.
func (d *Decoder) fillDirection(ev *tracker.SemanticEvent, p payload) {
	if dir, ok := p.side(); ok {
		ev.Direction = dir
		return
	}
	if ev.Kind != tracker.EventSwap {
		return
	}
	a := ev.Amounts
	if a.MintIn == "" || a.MintOut == "" {
		return
	}
	switch {
	case a.MintIn == Mint(p.QuoteMint) && a.MintOut == Mint(p.BaseMint):
		ev.Direction = tracker.DirectionBuy
	case a.MintIn == Mint(p.BaseMint) && a.MintOut == Mint(p.QuoteMint):
		ev.Direction = tracker.DirectionSell
	case string(a.MintOut) == d.cfg.PrimaryTokenMint:
		ev.Direction = tracker.DirectionBuy
	case string(a.MintIn) == d.cfg.PrimaryTokenMint:
		ev.Direction = tracker.DirectionSell
	}
}

// Mint is a local alias to keep fillDirection's comparisons terse.
type Mint = tracker.Mint

// explicitLabels maps case-folded, exact-match event labels (no
// substring matching — see the decoder_test.go regression for why
// "unlock_liquidity" must never match the "lock_liquidity" entry).
var explicitLabels = map[string]tracker.EventKind{
	"swap":                     tracker.EventSwap,
	"add_liquidity":            tracker.EventLpAdd,
	"addliquidity":             tracker.EventLpAdd,
	"deposit":                  tracker.EventLpAdd,
	"init_position":            tracker.EventLpAdd,
	"remove_liquidity":         tracker.EventLpRemove,
	"removeliquidity":          tracker.EventLpRemove,
	"withdraw":                 tracker.EventLpRemove,
	"close_position":           tracker.EventLpRemove,
	"init_pool":                tracker.EventPoolInit,
	"pool_initialized":         tracker.EventPoolInit,
	"close_pool":               tracker.EventClosePool,
	"lock_liquidity":           tracker.EventLockLiquidity,
	"unlock_liquidity":         tracker.EventUnlockLiquidity,
	"claim_protocol_fees":      tracker.EventProtocolFees,
	"transfer_protocol_fees":   tracker.EventProtocolFees,
	"claim_holder_rewards":     tracker.EventClaimRewards,
	"claim_nft_rewards":        tracker.EventClaimRewards,
	"sync_holder_stake":        tracker.EventSyncStake,
	"update_admin":             tracker.EventAdmin,
	"update_authorities":       tracker.EventAdmin,
	"update_fee_config":        tracker.EventAdmin,
	"set_pause":                tracker.EventAdmin,
	"set_pause_bits":           tracker.EventAdmin,
	"unpause_override":         tracker.EventAdmin,
	"create_bin_array":         tracker.EventSetup,
	"init_oracle":              tracker.EventSetup,
	"init_position_bin":        tracker.EventSetup,
	"view_farming_position":    tracker.EventSetup,
}

func matchExplicitLabel(label string) (tracker.EventKind, bool) {
	if label == "" {
		return "", false
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if kind, ok := explicitLabels[label]; ok {
		return kind, true
	}
	// Prefix families the table can't enumerate exactly (init_*_global_state,
	// init_user_*_state) are matched by prefix/suffix, never by
	// unconstrained substring.
	switch {
	case strings.HasPrefix(label, "init_") && strings.HasSuffix(label, "_global_state"):
		return tracker.EventSetup, true
	case strings.HasPrefix(label, "init_user_") && strings.HasSuffix(label, "_state"):
		return tracker.EventSetup, true
	}
	return "", false
}

// matchHeuristic implements cascade stage 4 (spec §4.5 point 4).
func matchHeuristic(p payload) (tracker.EventKind, bool) {
	if p.SharesMinted > 0 {
		return tracker.EventLpAdd, true
	}
	if p.SharesBurned > 0 {
		return tracker.EventLpRemove, true
	}
	if p.AmountIn > 0 && p.AmountOut > 0 && p.MintIn != "" && p.MintOut != "" && p.MintIn != p.MintOut {
		return tracker.EventSwap, true
	}
	if p.BaseAmount > 0 && p.QuoteAmount > 0 {
		if p.IsOutflow {
			return tracker.EventLpRemove, true
		}
		return tracker.EventLpAdd, true
	}
	return "", false
}

// matchLogDiscriminator scans program-log lines for the `Program data:`
// marker (spec §4.5 point 3), base64-decodes the payload and matches an
// 8-byte prefix against the event-discriminator table.
func matchLogDiscriminator(logs []string) (tracker.EventKind, bool) {
	const marker = "Program data: "
	for _, line := range logs {
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}
		encoded := strings.TrimSpace(line[idx+len(marker):])
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(data) < 8 {
			continue
		}
		if kind, ok := eventDiscriminators[[8]byte(data[:8])]; ok {
			return kind, true
		}
	}
	return "", false
}
