// Package feeds implements the two C6 live feeds — the DEX pool-activity
// feed and the wallet-activity feed — both built on pkg/wsfeed.
//
// Grounded on other_examples' internal/websocket price_feed.go (a
// subscription-manager type wrapping a generic WS client, tracking
// mint→subscriptionID maps with a mutex) generalized from AMM-pool
// account subscriptions to logsSubscribe/DEX-event subscriptions, and on
// internal/ingestion ws_sources.go's ctx-cancellable channel delivery and
// retry-with-backoff idiom for the backup poller.
package feeds

import "context"

// RawMessage is one upstream event handed to the ingestion pipeline,
// still in opaque-payload form (spec §9 "model upstream payloads as
// opaque JSON").
type RawMessage struct {
	Source          string // "dex" or "wallet"
	Fields          map[string]any
	InstructionData []byte
	Logs            []string
	Accounts        []string
	Sig             string
}

// Handler consumes one raw message from either feed.
type Handler func(ctx context.Context, msg RawMessage)
