package decoder

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tracker "github.com/solwatch/tracker"
)

func testDecoder() *Decoder {
	return New(Config{PrimaryTokenMint: "PrimaryMintXXXX", DexProgramID: "DexProgramXXXX"})
}

// Scenario 1 (§8): swap classification via instruction discriminator.
func TestDecodeSwapByInstructionDiscriminator(t *testing.T) {
	d := testDecoder()
	instr := []byte{248, 198, 158, 145, 225, 117, 135, 200}

	ev := d.Decode(map[string]any{
		"pool":      "P1",
		"amountIn":  1_000_000,
		"amountOut": 5_000_000_000,
		"mintIn":    "QuoteUSDC",
		"mintOut":   "BaseProtocolToken",
		"side":      "buy",
	}, instr, nil)

	require.Equal(t, tracker.EventSwap, ev.Kind)
	assert.Equal(t, tracker.ConfidenceHigh, ev.Confidence)
	assert.Equal(t, tracker.DirectionBuy, ev.Direction)
	assert.Equal(t, "P1", ev.PoolID)
}

// Scenario 2 (§8): event log discriminator fallback.
func TestDecodeLpAddByLogDiscriminator(t *testing.T) {
	d := testDecoder()

	prefix, ok := EncodeEventDiscriminator(tracker.EventLpAdd)
	require.True(t, ok)
	payload := append(append([]byte{}, prefix[:]...), []byte("extra-fields")...)
	encoded := base64.StdEncoding.EncodeToString(payload)

	logs := []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		"Program data: " + encoded,
	}

	ev := d.Decode(map[string]any{}, nil, logs)
	assert.Equal(t, tracker.EventLpAdd, ev.Kind)
	assert.Equal(t, tracker.ConfidenceHigh, ev.Confidence)
}

// §9 open question regression: explicit-label matching must be exact,
// not substring — "unlock_liquidity" must never match "lock_liquidity".
func TestExplicitLabelExactMatchNotSubstring(t *testing.T) {
	d := testDecoder()

	lock := d.Decode(map[string]any{"type": "lock_liquidity"}, nil, nil)
	assert.Equal(t, tracker.EventLockLiquidity, lock.Kind)

	unlock := d.Decode(map[string]any{"type": "unlock_liquidity"}, nil, nil)
	assert.Equal(t, tracker.EventUnlockLiquidity, unlock.Kind)
}

func TestDecodeHeuristicLpMintedAndBurned(t *testing.T) {
	d := testDecoder()

	minted := d.Decode(map[string]any{"shares_minted": 100}, nil, nil)
	assert.Equal(t, tracker.EventLpAdd, minted.Kind)
	assert.Equal(t, tracker.ConfidenceMedium, minted.Confidence)

	burned := d.Decode(map[string]any{"shares_burned": 100}, nil, nil)
	assert.Equal(t, tracker.EventLpRemove, burned.Kind)
	assert.Equal(t, tracker.ConfidenceMedium, burned.Confidence)
}

func TestDecodeHeuristicSwapFromDistinctMints(t *testing.T) {
	d := testDecoder()
	ev := d.Decode(map[string]any{
		"amount_in": 100, "amount_out": 200,
		"mint_in": "A", "mint_out": "B",
	}, nil, nil)
	assert.Equal(t, tracker.EventSwap, ev.Kind)
	assert.Equal(t, tracker.ConfidenceMedium, ev.Confidence)
}

func TestDecodeTradeSideTagLowConfidence(t *testing.T) {
	d := testDecoder()
	ev := d.Decode(map[string]any{"side": "sell"}, nil, nil)
	assert.Equal(t, tracker.EventSwap, ev.Kind)
	assert.Equal(t, tracker.ConfidenceLow, ev.Confidence)
	assert.Equal(t, tracker.DirectionSell, ev.Direction)
}

func TestDecodeUnknownWhenNothingMatches(t *testing.T) {
	d := testDecoder()
	ev := d.Decode(map[string]any{"foo": "bar"}, nil, nil)
	assert.True(t, ev.IsUnknown())
}

// Field-alias normalization: camelCase, snake_case, and abbreviated
// spellings all land on the same canonical field (spec §9).
func TestPayloadAliasNormalization(t *testing.T) {
	d := testDecoder()

	byCamel := d.Decode(map[string]any{"eventName": "swap"}, nil, nil)
	bySnake := d.Decode(map[string]any{"event_name": "swap"}, nil, nil)
	assert.Equal(t, tracker.EventSwap, byCamel.Kind)
	assert.Equal(t, tracker.EventSwap, bySnake.Kind)
}

// Swap direction inference (spec §4.5 "Swap direction rule").
func TestDirectionInferenceFromProtocolToken(t *testing.T) {
	d := testDecoder()
	ev := d.Decode(map[string]any{
		"amount_in": 10, "amount_out": 20,
		"mint_in": "OtherMint", "mint_out": "PrimaryMintXXXX",
	}, nil, nil)
	require.Equal(t, tracker.EventSwap, ev.Kind)
	assert.Equal(t, tracker.DirectionBuy, ev.Direction)
}

// Round-trip property (§8): decoding the event discriminator for every
// variant in the table and re-encoding it must round-trip to the same
// 8-byte prefix.
func TestEventDiscriminatorRoundTrip(t *testing.T) {
	for prefix, kind := range eventDiscriminators {
		got, ok := EncodeEventDiscriminator(kind)
		require.True(t, ok, "kind %s must re-encode", kind)
		// Multiple prefixes can map to the same kind; what must hold is
		// that decoding got's prefix again resolves to the same kind.
		resolved, ok := eventDiscriminators[got]
		require.True(t, ok)
		assert.Equal(t, kind, resolved)
		_ = prefix
	}
}

func TestInstructionDiscriminatorRoundTrip(t *testing.T) {
	for prefix, kind := range instructionDiscriminators {
		got, ok := EncodeInstructionDiscriminator(kind)
		require.True(t, ok, "kind %s must re-encode", kind)
		resolved, ok := instructionDiscriminators[got]
		require.True(t, ok)
		assert.Equal(t, kind, resolved)
		_ = prefix
	}
}
