package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPrice(prices map[string]float64) PriceLookup {
	return func(mint string) (float64, bool) {
		v, ok := prices[mint]
		return v, ok
	}
}

// §8 scenario 1: quote USDC amountIn=1_000_000 (6 dec), price 1.0 => $1.00.
func TestTradeUSDQuoteSide(t *testing.T) {
	in := TradeInput{
		AmountIn: 1_000_000, DecIn: 6, MintIn: "USDC",
		AmountOut: 5_000_000_000, DecOut: 9, MintOut: "PROTOCOL",
		QuoteMint: "USDC", BaseMint: "PROTOCOL",
	}
	usd, ok := TradeUSD(in, fixedPrice(map[string]float64{"USDC": 1.0}))
	require.True(t, ok)
	assert.InDelta(t, 1.00, usd, 0.0001)
}

func TestTradeUSDExplicitFieldWins(t *testing.T) {
	explicit := 42.0
	in := TradeInput{ExplicitUSD: &explicit}
	usd, ok := TradeUSD(in, fixedPrice(nil))
	require.True(t, ok)
	assert.Equal(t, 42.0, usd)
}

func TestTradeUSDSanityCapFallsThrough(t *testing.T) {
	explicit := 200_000_000.0 // over the $100M cap
	in := TradeInput{
		ExplicitUSD: &explicit,
		AmountIn:    1_000_000, DecIn: 6, MintIn: "USDC",
		QuoteMint: "USDC",
	}
	usd, ok := TradeUSD(in, fixedPrice(map[string]float64{"USDC": 1.0}))
	require.True(t, ok)
	assert.InDelta(t, 1.0, usd, 0.0001, "sanity-capped explicit value must fall through to the next tier")
}

func TestTradeUSDBaseSideFallback(t *testing.T) {
	in := TradeInput{
		AmountIn: 1, DecIn: 9, MintIn: "PROTOCOL",
		AmountOut: 2, DecOut: 6, MintOut: "USDC",
		QuoteMint: "USDC", BaseMint: "PROTOCOL",
	}
	usd, ok := TradeUSD(in, fixedPrice(map[string]float64{"PROTOCOL": 3.0}))
	require.True(t, ok)
	assert.Greater(t, usd, 0.0)
}

func TestLPUSDDoesNotDoubleSingleSidedDeposit(t *testing.T) {
	quote := uint64(1_000_000)
	in := LPInput{QuoteAmount: &quote, QuoteDecimals: 6, QuoteMint: "USDC"}
	usd, ok := LPUSD(in, fixedPrice(map[string]float64{"USDC": 1.0}))
	require.True(t, ok)
	assert.Equal(t, 1.0, usd)
}

func TestLPUSDSumsBothSidesWhenPresent(t *testing.T) {
	quote := uint64(1_000_000)
	base := uint64(1_000_000_000)
	in := LPInput{
		QuoteAmount: &quote, QuoteDecimals: 6, QuoteMint: "USDC",
		BaseAmount: &base, BaseDecimals: 9, BaseMint: "PROTOCOL",
	}
	usd, ok := LPUSD(in, fixedPrice(map[string]float64{"USDC": 1.0, "PROTOCOL": 2.0}))
	require.True(t, ok)
	assert.Equal(t, 3.0, usd)
}

// §9 open question resolved: halve only when both swap sides observed.
func TestWalletTxUSDHalvesOnlyMatchedSwap(t *testing.T) {
	oneSided := WalletTxInput{
		Transfers: []TransferLeg{{Mint: "USDC", Amount: 10_000_000, Decimals: 6}},
	}
	usd := WalletTxUSD(oneSided, fixedPrice(map[string]float64{"USDC": 1.0}))
	assert.Equal(t, 10.0, usd, "one-sided transfer must not be halved")

	matched := WalletTxInput{
		Transfers: []TransferLeg{
			{Mint: "USDC", Amount: 10_000_000, Decimals: 6},
			{Mint: "PROTOCOL", Amount: 5_000_000_000, Decimals: 9},
		},
		IsMatchedSwap: true,
	}
	usd = WalletTxUSD(matched, fixedPrice(map[string]float64{"USDC": 1.0, "PROTOCOL": 2.0}))
	assert.Equal(t, 10.0, usd, "matched swap pair sums both legs then halves")
}

func TestWalletTxUSDIncludesNativeTransfer(t *testing.T) {
	in := WalletTxInput{
		NativeLamports: 1_000_000_000, NativeDecimals: 9, NetworkTokenMint: "SOL",
	}
	usd := WalletTxUSD(in, fixedPrice(map[string]float64{"SOL": 150.0}))
	assert.Equal(t, 150.0, usd)
}
