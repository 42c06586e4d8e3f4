// Package valuation implements USD valuation (spec §4.8) for trades, LP
// deposits/withdrawals, and wallet transactions.
//
// Grounded on the teacher's math/big-heavy decimal-aware calculation
// style (pkg/util's CalculateRebalanceAmounts / SqrtPriceToPrice):
// amounts always travel as raw integer + decimals, converted to a
// float USD value only at the valuation boundary, never earlier.
package valuation

import tracker "github.com/solwatch/tracker"

const sanityCapUSD = 100_000_000

// PriceLookup resolves a mint's current USD price. Satisfied by
// *resolver.Resolver.GetPrice.
type PriceLookup func(mint string) (float64, bool)

// TradeInput is the subset of a decoded event relevant to trade USD
// valuation.
type TradeInput struct {
	ExplicitUSD   *float64 // usdValue/valueUsd/value field, if present
	AmountIn      uint64
	AmountOut     uint64
	MintIn        tracker.Mint
	MintOut       tracker.Mint
	DecIn         int
	DecOut        int
	QuoteMint     tracker.Mint // the pool's quote side, for (b)
	BaseMint      tracker.Mint // the pool's base side, for (c)
	PoolSpotPrice *float64     // (d) pool's listed spot price of base, in quote terms is out of scope here; expressed directly in USD
}

// TradeUSD computes the USD value of a trade following the fallback
// chain in spec §4.8: explicit field, quote-side, base-side, pool spot
// price. Any computed value over $100M is a sanity failure and the
// next fallback is tried.
func TradeUSD(in TradeInput, price PriceLookup) (float64, bool) {
	if in.ExplicitUSD != nil {
		if v := *in.ExplicitUSD; v > 0 && v <= sanityCapUSD {
			return v, true
		}
	}

	if in.QuoteMint != "" {
		amount, dec, mint := quoteLeg(in)
		if p, ok := price(string(mint)); ok {
			v := (float64(amount) / pow10(dec)) * p
			if v > 0 && v <= sanityCapUSD {
				return v, true
			}
		}
	}

	if in.BaseMint != "" {
		amount, dec, mint := baseLeg(in)
		if p, ok := price(string(mint)); ok {
			v := (float64(amount) / pow10(dec)) * p
			if v > 0 && v <= sanityCapUSD {
				return v, true
			}
		}
	}

	if in.PoolSpotPrice != nil {
		amount, dec, _ := baseLeg(in)
		v := (float64(amount) / pow10(dec)) * (*in.PoolSpotPrice)
		if v > 0 && v <= sanityCapUSD {
			return v, true
		}
	}

	return 0, false
}

func quoteLeg(in TradeInput) (uint64, int, tracker.Mint) {
	if in.MintIn == in.QuoteMint {
		return in.AmountIn, in.DecIn, in.MintIn
	}
	return in.AmountOut, in.DecOut, in.MintOut
}

func baseLeg(in TradeInput) (uint64, int, tracker.Mint) {
	if in.MintIn == in.BaseMint {
		return in.AmountIn, in.DecIn, in.MintIn
	}
	return in.AmountOut, in.DecOut, in.MintOut
}

// LPInput is the amounts relevant to an LP add/remove valuation.
type LPInput struct {
	ExplicitUSD  *float64
	QuoteAmount  *uint64
	QuoteDecimals int
	QuoteMint    tracker.Mint
	BaseAmount   *uint64
	BaseDecimals int
	BaseMint     tracker.Mint
}

// LPUSD computes the USD value of an LP deposit/withdrawal. When both
// sides are known, it sums both — single-sided deposits are legal and
// must not be doubled (spec §4.8).
func LPUSD(in LPInput, price PriceLookup) (float64, bool) {
	if in.ExplicitUSD != nil {
		return *in.ExplicitUSD, true
	}

	var total float64
	var any bool

	if in.QuoteAmount != nil {
		if p, ok := price(string(in.QuoteMint)); ok {
			total += (float64(*in.QuoteAmount) / pow10(in.QuoteDecimals)) * p
			any = true
		}
	}
	if in.BaseAmount != nil {
		if p, ok := price(string(in.BaseMint)); ok {
			total += (float64(*in.BaseAmount) / pow10(in.BaseDecimals)) * p
			any = true
		}
	}

	return total, any
}

// TransferLeg is one token movement observed in a wallet transaction.
type TransferLeg struct {
	Mint     tracker.Mint
	Amount   uint64
	Decimals int
}

// WalletTxInput is a classified wallet transaction: native SOL lamports
// plus a set of token-transfer legs, already determined to be either a
// matched swap pair (both an outflow and an inflow leg present) or a
// one-sided transfer.
type WalletTxInput struct {
	NativeLamports   uint64
	NativeDecimals   int
	NetworkTokenMint tracker.Mint
	Transfers        []TransferLeg
	IsMatchedSwap    bool // true iff both sides of a swap were observed
}

// WalletTxUSD sums native + token transfer USD values. Per the §9 open
// question resolution, the result is halved only when the transaction
// was classified as a matched swap pair (both sides observed) — a
// one-sided transfer is never halved.
func WalletTxUSD(in WalletTxInput, price PriceLookup) float64 {
	var total float64

	if in.NativeLamports > 0 {
		if p, ok := price(string(in.NetworkTokenMint)); ok {
			total += (float64(in.NativeLamports) / pow10(in.NativeDecimals)) * p
		}
	}

	for _, t := range in.Transfers {
		if p, ok := price(string(t.Mint)); ok {
			total += (float64(t.Amount) / pow10(t.Decimals)) * p
		}
	}

	if in.IsMatchedSwap {
		total /= 2
	}
	return total
}

func pow10(n int) float64 {
	if n <= 0 {
		return 1
	}
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
