package decoder

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	tracker "github.com/solwatch/tracker"
)

// payload is the normalized view of an opaque upstream JSON object,
// populated via mapstructure with an alias map so camelCase, snake_case
// and abbreviated spellings all land on the same field (spec §9
// "Dynamic payloads").
type payload struct {
	Type           string `mapstructure:"type"`
	EventName      string `mapstructure:"event_name"`
	Action         string `mapstructure:"action"`
	InstructionName string `mapstructure:"instruction_name"`

	Sig string `mapstructure:"sig"`

	PoolID string `mapstructure:"pool"`
	Wallet string `mapstructure:"wallet"`

	Side string `mapstructure:"side"`

	AmountIn  uint64 `mapstructure:"amount_in"`
	AmountOut uint64 `mapstructure:"amount_out"`
	MintIn    string `mapstructure:"mint_in"`
	MintOut   string `mapstructure:"mint_out"`
	DecIn     int    `mapstructure:"dec_in"`
	DecOut    int    `mapstructure:"dec_out"`

	BaseMint  string `mapstructure:"base_mint"`
	QuoteMint string `mapstructure:"quote_mint"`

	SharesMinted uint64 `mapstructure:"shares_minted"`
	SharesBurned uint64 `mapstructure:"shares_burned"`

	BaseAmount  uint64 `mapstructure:"base_amount"`
	QuoteAmount uint64 `mapstructure:"quote_amount"`
	IsOutflow   bool   `mapstructure:"is_outflow"`

	UsdValue *float64 `mapstructure:"usd_value"`
}

// aliasMap lists every spelling this system is known to receive for a
// canonical field, across HTTP and WebSocket upstreams. Matched
// case-insensitively.
var aliasMap = map[string]string{
	"type":             "type",
	"eventname":        "event_name",
	"event_name":       "event_name",
	"eventtype":        "event_name",
	"action":           "action",
	"instructionname":  "instruction_name",
	"instruction_name": "instruction_name",
	"ixname":           "instruction_name",
	"signature":        "sig",
	"sig":              "sig",
	"txsig":            "sig",
	"tx_signature":     "sig",
	"poolid":           "pool",
	"pool_id":          "pool",
	"pool":             "pool",
	"wallet":           "wallet",
	"owner":            "wallet",
	"user":             "wallet",
	"side":             "side",
	"tradetype":        "side",
	"trade_type":       "side",
	"amountin":         "amount_in",
	"amount_in":        "amount_in",
	"inamount":         "amount_in",
	"amountout":        "amount_out",
	"amount_out":       "amount_out",
	"outamount":        "amount_out",
	"mintin":           "mint_in",
	"mint_in":          "mint_in",
	"inputmint":        "mint_in",
	"mintout":          "mint_out",
	"mint_out":         "mint_out",
	"outputmint":       "mint_out",
	"decimalsin":       "dec_in",
	"dec_in":           "dec_in",
	"decimalsout":      "dec_out",
	"dec_out":          "dec_out",
	"basemint":         "base_mint",
	"base_mint":        "base_mint",
	"quotemint":        "quote_mint",
	"quote_mint":       "quote_mint",
	"sharesminted":     "shares_minted",
	"shares_minted":    "shares_minted",
	"sharesburned":     "shares_burned",
	"shares_burned":    "shares_burned",
	"baseamount":       "base_amount",
	"base_amount":      "base_amount",
	"quoteamount":      "quote_amount",
	"quote_amount":     "quote_amount",
	"isoutflow":        "is_outflow",
	"is_outflow":       "is_outflow",
	"outflow":          "is_outflow",
	"usdvalue":         "usd_value",
	"usd_value":        "usd_value",
	"valueusd":         "usd_value",
	"value_usd":        "usd_value",
	"value":            "usd_value",
}

func aliasMatchName(mapKey, fieldName string) bool {
	lower := strings.ToLower(mapKey)
	canonical, ok := aliasMap[lower]
	if !ok {
		canonical, ok = aliasMap[strings.ReplaceAll(lower, "_", "")]
	}
	if !ok {
		return false
	}
	return canonical == fieldName
}

// parsePayload decodes an opaque JSON-ish map into payload using the
// alias map above, ignoring fields it doesn't recognize.
func parsePayload(raw map[string]any) payload {
	var p payload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		MatchName:        aliasMatchName,
	})
	if err != nil {
		return p
	}
	_ = dec.Decode(raw)
	return p
}

// label returns the first non-empty explicit classification label.
func (p payload) label() string {
	for _, v := range []string{p.Type, p.EventName, p.Action, p.InstructionName} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p payload) sig() string { return p.Sig }

func (p payload) side() (tracker.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(p.Side)) {
	case "buy":
		return tracker.DirectionBuy, true
	case "sell":
		return tracker.DirectionSell, true
	default:
		return "", false
	}
}

// explicitUSD returns the upstream-supplied USD value, if any (spec
// §4.8 priority (a) — tried before any price-based fallback).
func (p payload) explicitUSD() *float64 {
	return p.UsdValue
}

func (p payload) amounts() (tracker.SwapAmounts, bool) {
	if p.AmountIn == 0 && p.AmountOut == 0 {
		return tracker.SwapAmounts{}, false
	}
	return tracker.SwapAmounts{
		In:      p.AmountIn,
		Out:     p.AmountOut,
		MintIn:  tracker.Mint(p.MintIn),
		MintOut: tracker.Mint(p.MintOut),
		DecIn:   p.DecIn,
		DecOut:  p.DecOut,
	}, true
}
