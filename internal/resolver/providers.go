package resolver

import (
	"context"
	"fmt"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/pkg/httpclient"
)

// Provider names, also used as the ApiHealth map key and as
// TokenMeta.Source / PriceEntry.Source values where applicable.
const (
	ProviderAggregatorA  = "aggregator_a"
	ProviderAggregatorB  = "aggregator_b"
	ProviderDexscreener  = "dexscreener"
	ProviderCoingecko    = "coingecko"
	ProviderProtocolAPI  = "protocol_api"
	ProviderSolscan      = "solscan"
	ProviderOnchainMeta  = "onchain_metadata"
)

// aggregatorAPriceProvider batches up to 50 mints per request.
type aggregatorAPriceProvider struct {
	client  *httpclient.Client
	baseURL string
}

func NewAggregatorAPriceProvider(client *httpclient.Client, baseURL string) PriceProvider {
	return &aggregatorAPriceProvider{client: client, baseURL: baseURL}
}

func (p *aggregatorAPriceProvider) Name() string { return ProviderAggregatorA }

func (p *aggregatorAPriceProvider) FetchPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	const batchSize = 50
	out := make(map[string]float64)
	for i := 0; i < len(mints); i += batchSize {
		end := i + batchSize
		if end > len(mints) {
			end = len(mints)
		}
		var resp map[string]struct {
			Price float64 `json:"price"`
		}
		url := fmt.Sprintf("%s/price?ids=%s", p.baseURL, joinMints(mints[i:end]))
		if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
			return out, err
		}
		for mint, v := range resp {
			out[mint] = v.Price
		}
	}
	return out, nil
}

// dexscreenerPriceProvider fetches one token per call.
type dexscreenerPriceProvider struct {
	client  *httpclient.Client
	baseURL string
}

func NewDexscreenerPriceProvider(client *httpclient.Client, baseURL string) PriceProvider {
	return &dexscreenerPriceProvider{client: client, baseURL: baseURL}
}

func (p *dexscreenerPriceProvider) Name() string { return ProviderDexscreener }

func (p *dexscreenerPriceProvider) FetchPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, mint := range mints {
		var resp struct {
			Pairs []struct {
				PriceUsd string `json:"priceUsd"`
			} `json:"pairs"`
		}
		url := fmt.Sprintf("%s/tokens/%s", p.baseURL, mint)
		if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
			continue // single-token miss should not abort the whole batch
		}
		if len(resp.Pairs) == 0 {
			continue
		}
		var usd float64
		if _, err := fmt.Sscanf(resp.Pairs[0].PriceUsd, "%f", &usd); err == nil {
			out[mint] = usd
		}
	}
	return out, nil
}

// aggregatorBPriceProvider makes a single call with an optional API key.
type aggregatorBPriceProvider struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

func NewAggregatorBPriceProvider(client *httpclient.Client, baseURL, apiKey string) PriceProvider {
	return &aggregatorBPriceProvider{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (p *aggregatorBPriceProvider) Name() string { return ProviderAggregatorB }

func (p *aggregatorBPriceProvider) FetchPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/prices?ids=%s", p.baseURL, joinMints(mints))
	if p.apiKey != "" {
		url += "&api_key=" + p.apiKey
	}
	var resp map[string]float64
	if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// coingeckoPriceProvider only resolves the network token.
type coingeckoPriceProvider struct {
	client           *httpclient.Client
	baseURL          string
	networkTokenMint string
	networkTokenID   string // CoinGecko-style coin id, e.g. "solana"
}

func NewCoingeckoPriceProvider(client *httpclient.Client, baseURL, networkTokenMint, networkTokenID string) PriceProvider {
	return &coingeckoPriceProvider{client: client, baseURL: baseURL, networkTokenMint: networkTokenMint, networkTokenID: networkTokenID}
}

func (p *coingeckoPriceProvider) Name() string { return ProviderCoingecko }

func (p *coingeckoPriceProvider) FetchPrices(ctx context.Context, _ []string) (map[string]float64, error) {
	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", p.baseURL, p.networkTokenID)
	if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if v, ok := resp[p.networkTokenID]; ok {
		return map[string]float64{p.networkTokenMint: v.USD}, nil
	}
	return nil, fmt.Errorf("coingecko: no price for %s", p.networkTokenID)
}

// protocolAPISymbolProvider is the most authoritative source for the
// tracked protocol's own pools.
type protocolAPISymbolProvider struct {
	client  *httpclient.Client
	baseURL string
}

func NewProtocolAPISymbolProvider(client *httpclient.Client, baseURL string) SymbolProvider {
	return &protocolAPISymbolProvider{client: client, baseURL: baseURL}
}

func (p *protocolAPISymbolProvider) Name() string { return ProviderProtocolAPI }

func (p *protocolAPISymbolProvider) FetchMeta(ctx context.Context, mint string) (tracker.TokenMeta, error) {
	var resp struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
		Name     string `json:"name"`
	}
	url := fmt.Sprintf("%s/token/%s", p.baseURL, mint)
	if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
		return tracker.TokenMeta{}, err
	}
	return tracker.TokenMeta{Symbol: resp.Symbol, Decimals: resp.Decimals, Name: resp.Name, Source: tracker.SourceProtocolAPI}, nil
}

// solscanSymbolProvider wraps a Solscan-style token metadata endpoint.
type solscanSymbolProvider struct {
	client  *httpclient.Client
	baseURL string
}

func NewSolscanSymbolProvider(client *httpclient.Client, baseURL string) SymbolProvider {
	return &solscanSymbolProvider{client: client, baseURL: baseURL}
}

func (p *solscanSymbolProvider) Name() string { return ProviderSolscan }

func (p *solscanSymbolProvider) FetchMeta(ctx context.Context, mint string) (tracker.TokenMeta, error) {
	var resp struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
		Name     string `json:"name"`
	}
	url := fmt.Sprintf("%s/token/meta?token=%s", p.baseURL, mint)
	if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
		return tracker.TokenMeta{}, err
	}
	return tracker.TokenMeta{Symbol: resp.Symbol, Decimals: resp.Decimals, Name: resp.Name, Source: tracker.SourceOnchainMetadata}, nil
}

// dexscreenerSymbolProvider reuses the same pair endpoint price uses.
type dexscreenerSymbolProvider struct {
	client  *httpclient.Client
	baseURL string
}

func NewDexscreenerSymbolProvider(client *httpclient.Client, baseURL string) SymbolProvider {
	return &dexscreenerSymbolProvider{client: client, baseURL: baseURL}
}

func (p *dexscreenerSymbolProvider) Name() string { return ProviderDexscreener }

func (p *dexscreenerSymbolProvider) FetchMeta(ctx context.Context, mint string) (tracker.TokenMeta, error) {
	var resp struct {
		Pairs []struct {
			BaseToken struct {
				Symbol string `json:"symbol"`
				Name   string `json:"name"`
			} `json:"baseToken"`
		} `json:"pairs"`
	}
	url := fmt.Sprintf("%s/tokens/%s", p.baseURL, mint)
	if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
		return tracker.TokenMeta{}, err
	}
	if len(resp.Pairs) == 0 {
		return tracker.TokenMeta{}, fmt.Errorf("dexscreener: no pairs for %s", mint)
	}
	return tracker.TokenMeta{Symbol: resp.Pairs[0].BaseToken.Symbol, Name: resp.Pairs[0].BaseToken.Name, Source: tracker.SourceDexscreener}, nil
}

// onchainMetadataSymbolProvider resolves via aggregator A's metadata
// endpoint (on-chain metadata account lookup on the aggregator's side).
type onchainMetadataSymbolProvider struct {
	client  *httpclient.Client
	baseURL string
}

func NewOnchainMetadataSymbolProvider(client *httpclient.Client, baseURL string) SymbolProvider {
	return &onchainMetadataSymbolProvider{client: client, baseURL: baseURL}
}

func (p *onchainMetadataSymbolProvider) Name() string { return ProviderOnchainMeta }

func (p *onchainMetadataSymbolProvider) FetchMeta(ctx context.Context, mint string) (tracker.TokenMeta, error) {
	var resp struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
		Name     string `json:"name"`
	}
	url := fmt.Sprintf("%s/token-metadata/%s", p.baseURL, mint)
	if err := p.client.FetchJSON(ctx, url, &resp); err != nil {
		return tracker.TokenMeta{}, err
	}
	return tracker.TokenMeta{Symbol: resp.Symbol, Decimals: resp.Decimals, Name: resp.Name, Source: tracker.SourceOnchainMetadata}, nil
}

func joinMints(mints []string) string {
	out := ""
	for i, m := range mints {
		if i > 0 {
			out += ","
		}
		out += m
	}
	return out
}
