package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/configs"
	"github.com/solwatch/tracker/internal/db"
	"github.com/solwatch/tracker/internal/decoder"
	"github.com/solwatch/tracker/internal/feeds"
	"github.com/solwatch/tracker/internal/notifysink"
	"github.com/solwatch/tracker/internal/portfoliosource"
	"github.com/solwatch/tracker/internal/registry"
	"github.com/solwatch/tracker/internal/resolver"
	"github.com/solwatch/tracker/pkg/httpclient"
)

func main() {
	// godotenv loading mirrors the teacher's test-only local-dev
	// convenience; in production the values just aren't present and
	// os.Getenv falls through to config defaults.
	_ = godotenv.Load(".env.local")

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := log.With().Str("service", "tracker").Logger()

	conf, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if conf.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	dsn := conf.DB.DSN()
	if pw := os.Getenv("DB_PASSWORD"); pw != "" {
		conf.DB.Password = pw
		dsn = conf.DB.DSN()
	}
	store, err := db.Open(dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}

	limiters := httpclient.NewLimiters(map[string]float64{
		resolver.ProviderAggregatorA: 50,
		resolver.ProviderAggregatorB: 30,
		resolver.ProviderDexscreener: 10,
		resolver.ProviderCoingecko:   10,
		resolver.ProviderProtocolAPI: 20,
		resolver.ProviderSolscan:     10,
	})

	aggAClient := httpclient.New(resolver.ProviderAggregatorA, limiters)
	aggBClient := httpclient.New(resolver.ProviderAggregatorB, limiters)
	dexscreenerClient := httpclient.New(resolver.ProviderDexscreener, limiters)
	coingeckoClient := httpclient.New(resolver.ProviderCoingecko, limiters)
	protocolClient := httpclient.New(resolver.ProviderProtocolAPI, limiters)
	solscanClient := httpclient.New(resolver.ProviderSolscan, limiters)
	dexAPIClient := httpclient.New("dex_api", limiters)
	rpcClient := httpclient.New("rpc", limiters)

	priceProviders := []resolver.PriceProvider{
		resolver.NewAggregatorAPriceProvider(aggAClient, conf.AggregatorAURL),
		resolver.NewDexscreenerPriceProvider(dexscreenerClient, conf.DexscreenerURL),
	}
	if apiKey := os.Getenv("AGGREGATOR_B_API_KEY"); apiKey != "" {
		priceProviders = append(priceProviders, resolver.NewAggregatorBPriceProvider(aggBClient, conf.AggregatorBURL, apiKey))
	}
	priceProviders = append(priceProviders, resolver.NewCoingeckoPriceProvider(coingeckoClient, conf.CoingeckoURL, conf.PrimaryTokenMint, "solana"))
	symbolProviders := []resolver.SymbolProvider{
		resolver.NewProtocolAPISymbolProvider(protocolClient, conf.DexAPIBaseURL),
		resolver.NewSolscanSymbolProvider(solscanClient, conf.SolscanURL),
		resolver.NewDexscreenerSymbolProvider(dexscreenerClient, conf.DexscreenerURL),
		resolver.NewOnchainMetadataSymbolProvider(aggAClient, conf.AggregatorAURL),
	}

	reg := registry.New(conf.ToRegistryConfig(), dexAPIClient, conf.DexAPIBaseURL+"/pools", logger)
	res := resolver.New(conf.ToResolverConfig(), priceProviders, symbolProviders, conf.MaxCacheSize(), logger)
	dec := decoder.New(conf.ToDecoderConfig())
	source := portfoliosource.New(conf.ToPortfolioSourceConfig(), rpcClient, dexAPIClient, reg, res)
	sink := notifysink.New(conf.ToNotifySinkConfig(), logger)

	core := tracker.NewCore(conf.ToCoreConfig(), store, reg, res, dec, dexAPIClient, sink, tracker.NewRenderer(res), source, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial pool registry refresh failed")
	}
	if err := core.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap")
	}

	core.DexFeed = buildDexFeed(conf, dexAPIClient, reg, core, logger)
	core.WalletFeed = buildWalletFeed(conf, core, logger)
	core.RefreshWalletFeed()

	go core.DexFeed.Run(ctx)
	go core.WalletFeed.Run(ctx)
	core.StartScheduledJobs(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	cancel()
	core.Scheduler.Shutdown()
}

// buildDexFeed wires the DEX program activity feed with core.Dedup.DexTxs
// as its dedup set, so a signature is checked against the seen-tx store
// exactly once, at the feed layer, before core.HandleDexMessage ever runs.
func buildDexFeed(conf *configs.Config, client *httpclient.Client, reg *registry.Registry, core *tracker.Core, logger zerolog.Logger) *feeds.DexFeed {
	return feeds.NewDexFeed(conf.ToDexFeedConfig(), client, reg, core.Dedup.DexTxs, core.HandleDexMessage, logger)
}

// buildWalletFeed wires the tracked-wallet activity feed the same way,
// against core.Dedup.WalletTxs.
func buildWalletFeed(conf *configs.Config, core *tracker.Core, logger zerolog.Logger) *feeds.WalletFeed {
	return feeds.NewWalletFeed(conf.ToWalletFeedConfig(), core.Dedup.WalletTxs, core.HandleWalletMessage, logger)
}
