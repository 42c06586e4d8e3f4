// Package configs loads the YAML + environment configuration for the
// tracker and translates it into the strongly-typed config the core
// components consume.
package configs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/solwatch/tracker/internal/decoder"
	"github.com/solwatch/tracker/internal/fanout"
	"github.com/solwatch/tracker/internal/feeds"
	"github.com/solwatch/tracker/internal/notifysink"
	"github.com/solwatch/tracker/internal/portfolio"
	"github.com/solwatch/tracker/internal/registry"
	"github.com/solwatch/tracker/internal/resolver"
	"github.com/solwatch/tracker/internal/scheduler"

	tracker "github.com/solwatch/tracker"
	"github.com/solwatch/tracker/internal/portfoliosource"
)

// Config is the raw YAML shape of config.yml.
type Config struct {
	PrimaryTokenMint string   `yaml:"primary_token_mint"`
	StableMints      []string `yaml:"stable_mints"`
	DexProgramID     string   `yaml:"dex_program_id"`

	DexAPIBaseURL  string `yaml:"dex_api_base_url"`
	AggregatorAURL string `yaml:"aggregator_a_url"`
	AggregatorBURL string `yaml:"aggregator_b_url"`
	DexscreenerURL string `yaml:"dexscreener_url"`
	CoingeckoURL   string `yaml:"coingecko_url"`
	SolscanURL     string `yaml:"solscan_url"`
	DexWSURL       string `yaml:"dex_ws_url"`
	RPCWSURL       string `yaml:"rpc_ws_url"`

	DexWSTicketURL       string `yaml:"dex_ws_ticket_url"`
	DexWSBaseURL         string `yaml:"dex_ws_base_url"`
	DexTradesURLTemplate string `yaml:"dex_trades_url_template"`
	BackupTopN           int    `yaml:"backup_top_n"`
	SubscribeLimit       int    `yaml:"subscribe_limit"`

	AggregatorARPCURL        string `yaml:"aggregator_a_rpc_url"`
	AggregatorPnLURLTemplate string `yaml:"aggregator_pnl_url_template"`

	ChatWebhookURLTemplate string `yaml:"chat_webhook_url_template"`

	WSReconnectBaseMs   int `yaml:"ws_reconnect_base_ms"`
	PoolRefreshMs       int `yaml:"pool_refresh_ms"`
	PriceRefreshMs      int `yaml:"price_refresh_ms"`
	TradesPollMs        int `yaml:"trades_poll_ms"`
	PortfolioAutoSyncMs int `yaml:"portfolio_auto_sync_ms"`

	MaxWalletsPerUser int `yaml:"max_wallets_per_user"`
	MaxWatchlistItems int `yaml:"max_watchlist_items"`
	RecentAlertsCap   int `yaml:"max_recent_alerts"`
	CacheSize         int `yaml:"max_cache_size"`

	SaveDebounceMs    int `yaml:"save_debounce_ms"`
	DailyDigestHour   int `yaml:"daily_digest_hour"`
	DailyDigestMinute int `yaml:"daily_digest_minute"`

	Debug bool `yaml:"debug"`

	DB DBYAMLData `yaml:"db"`
}

// DBYAMLData configures the durable store connection.
type DBYAMLData struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DSN renders the GORM/MySQL data-source-name for this config.
func (d DBYAMLData) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &config, nil
}

func orDefaultMs(v, def int) time.Duration {
	if v <= 0 {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(v) * time.Millisecond
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ToDecoderConfig builds the event decoder's static configuration.
func (c *Config) ToDecoderConfig() decoder.Config {
	return decoder.Config{
		PrimaryTokenMint: c.PrimaryTokenMint,
		DexProgramID:     c.DexProgramID,
	}
}

// ToRegistryConfig builds the pool registry's configuration.
func (c *Config) ToRegistryConfig() registry.Config {
	cfg := registry.Config{
		PrimaryTokenMint: c.PrimaryTokenMint,
		DexProgramID:     c.DexProgramID,
		RefreshInterval:  orDefaultMs(c.PoolRefreshMs, 5*60*1000),
	}
	if c.DexAPIBaseURL != "" {
		cfg.VolumesURL = c.DexAPIBaseURL + "/volumes?tf=24h"
	}
	return cfg
}

// ToResolverConfig builds the price/metadata resolver's configuration.
func (c *Config) ToResolverConfig() resolver.Config {
	stables := make(map[string]bool, len(c.StableMints))
	for _, m := range c.StableMints {
		stables[m] = true
	}
	return resolver.Config{
		PrimaryTokenMint: c.PrimaryTokenMint,
		StableMints:      stables,
		RefreshInterval:  orDefaultMs(c.PriceRefreshMs, 5*60*1000),
	}
}

// ToFanoutConfig builds the fan-out layer's configuration.
func (c *Config) ToFanoutConfig() fanout.Config {
	return fanout.Config{
		MaxRecentAlerts: orDefaultInt(c.RecentAlertsCap, 20),
	}
}

// ToPortfolioConfig builds the portfolio engine's configuration.
func (c *Config) ToPortfolioConfig() portfolio.Config {
	return portfolio.Config{
		AutoSyncInterval: orDefaultMs(c.PortfolioAutoSyncMs, 5*60*1000),
	}
}

// ToSchedulerConfig builds the scheduler's job intervals.
func (c *Config) ToSchedulerConfig() scheduler.Config {
	return scheduler.Config{
		PoolRefreshInterval:       orDefaultMs(c.PoolRefreshMs, 5*60*1000),
		PriceRefreshInterval:      orDefaultMs(c.PriceRefreshMs, 5*60*1000),
		VolumeRefreshInterval:     5 * time.Minute,
		HealthCheckInterval:       time.Minute,
		BackupPollInterval:        orDefaultMs(c.TradesPollMs, 60*1000),
		CachePruneInterval:        15 * time.Minute,
		PersistenceFlushInterval:  orDefaultMs(c.SaveDebounceMs, 2000),
		PortfolioAutoSyncInterval: orDefaultMs(c.PortfolioAutoSyncMs, 5*60*1000),
		DailyDigestHour:           orDefaultInt(c.DailyDigestHour, 9),
		DailyDigestMinute:         c.DailyDigestMinute,
		SeenTxPruneHour:           3,
	}
}

// MaxWallets, MaxWatchlist, MaxRecentAlerts, MaxCacheSize expose the
// subscriber-invariant limits (§3 invariant 4) with their defaults.
func (c *Config) MaxWallets() int      { return orDefaultInt(c.MaxWalletsPerUser, 10) }
func (c *Config) MaxWatchlist() int    { return orDefaultInt(c.MaxWatchlistItems, 20) }
func (c *Config) MaxRecentAlerts() int { return orDefaultInt(c.RecentAlertsCap, 20) }
func (c *Config) MaxCacheSize() int    { return orDefaultInt(c.CacheSize, 5000) }
func (c *Config) SaveDebounce() time.Duration {
	return orDefaultMs(c.SaveDebounceMs, 2000)
}

// ToCoreConfig assembles the full Core configuration from the
// per-component translators plus the subscriber-invariant limits.
func (c *Config) ToCoreConfig() tracker.CoreConfig {
	return tracker.CoreConfig{
		Decoder:   c.ToDecoderConfig(),
		Registry:  c.ToRegistryConfig(),
		Resolver:  c.ToResolverConfig(),
		Fanout:    c.ToFanoutConfig(),
		Portfolio: c.ToPortfolioConfig(),
		Scheduler: c.ToSchedulerConfig(),

		DexAPIBaseURL: c.DexAPIBaseURL,

		MaxWallets:      c.MaxWallets(),
		MaxWatchlist:    c.MaxWatchlist(),
		MaxRecentAlerts: c.MaxRecentAlerts(),
		SeenTxCapacity:  c.MaxCacheSize(),
	}
}

// ToDexFeedConfig builds the DEX program activity feed's configuration
// (spec §4.6): a WebSocket ticket endpoint plus the HTTP backup poller.
func (c *Config) ToDexFeedConfig() feeds.DexFeedConfig {
	base := c.DexWSBaseURL
	tradesTemplate := c.DexTradesURLTemplate
	return feeds.DexFeedConfig{
		WSURLForTicket: func(ticket string) string {
			return fmt.Sprintf("%s?ticket=%s", base, ticket)
		},
		TicketURL: c.DexWSTicketURL,
		TradesURL: func(poolID string, limit int) string {
			return fmt.Sprintf(tradesTemplate, poolID, limit)
		},
		BackupPollInterval: orDefaultMs(c.TradesPollMs, 60*1000),
		BackupTopN:         orDefaultInt(c.BackupTopN, 50),
		SubscribeLimit:     orDefaultInt(c.SubscribeLimit, 10),
	}
}

// ToWalletFeedConfig builds the tracked-wallet activity feed's
// configuration (spec §4.6 "RPC feed: standard JSON-RPC logsSubscribe").
func (c *Config) ToWalletFeedConfig() feeds.WalletFeedConfig {
	return feeds.WalletFeedConfig{RPCWSURL: c.RPCWSURL}
}

// ToPortfolioSourceConfig builds the portfolio data source's Aggregator
// A wiring (spec §6's RPC method list). AggregatorPnLURL is left nil
// when no template is configured, which portfoliosource.Source treats
// as "no aggregator-supplied PnL override".
func (c *Config) ToPortfolioSourceConfig() portfoliosource.Config {
	cfg := portfoliosource.Config{
		RPCHTTPURL:       c.AggregatorARPCURL,
		NetworkTokenMint: c.PrimaryTokenMint,
		Decoder:          c.ToDecoderConfig(),
	}
	if c.AggregatorPnLURLTemplate != "" {
		template := c.AggregatorPnLURLTemplate
		cfg.AggregatorPnLURL = func(wallet string) string {
			return fmt.Sprintf(template, wallet)
		}
	}
	return cfg
}

// ToNotifySinkConfig builds the chat-platform webhook sink's
// configuration.
func (c *Config) ToNotifySinkConfig() notifysink.Config {
	template := c.ChatWebhookURLTemplate
	return notifysink.Config{
		SendURL: func(chatID int64) string {
			return fmt.Sprintf(template, chatID)
		},
	}
}
