package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./crosspost.db" description:"Path to the SQLite database file"`

	// Application configuration
	RegistryDir  string `long:"registry-dir" env:"REGISTRY_DIR" default:"./registry" description:"Directory containing pair and source registry files"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Collaborator endpoints
	GatewayURL     string `long:"gateway-url" env:"GATEWAY_URL" default:"https://api.telegram.org" description:"Bot gateway base URL"`
	GatewayToken   string `long:"gateway-token" env:"GATEWAY_TOKEN" description:"Bot gateway access token"`
	PreviewBaseURL string `long:"preview-base-url" env:"PREVIEW_BASE_URL" default:"https://t.me/s" description:"Public channel preview base URL"`
	TranslateURL   string `long:"translate-url" env:"TRANSLATE_URL" description:"Translation service URL (disables auto-translate when empty)"`
	TranslateTo    string `long:"translate-to" env:"TRANSLATE_TO" default:"en" description:"Target language for auto-translation"`
	ImageServerURL string `long:"image-server-url" env:"IMAGE_SERVER_URL" description:"Image processing service URL (disables watermarking when empty)"`

	// Pipeline intervals
	ChannelPollInterval    int `long:"channel-poll-interval" env:"CHANNEL_POLL_INTERVAL" default:"30" description:"Bot-API channel poll interval in seconds"`
	WebChannelPollInterval int `long:"web-channel-poll-interval" env:"WEB_CHANNEL_POLL_INTERVAL" default:"120" description:"Public-web channel poll interval in seconds"`
	WebFeedPollInterval    int `long:"web-feed-poll-interval" env:"WEB_FEED_POLL_INTERVAL" default:"300" description:"Web feed poll interval in seconds"`
	DispatchInterval       int `long:"dispatch-interval" env:"DISPATCH_INTERVAL" default:"60" description:"Dispatcher scan interval in seconds"`
	WorkerCount            int `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for pipeline tasks"`
	LogRetentionDays       int `long:"log-retention-days" env:"LOG_RETENTION_DAYS" default:"30" description:"Days to keep activity log entries"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Crosspost/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                 raw.DBPath,
		RegistryDir:            raw.RegistryDir,
		Port:                   raw.Port,
		APIAccessKey:           raw.APIAccessKey,
		GatewayURL:             raw.GatewayURL,
		GatewayToken:           raw.GatewayToken,
		PreviewBaseURL:         raw.PreviewBaseURL,
		TranslateURL:           raw.TranslateURL,
		TranslateTo:            raw.TranslateTo,
		ImageServerURL:         raw.ImageServerURL,
		ChannelPollInterval:    raw.ChannelPollInterval,
		WebChannelPollInterval: raw.WebChannelPollInterval,
		WebFeedPollInterval:    raw.WebFeedPollInterval,
		DispatchInterval:       raw.DispatchInterval,
		WorkerCount:            raw.WorkerCount,
		LogRetentionDays:       raw.LogRetentionDays,
		UserAgent:              raw.UserAgent,
		Timezone:               raw.Timezone,
		Debug:                  raw.Debug,
		Version:                GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
