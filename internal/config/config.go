// Package config holds the crawl configuration, loaded through viper from
// flags, MEDIACRAWL_* environment variables and an optional .mediacrawl.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/login"
	"github.com/jmylchreest/mediacrawl/internal/model"
	"github.com/jmylchreest/mediacrawl/internal/store"
	"github.com/jmylchreest/mediacrawl/internal/telemetry"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MEDIACRAWL"

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full crawl configuration.
type Config struct {
	CrawlerType string   `mapstructure:"crawler_type" validate:"oneof=search detail creator"`
	Keywords    string   `mapstructure:"keywords"`
	VideoURLs   []string `mapstructure:"video_urls" validate:"dive,url"`
	CreatorIDs  []string `mapstructure:"creator_ids"`

	LoginType  string `mapstructure:"login_type" validate:"oneof=cookie qrcode"`
	Cookies    string `mapstructure:"cookies"`
	QRCodePath string `mapstructure:"qrcode_path"`

	MaxItems       int           `mapstructure:"max_items" validate:"gte=1"`
	MaxComments    int           `mapstructure:"max_comments" validate:"gte=0"`
	MaxConcurrency int           `mapstructure:"max_concurrency" validate:"gte=1,lte=32"`
	EnableComments bool          `mapstructure:"enable_comments"`
	CrawlInterval  time.Duration `mapstructure:"crawl_interval" validate:"gte=0"`

	SaveDataOption string `mapstructure:"save_data_option" validate:"oneof=json jsonl yaml csv sqlite postgres db nats"`
	OutputDir      string `mapstructure:"output_dir"`
	CompactJSON    bool   `mapstructure:"compact_json"`
	JSONIndent     string `mapstructure:"json_indent"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	NATSURL        string `mapstructure:"nats_url"`
	NATSSubject    string `mapstructure:"nats_subject"`

	Browser   BrowserConfig   `mapstructure:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// BrowserConfig selects and configures the browser driver.
type BrowserConfig struct {
	Driver      string        `mapstructure:"driver" validate:"oneof=chromedp rod"`
	Headless    bool          `mapstructure:"headless"`
	RemoteURL   string        `mapstructure:"remote_url" validate:"omitempty,url"`
	UserDataDir string        `mapstructure:"user_data_dir"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ProxyConfig configures the proxy collaborator. ProviderURL wins over
// Server when both are set.
type ProxyConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProviderURL string `mapstructure:"provider_url" validate:"omitempty,url"`
	Server      string `mapstructure:"server"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
}

// TelemetryConfig selects the OTLP trace exporter. No endpoint means spans
// are not exported.
type TelemetryConfig struct {
	OTLPEndpoint string            `mapstructure:"otlp_endpoint" validate:"omitempty,url"`
	OTLPProtocol string            `mapstructure:"otlp_protocol" validate:"oneof=http grpc"`
	OTLPHeaders  map[string]string `mapstructure:"otlp_headers"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler_type", model.CrawlerSearch)
	v.SetDefault("keywords", "")
	v.SetDefault("video_urls", []string{})
	v.SetDefault("creator_ids", []string{})

	v.SetDefault("login_type", login.TypeCookie)
	v.SetDefault("cookies", "")
	v.SetDefault("qrcode_path", "qrcode.png")

	v.SetDefault("max_items", 20)
	v.SetDefault("max_comments", 10)
	v.SetDefault("max_concurrency", 1)
	v.SetDefault("enable_comments", true)
	v.SetDefault("crawl_interval", 2*time.Second)

	v.SetDefault("save_data_option", store.OptionJSON)
	v.SetDefault("output_dir", "data/tiktok")
	v.SetDefault("compact_json", false)
	v.SetDefault("json_indent", "  ")
	v.SetDefault("sqlite_path", "data/tiktok.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("nats_subject", store.DefaultNATSSubject)

	v.SetDefault("browser.driver", browser.DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)
	v.SetDefault("browser.timeout", 30*time.Second)

	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.provider_url", "")
	v.SetDefault("proxy.server", "")
	v.SetDefault("proxy.user", "")
	v.SetDefault("proxy.password", "")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_protocol", telemetry.ProtocolHTTP)
	v.SetDefault("telemetry.otlp_headers", map[string]string{})
}

// Load applies defaults to v, decodes it and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CrawlerType = strings.ToLower(strings.TrimSpace(cfg.CrawlerType))
	cfg.SaveDataOption = strings.ToLower(strings.TrimSpace(cfg.SaveDataOption))
	cfg.Telemetry.OTLPProtocol = strings.ToLower(strings.TrimSpace(cfg.Telemetry.OTLPProtocol))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the inputs each crawler type needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	switch c.CrawlerType {
	case model.CrawlerSearch:
		if len(c.KeywordList()) == 0 {
			return fmt.Errorf("%w: search needs at least one keyword", ErrInvalid)
		}
	case model.CrawlerDetail:
		if len(c.VideoURLs) == 0 {
			return fmt.Errorf("%w: detail needs at least one video url", ErrInvalid)
		}
	case model.CrawlerCreator:
		if len(c.CreatorIDs) == 0 {
			return fmt.Errorf("%w: creator needs at least one creator id", ErrInvalid)
		}
	}

	switch c.SaveDataOption {
	case store.OptionPostgres, store.OptionDB:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for %s", ErrInvalid, c.SaveDataOption)
		}
	}

	if c.Proxy.Enabled && c.Proxy.ProviderURL == "" && c.Proxy.Server == "" {
		return fmt.Errorf("%w: proxy enabled without provider_url or server", ErrInvalid)
	}
	return nil
}

// KeywordList splits Keywords on commas, dropping blanks.
func (c *Config) KeywordList() []string {
	var out []string
	for _, k := range strings.Split(c.Keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// BrowserOptions converts the browser section into driver settings. The
// proxy is filled in by the caller once one has been obtained.
func (c *Config) BrowserOptions() browser.Config {
	opts := browser.DefaultConfig()
	opts.Driver = c.Browser.Driver
	opts.Headless = c.Browser.Headless
	opts.RemoteURL = c.Browser.RemoteURL
	opts.UserDataDir = c.Browser.UserDataDir
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	if c.Browser.Timeout > 0 {
		opts.Timeout = c.Browser.Timeout
	}
	return opts
}

// StoreOptions converts the persistence settings into sink options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Option:      c.SaveDataOption,
		CrawlerType: c.CrawlerType,
		Dir:         c.OutputDir,
		Compact:     c.CompactJSON,
		Indent:      c.JSONIndent,
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
		NATSURL:     c.NATSURL,
		NATSSubject: c.NATSSubject,
	}
}

// TelemetryOptions converts the telemetry section into exporter settings.
func (c *Config) TelemetryOptions() telemetry.Config {
	return telemetry.Config{
		Endpoint: c.Telemetry.OTLPEndpoint,
		Protocol: c.Telemetry.OTLPProtocol,
		Headers:  c.Telemetry.OTLPHeaders,
	}
}
