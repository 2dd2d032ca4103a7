package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmylchreest/mediacrawl/internal/browser"
	"github.com/jmylchreest/mediacrawl/internal/config"
	"github.com/jmylchreest/mediacrawl/internal/crawler"
	"github.com/jmylchreest/mediacrawl/internal/dispatch"
	"github.com/jmylchreest/mediacrawl/internal/logger"
	"github.com/jmylchreest/mediacrawl/internal/login"
	"github.com/jmylchreest/mediacrawl/internal/model"
	"github.com/jmylchreest/mediacrawl/internal/normalize"
	"github.com/jmylchreest/mediacrawl/internal/proxy"
	"github.com/jmylchreest/mediacrawl/internal/session"
	"github.com/jmylchreest/mediacrawl/internal/store"
	"github.com/jmylchreest/mediacrawl/internal/telemetry"
	"github.com/jmylchreest/mediacrawl/internal/version"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a crawl",
	Long: `Run a crawl in search, detail or creator mode.

Every flag can also be set in the config file or through a MEDIACRAWL_
environment variable (for example MEDIACRAWL_MAX_ITEMS or
MEDIACRAWL_BROWSER_DRIVER).

Examples:
  # Log in with a cookie header and search
  mediacrawl crawl --type search --keywords cats \
      --login-type cookie --cookies "sessionid_ss=...; tt_chain_token=..."

  # Scan a QR code to log in, keeping the profile for later runs
  mediacrawl crawl --login-type qrcode --headless=false \
      --user-data-dir ~/.mediacrawl/profile --keywords cats`,
	RunE: runCrawl,
}

// flagKeys maps crawl flags onto configuration keys.
var flagKeys = map[string]string{
	"type":            "crawler_type",
	"keywords":        "keywords",
	"video-url":       "video_urls",
	"creator-id":      "creator_ids",
	"login-type":      "login_type",
	"cookies":         "cookies",
	"qrcode-path":     "qrcode_path",
	"max-items":       "max_items",
	"max-comments":    "max_comments",
	"concurrency":     "max_concurrency",
	"comments":        "enable_comments",
	"interval":        "crawl_interval",
	"save":            "save_data_option",
	"output-dir":      "output_dir",
	"compact":         "compact_json",
	"sqlite-path":     "sqlite_path",
	"postgres-dsn":    "postgres_dsn",
	"nats-url":        "nats_url",
	"nats-subject":    "nats_subject",
	"driver":          "browser.driver",
	"headless":        "browser.headless",
	"remote-url":      "browser.remote_url",
	"user-data-dir":   "browser.user_data_dir",
	"user-agent":      "browser.user_agent",
	"browser-timeout": "browser.timeout",
	"proxy":           "proxy.enabled",
	"proxy-provider":  "proxy.provider_url",
	"proxy-server":    "proxy.server",
	"otlp-endpoint":   "telemetry.otlp_endpoint",
	"otlp-protocol":   "telemetry.otlp_protocol",
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	flags := crawlCmd.Flags()

	// Inputs
	flags.StringP("type", "t", model.CrawlerSearch, "crawler type: search, detail, creator")
	flags.StringP("keywords", "k", "", "comma-separated search keywords")
	flags.StringSlice("video-url", nil, "video page URL for detail mode (can be repeated)")
	flags.StringSlice("creator-id", nil, "creator unique id for creator mode (can be repeated)")

	// Login
	flags.String("login-type", login.TypeCookie, "login type: cookie, qrcode")
	flags.String("cookies", "", "cookie header for cookie login")
	flags.String("qrcode-path", "qrcode.png", "where to save the login QR code")

	// Limits
	flags.Int("max-items", 20, "max videos per keyword or creator")
	flags.Int("max-comments", 10, "max comments per video")
	flags.IntP("concurrency", "c", 1, "videos whose comments are fetched at once")
	flags.Bool("comments", true, "fetch comments")
	flags.Duration("interval", 2*time.Second, "minimum time between page loads")

	// Output
	flags.StringP("save", "s", store.OptionJSON, "storage: json, jsonl, yaml, csv, sqlite, postgres, nats")
	flags.StringP("output-dir", "o", "data/tiktok", "directory for file storage")
	flags.Bool("compact", false, "write JSON files without indentation")
	flags.String("sqlite-path", "data/tiktok.db", "SQLite database file")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	flags.String("nats-subject", store.DefaultNATSSubject, "NATS subject prefix")

	// Browser
	flags.String("driver", browser.DriverChromedp, "browser driver: chromedp, rod")
	flags.Bool("headless", true, "run the browser headless")
	flags.String("remote-url", "", "attach to a running browser instead of launching one")
	flags.String("user-data-dir", "", "persistent browser profile directory")
	flags.String("user-agent", "", "browser user agent")
	flags.Duration("browser-timeout", 30*time.Second, "browser startup timeout")

	// Proxy
	flags.Bool("proxy", false, "route the browser through a proxy")
	flags.String("proxy-provider", "", "URL returning a JSON list of proxies")
	flags.String("proxy-server", "", "static proxy, e.g. http://host:port")

	// Tracing
	flags.String("otlp-endpoint", "", "OTLP collector URL to export traces to")
	flags.String("otlp-protocol", telemetry.ProtocolHTTP, "OTLP protocol: http, grpc")

	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}
	logger.Debug("configuration loaded",
		"type", cfg.CrawlerType,
		"save", cfg.SaveDataOption,
		"driver", cfg.Browser.Driver,
		"comments", cfg.EnableComments)

	tel, err := telemetry.Setup(ctx, "mediacrawl", cfg.TelemetryOptions())
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	ctx, span := otel.Tracer("github.com/jmylchreest/mediacrawl/cmd/mediacrawl").Start(ctx, "mediacrawl.crawl",
		trace.WithAttributes(
			attribute.String("crawler.type", cfg.CrawlerType),
			attribute.String("store.option", cfg.SaveDataOption),
			attribute.String("service.version", version.Version),
		))
	defer span.End()

	err = crawl(ctx, cfg)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("crawl interrupted")
		return nil
	}
	return err
}

func crawl(ctx context.Context, cfg *config.Config) error {
	browserOpts := cfg.BrowserOptions()
	if cfg.Proxy.Enabled {
		p, err := proxyConfig(ctx, cfg.Proxy)
		if err != nil {
			logger.ErrorContext(ctx, "failed to get proxy", "error", err)
			return err
		}
		browserOpts.Proxy = p
	}

	b, err := browser.New(ctx, browserOpts)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start browser", "driver", browserOpts.Driver, "error", err)
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}()

	page, err := b.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	flow := &login.Flow{
		Type:       cfg.LoginType,
		Page:       page,
		BaseURL:    normalize.BaseURL,
		Cookies:    cfg.Cookies,
		QRCodePath: cfg.QRCodePath,
		Gate:       session.NewGate(),
	}
	if err := flow.Ensure(ctx); err != nil {
		logger.ErrorContext(ctx, "login failed", "type", cfg.LoginType, "error", err)
		return err
	}

	sink, err := store.New(ctx, cfg.StoreOptions())
	if err != nil {
		logger.ErrorContext(ctx, "failed to open storage", "option", cfg.SaveDataOption, "error", err)
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	c := crawler.New(b, page, sink, crawler.Config{
		BaseURL:     normalize.BaseURL,
		Keywords:    cfg.KeywordList(),
		VideoURLs:   cfg.VideoURLs,
		CreatorIDs:  cfg.CreatorIDs,
		MaxItems:    cfg.MaxItems,
		MaxComments: cfg.MaxComments,
		Comments: dispatch.Dispatcher{
			Enabled: cfg.EnableComments,
			Limit:   cfg.MaxConcurrency,
		},
	}, crawler.WithInterval(cfg.CrawlInterval))

	return c.Run(ctx, model.RunContext{CrawlerType: cfg.CrawlerType})
}

func proxyConfig(ctx context.Context, cfg config.ProxyConfig) (browser.ProxyConfig, error) {
	var provider proxy.Provider
	if cfg.ProviderURL != "" {
		provider = proxy.NewHTTPProvider(cfg.ProviderURL)
	} else {
		static, err := proxy.ParseServer(cfg.Server, cfg.User, cfg.Password)
		if err != nil {
			return browser.ProxyConfig{}, err
		}
		provider = static
	}

	info, err := provider.GetProxy(ctx)
	if err != nil {
		return browser.ProxyConfig{}, err
	}
	logger.Info("using proxy", "server", info.Server())
	return info.Browser(), nil
}
