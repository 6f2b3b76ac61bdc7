package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dtnitsch/lead-crawler/internal/config"
	"github.com/dtnitsch/lead-crawler/pkg/caching"
	"github.com/dtnitsch/lead-crawler/pkg/db"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the run logger. Logs go to w (stderr in the CLI) so
// stdout only carries the run output; log_file adds a rotated copy.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			if source, ok := a.Value.Any().(*slog.Source); ok {
				source.File = filepath.Base(source.File)
			}
		}
		return a
	}

	var handler slog.Handler
	if strings.ToLower(cfg.LogType) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource:   cfg.Debug,
			Level:       level,
			ReplaceAttr: replaceAttrs,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			AddSource:   cfg.Debug,
			Level:       level,
			ReplaceAttr: replaceAttrs,
			TimeFormat:  time.Kitchen,
			NoColor:     cfg.LogFile != "",
		})
	}
	return slog.New(handler), closer
}

// NewHTTPClient returns the client owned by one run. Per-attempt timeouts are
// applied by the fetcher through the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewLimiter returns nil when rps is zero, which disables rate limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// OpenCache prefers memcached when servers are configured, then the file
// cache. It returns nil when no cache is configured.
func OpenCache(cfg *config.Config, logger *slog.Logger) (caching.PageCache, error) {
	if cfg.Cache == nil {
		return nil, nil
	}
	if len(cfg.Cache.Servers) > 0 {
		mc, err := caching.NewMemcachedCache(cfg.Cache.Servers, cfg.Cache.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to memcached: %w", err)
		}
		return mc, nil
	}
	if cfg.Cache.Dir != "" {
		fc, err := caching.NewFileCache(cfg.Cache.Dir, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create page cache: %w", err)
		}
		return fc, nil
	}
	return nil, nil
}

// OpenStore returns nil for the "none" driver.
func OpenStore(ctx context.Context, cfg *config.Config) (db.LeadStore, error) {
	driver, dsn := "sqlite", ""
	if cfg.Store != nil {
		driver, dsn = cfg.Store.Driver, cfg.Store.DSN
	}

	switch driver {
	case "none":
		return nil, nil
	case "postgres":
		store, err := db.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	var (
		store *db.DB
		err   error
	)
	if dsn != "" {
		store, err = db.OpenPath(dsn)
	} else {
		store, err = db.Open()
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
