// Package engine wires the Catalog, Provider, CacheEngine, SyncController,
// and DisplayDispatcher together and drives the host protocol loop. Config
// precedence follows spec §6: built-in defaults, overridden by environment
// variables (github.com/caarlos0/env/v11, as louisbranch-fracturing.space's
// platform/config package uses it), overridden again by the runtime INIT message —
// the highest-precedence source, since the host always knows the current
// deployment's intent best.
package engine

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/caarlos0/env/v11"

	"photoframe-sync/internal/domain"
)

// Config is the full set of recognized options (spec §6).
type Config struct {
	ProviderKey      string              `env:"PROVIDER_KEY" envDefault:"localdir"`
	ProviderConfig   map[string]string   `env:"-"`
	Containers       []domain.Container  `env:"-"`
	DisplayWidth     int                 `env:"DISPLAY_WIDTH" envDefault:"1920"`
	DisplayHeight    int                 `env:"DISPLAY_HEIGHT" envDefault:"1080"`
	UpdateIntervalMs int                 `env:"UPDATE_INTERVAL_MS" envDefault:"60000"`
	ScanIntervalMs   int                 `env:"SCAN_INTERVAL_MS" envDefault:"21600000"`
	MaxCacheMB       int                 `env:"MAX_CACHE_MB" envDefault:"200"`
	JPEGQuality      int                 `env:"JPEG_QUALITY" envDefault:"85"`
	UseBlobStorage   bool                `env:"USE_BLOB_STORAGE" envDefault:"true"`
	SortMode         string              `env:"SORT_MODE" envDefault:"sequential"`
	MaxAuthRetries   int                 `env:"MAX_AUTH_RETRIES" envDefault:"0"` // 0 = unbounded
	MaxAuthBackoffMs int                 `env:"MAX_AUTH_BACKOFF_MS" envDefault:"120000"`
	CredentialsPath  string              `env:"CREDENTIALS_PATH"`
	TokenPath        string              `env:"TOKEN_PATH"`
	CatalogPath      string              `env:"CATALOG_PATH" envDefault:"./photoframe.db"`
	CacheDir         string              `env:"CACHE_DIR" envDefault:"./cache"`
}

// defaults mirrors the envDefault tags above, used when a value (whether
// from env or from an INIT override) fails validation and must fall back
// with a warning (spec §6 "Invalid values fall back to defaults").
func defaults() Config {
	return Config{
		ProviderKey:      "localdir",
		DisplayWidth:     1920,
		DisplayHeight:    1080,
		UpdateIntervalMs: 60000,
		ScanIntervalMs:   21600000,
		MaxCacheMB:       200,
		JPEGQuality:      85,
		UseBlobStorage:   true,
		SortMode:         "sequential",
		MaxAuthBackoffMs: 120000,
		CatalogPath:      "./photoframe.db",
		CacheDir:         "./cache",
	}
}

// LoadFromEnv parses the environment-variable layer over the built-in
// defaults. Every variable name carries the PHOTOFRAME_ prefix
// (PHOTOFRAME_PROVIDER_KEY, PHOTOFRAME_CACHE_DIR, ...).
func LoadFromEnv() (Config, error) {
	cfg := defaults()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PHOTOFRAME_"}); err != nil {
		return Config{}, fmt.Errorf("engine: parse env config: %w", err)
	}
	return cfg, nil
}

// ApplyInitOverrides merges an INIT message's config map over cfg — the
// highest-precedence layer (spec §6). Unrecognized keys are ignored.
// Invalid values never fail startup; each logs a warning. A non-numeric
// value for a numeric key keeps the current value; an update_interval
// below 10000, a jpeg_quality outside 1-100 or an unknown sort_mode falls
// back to the built-in default; max_auth_backoff_ms is clamped into
// 5000-600000.
func ApplyInitOverrides(cfg Config, overrides map[string]any) Config {
	def := defaults()

	if v, ok := overrides["provider_key"].(string); ok && v != "" {
		cfg.ProviderKey = v
	}
	if v, ok := overrides["display_width"]; ok {
		cfg.DisplayWidth = intOrWarn(v, cfg.DisplayWidth, "display_width")
	}
	if v, ok := overrides["display_height"]; ok {
		cfg.DisplayHeight = intOrWarn(v, cfg.DisplayHeight, "display_height")
	}
	if v, ok := overrides["update_interval"]; ok {
		ms := intOrWarn(v, cfg.UpdateIntervalMs, "update_interval")
		if ms < 10000 {
			log.WithField("value", ms).Warn("engine: update_interval below minimum 10000ms, falling back to default")
			ms = def.UpdateIntervalMs
		}
		cfg.UpdateIntervalMs = ms
	}
	if v, ok := overrides["scan_interval"]; ok {
		cfg.ScanIntervalMs = intOrWarn(v, cfg.ScanIntervalMs, "scan_interval")
	}
	if v, ok := overrides["max_cache_mb"]; ok {
		cfg.MaxCacheMB = intOrWarn(v, cfg.MaxCacheMB, "max_cache_mb")
	}
	if v, ok := overrides["jpeg_quality"]; ok {
		q := intOrWarn(v, cfg.JPEGQuality, "jpeg_quality")
		if q < 1 || q > 100 {
			log.WithField("value", q).Warn("engine: jpeg_quality out of range, falling back to default")
			q = def.JPEGQuality
		}
		cfg.JPEGQuality = q
	}
	if v, ok := overrides["use_blob_storage"].(bool); ok {
		cfg.UseBlobStorage = v
	}
	if v, ok := overrides["sort_mode"].(string); ok {
		if _, valid := domain.ParseSortMode(v); valid {
			cfg.SortMode = v
		} else {
			log.WithField("value", v).Warn("engine: invalid sort_mode, falling back to default")
			cfg.SortMode = def.SortMode
		}
	}
	if v, ok := overrides["max_auth_retries"]; ok {
		cfg.MaxAuthRetries = intOrWarn(v, cfg.MaxAuthRetries, "max_auth_retries")
	}
	if v, ok := overrides["max_auth_backoff_ms"]; ok {
		ms := intOrWarn(v, cfg.MaxAuthBackoffMs, "max_auth_backoff_ms")
		if ms < 5000 || ms > 600000 {
			log.WithField("value", ms).Warn("engine: max_auth_backoff_ms out of range, clamping")
			if ms < 5000 {
				ms = 5000
			} else {
				ms = 600000
			}
		}
		cfg.MaxAuthBackoffMs = ms
	}
	if v, ok := overrides["credentials_path"].(string); ok {
		cfg.CredentialsPath = v
	}
	if v, ok := overrides["token_path"].(string); ok {
		cfg.TokenPath = v
	}
	if raw, ok := overrides["containers"]; ok {
		if containers, ok := parseContainers(raw); ok {
			cfg.Containers = containers
		} else {
			log.Warn("engine: invalid containers list, ignoring override")
		}
	}
	if raw, ok := overrides["provider_config"].(map[string]any); ok {
		cfg.ProviderConfig = stringifyMap(raw)
	}

	return cfg
}

func intOrWarn(v any, fallback int, field string) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		log.WithField("field", field).Warn("engine: non-numeric config value, keeping previous value")
		return fallback
	}
}

func parseContainers(raw any) ([]domain.Container, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]domain.Container, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		id, _ := m["id"].(string)
		depth := -1
		if d, ok := m["depth"]; ok {
			depth = intOrWarn(d, -1, "containers[].depth")
		}
		out = append(out, domain.Container{ID: id, Depth: depth})
	}
	return out, true
}

func stringifyMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// UpdateInterval and friends convert the millisecond fields into
// time.Duration for the components that need it.
func (c Config) UpdateInterval() time.Duration { return time.Duration(c.UpdateIntervalMs) * time.Millisecond }
func (c Config) ScanInterval() time.Duration   { return time.Duration(c.ScanIntervalMs) * time.Millisecond }
func (c Config) MaxAuthBackoff() time.Duration {
	return time.Duration(c.MaxAuthBackoffMs) * time.Millisecond
}
func (c Config) MaxCacheBytes() int64 { return int64(c.MaxCacheMB) * 1024 * 1024 }
func (c Config) SortModeValue() domain.SortMode {
	m, _ := domain.ParseSortMode(c.SortMode)
	return m
}
