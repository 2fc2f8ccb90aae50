package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"

	"photoframe-sync/internal/cache"
	"photoframe-sync/internal/catalog"
	"photoframe-sync/internal/display"
	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/hostproto"
	"photoframe-sync/internal/provider"
	syncctl "photoframe-sync/internal/sync"
)

// Engine owns the Catalog, Provider, and the three recurring tasks, and
// drives the host NDJSON protocol loop (spec §4, §5, §6).
type Engine struct {
	cfg Config

	cat        *catalog.SQLite
	prov       domain.Provider
	controller *syncctl.Controller
	cacheEng   *cache.Engine
	dispatcher *display.Dispatcher

	out *hostproto.Writer

	cacheTimer *time.Timer
	dispTimer  *time.Timer

	mu      sync.Mutex
	started bool
}

// New constructs an Engine bound to out for host notifications. Nothing
// starts until Run or Start is called.
func New(cfg Config, out *hostproto.Writer) *Engine {
	return &Engine{cfg: cfg, out: out, cat: catalog.Open(cfg.CatalogPath)}
}

// notifier adapts the hostproto.Writer to syncctl.Notifier.
type notifier struct{ out *hostproto.Writer }

func (n notifier) ConnectionStatus(offline bool, detail string) {
	status := "online"
	if offline {
		status = "offline"
	}
	if err := n.out.ConnectionStatus(status, detail); err != nil {
		log.WithError(err).Warn("engine: connection_status emit failed")
	}
}

func (n notifier) Error(terminal bool, message string) {
	if err := n.out.Error(message, ""); err != nil {
		log.WithError(err).Warn("engine: error emit failed")
	}
}

// Start performs Catalog init, builds the Provider from the registry,
// starts SyncController (one synchronous init attempt, per spec §4.4),
// and arms the CacheEngine and DisplayDispatcher timers. It is triggered
// by the host's INIT message (spec §6); a second INIT is a no-op here,
// since the components it would rebuild are already running. The engine
// keeps running even if Provider init fails — cached content still serves.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if err := e.cat.Init(ctx); err != nil {
		return err
	}

	registerBuiltins(e.cfg)
	prov, err := provider.Build(e.cfg.ProviderKey)
	if err != nil {
		log.WithError(err).Error("engine: no provider registered, cache engine will run read-only")
	}
	e.prov = prov

	e.controller = syncctl.New(prov, e.cat, syncctl.Config{
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     e.cfg.MaxAuthBackoff(),
		MaxRetries:     e.cfg.MaxAuthRetries,
		ScanInterval:   e.cfg.ScanInterval(),
		ContainerList:  e.cfg.Containers,
		ProviderKey:    e.cfg.ProviderKey,
	}, notifier{out: e.out})

	if prov != nil {
		e.controller.Start(ctx)
	}

	e.cacheEng = cache.New(e.cat, prov, e.controller.Ready, cache.Config{
		TickInterval:            30 * time.Second,
		MaxCacheBytes:           e.cfg.MaxCacheBytes(),
		BatchSize:               5,
		EvictBatchSize:          10,
		OfflineFailureThreshold: 3,
		OfflineCooldown:         60 * time.Second,
		CacheDir:                e.cfg.CacheDir,
		BlobStorage:             e.cfg.UseBlobStorage,
		Transform: cache.TransformOptions{
			DisplayWidth:  e.cfg.DisplayWidth,
			DisplayHeight: e.cfg.DisplayHeight,
			Quality:       e.cfg.JPEGQuality,
		},
		DownloadRetryAttempts: 3,
		DownloadRetryStep:     time.Second,
	})

	e.dispatcher = display.New(e.cat, e.out, display.Config{
		UpdateInterval: e.cfg.UpdateInterval(),
		FirstEmitDelay: 2 * time.Second,
		SortMode:       e.cfg.SortModeValue(),
	})

	e.armCacheTimer(ctx)
	e.armDisplayTimer(ctx, true)
	return nil
}

func (e *Engine) armCacheTimer(ctx context.Context) {
	e.cacheTimer = time.AfterFunc(30*time.Second, func() {
		e.cacheEng.Tick(ctx)
		e.armCacheTimer(ctx)
	})
}

func (e *Engine) armDisplayTimer(ctx context.Context, first bool) {
	delay := e.cfg.UpdateInterval()
	if first {
		delay = 2 * time.Second
	}
	e.dispTimer = time.AfterFunc(delay, func() {
		e.dispatcher.Tick(ctx)
		e.armDisplayTimer(ctx, false)
	})
}

// Stop cancels all recurring timers and closes the Catalog (spec §5
// "Cancellation").
func (e *Engine) Stop() {
	if e.cacheTimer != nil {
		e.cacheTimer.Stop()
	}
	if e.dispTimer != nil {
		e.dispTimer.Stop()
	}
	if e.controller != nil {
		e.controller.Stop()
	}
	if err := e.cat.Close(); err != nil {
		log.WithError(err).Warn("engine: catalog close failed")
	}
}

// HandleInbound dispatches one decoded host message (spec §6 "Inbound
// messages").
func (e *Engine) HandleInbound(ctx context.Context, msg *hostproto.RawMessage) {
	switch msg.Type {
	case hostproto.TypeInit:
		var payload hostproto.InitPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.WithError(err).Warn("engine: malformed INIT payload")
			return
		}
		e.cfg = ApplyInitOverrides(e.cfg, payload.Config)
		if err := e.Start(ctx); err != nil {
			log.WithError(err).Error("engine: INIT failed to start, surfacing terminal error")
			if werr := e.out.Error(err.Error(), ""); werr != nil {
				log.WithError(werr).Warn("engine: error emit failed")
			}
		}
	case hostproto.TypeImageLoaded:
		var payload hostproto.ImageLoadedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.WithError(err).Warn("engine: malformed IMAGE_LOADED payload")
			return
		}
		if e.dispatcher != nil {
			e.dispatcher.HandleImageLoaded(ctx, payload.ID)
		}
	case hostproto.TypeGetCacheStats:
		e.emitCacheStats(ctx)
	default:
		log.WithField("type", msg.Type).Warn("engine: unrecognized inbound message type")
	}
}

func (e *Engine) emitCacheStats(ctx context.Context) {
	if e.cacheEng == nil {
		return
	}
	stats, err := e.cacheEng.Stats(ctx)
	if err != nil {
		log.WithError(err).Warn("engine: cache stats query failed")
		return
	}
	if err := e.out.CacheStats(hostproto.CacheStatsPayload{
		TotalSizeMB:         stats.TotalSizeMB,
		MaxSizeMB:           stats.MaxSizeMB,
		UsagePercent:        stats.UsagePercent,
		CachedCount:         stats.CachedCount,
		TotalCount:          stats.TotalCount,
		CachePercent:        stats.CachePercent,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		IsOffline:           stats.IsOffline,
	}); err != nil {
		log.WithError(err).Warn("engine: cache_stats emit failed")
	}
}

// Run drives the blocking host-protocol read loop until reading or decoding
// the next line fails (io.EOF once the host closes its input stream). ctx
// is handed to the message handlers; cancelling it does not interrupt a
// blocked read.
func (e *Engine) Run(ctx context.Context, in *hostproto.Reader) error {
	for {
		msg, err := in.Next()
		if err != nil {
			return err
		}
		e.HandleInbound(ctx, msg)
	}
}
