// Package sync drives a Provider's lifecycle (spec §4.4): one synchronous
// init attempt at startup, background exponential-backoff retry on
// failure, and a periodic full_scan/delta reconciliation against the
// Catalog. Modeled on the teacher's usecase.Synchronizer, generalized from
// a one-shot push/pull into a long-running controller with its own retry
// state machine.
package sync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/apex/log"

	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/retry"
)

// State is the controller's lifecycle state (spec §4.4 "Lifecycle states").
type State string

const (
	StateInitializing      State = "initializing"
	StateOnline            State = "online"
	StateOffline           State = "offline"
	StateRetrying          State = "retrying"
	StateErrorPermanent    State = "error"
	StateOfflineMaxRetries State = "offline_max_retries_exceeded"
)

// Config parameterizes the controller (spec §4.4 canonical defaults).
type Config struct {
	InitialBackoff time.Duration // 5s
	MaxBackoff     time.Duration // 120s (max_backoff_ms default)
	MaxRetries     int           // 0 = unbounded
	ScanInterval   time.Duration // 6h
	ContainerList  []domain.Container
	ProviderKey    string
}

// Notifier is the narrow slice of the host protocol the controller needs
// to emit connection-status and error notifications (spec "On sync
// failure").
type Notifier interface {
	ConnectionStatus(offline bool, detail string)
	Error(terminal bool, message string)
}

// Controller owns one Provider's init/retry/sync lifecycle.
type Controller struct {
	provider domain.Provider
	catalog  domain.Catalog
	cfg      Config
	notifier Notifier
	sched    *retry.Scheduler

	mu    sync.RWMutex
	state State

	timer *time.Timer
}

// New builds a Controller. It does not start anything; call Start.
func New(provider domain.Provider, catalog domain.Catalog, cfg Config, notifier Notifier) *Controller {
	return &Controller{
		provider: provider,
		catalog:  catalog,
		cfg:      cfg,
		notifier: notifier,
		sched:    retry.NewScheduler(cfg.InitialBackoff, cfg.MaxBackoff, cfg.MaxRetries),
		state:    StateInitializing,
	}
}

// Ready reports whether the Provider has completed initialization — the
// signal CacheEngine polls before fetching (spec §4.3 step 3).
func (c *Controller) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateOnline
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start performs the one synchronous init attempt (spec "Provider
// initialization"). The engine must continue starting regardless of the
// outcome — cached content keeps serving either way — so Start never
// blocks beyond that first attempt; failure schedules a background retry
// and returns control to the caller immediately.
func (c *Controller) Start(ctx context.Context) {
	if err := c.attemptInit(ctx); err != nil {
		c.handleInitFailure(ctx, err)
		return
	}
	c.onOnline(ctx)
}

func (c *Controller) attemptInit(ctx context.Context) error {
	return c.provider.Init(ctx)
}

func (c *Controller) onOnline(ctx context.Context) {
	c.sched.Reset()
	c.setState(StateOnline)
	c.notifier.ConnectionStatus(false, "")
	go c.runSyncCycle(ctx)
}

func (c *Controller) handleInitFailure(ctx context.Context, err error) {
	class := Classify(err)
	log.WithError(err).WithField("class", classString(class)).Warn("sync: provider init failed")

	if class == domain.ClassPermanent {
		c.setState(StateErrorPermanent)
		c.notifier.Error(true, err.Error())
		return
	}

	c.setState(StateOffline)
	cachedCount, _ := c.catalog.CachedCount(ctx)
	c.notifier.ConnectionStatus(true, cachedCountDetail(cachedCount))
	c.scheduleRetry(ctx)
}

func (c *Controller) scheduleRetry(ctx context.Context) {
	c.setState(StateRetrying)
	armed := c.sched.ScheduleRetry(func() {
		c.Start(ctx)
	})
	if !armed && c.sched.Exhausted() {
		c.setState(StateOfflineMaxRetries)
		c.notifier.Error(false, "max retries exceeded, still serving cached content")
	}
}

// scheduleSyncTimer arms the single recurring periodic-sync timer (spec
// "Periodic sync timer"). Each firing runs one Sync pass.
func (c *Controller) scheduleSyncTimer(ctx context.Context) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.ScanInterval, func() {
		c.runPeriodicSync(ctx)
	})
	c.mu.Unlock()
}

// runSyncCycle runs one sync pass (the initial pass right after coming
// online, or a periodic-timer firing) and always rearms the next periodic
// timer afterward, regardless of outcome — the timer keeps probing even
// while offline.
func (c *Controller) runSyncCycle(ctx context.Context) {
	if c.Ready() {
		if err := c.Sync(ctx); err != nil {
			class := Classify(err)
			log.WithError(err).WithField("class", classString(class)).Warn("sync: sync pass failed")
			c.onSyncFailure(ctx, err, class)
		}
	}
	c.scheduleSyncTimer(ctx)
}

func (c *Controller) runPeriodicSync(ctx context.Context) {
	c.runSyncCycle(ctx)
}

// onSyncFailure implements "On sync failure" (spec §4.4): transient drops
// back to offline and restarts the retry flow; permanent is terminal.
func (c *Controller) onSyncFailure(ctx context.Context, err error, class domain.ErrClass) {
	if class == domain.ClassPermanent {
		c.setState(StateErrorPermanent)
		c.notifier.Error(true, err.Error())
		return
	}

	c.setState(StateOffline)
	cachedCount, _ := c.catalog.CachedCount(ctx)
	c.notifier.ConnectionStatus(true, cachedCountDetail(cachedCount))
	c.sched.Reset()
	c.scheduleRetry(ctx)
}

// Stop cancels any pending retry and periodic timers (engine shutdown).
func (c *Controller) Stop() {
	c.sched.Stop()
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
}

func classString(c domain.ErrClass) string {
	switch c {
	case domain.ClassPermanent:
		return "permanent"
	case domain.ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

func cachedCountDetail(n int) string {
	if n == 1 {
		return "1 cached photo"
	}
	return strconv.Itoa(n) + " cached photos"
}
