// Package poller runs a refresh function on a fixed cadence while a venue
// is active.  It never runs two refreshes at once, pauses while the device
// is hidden or unfocused, and backs off for a cooldown after repeated
// failures.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the observable state of a Poller.
type State int

const (
	Idle State = iota
	Armed
	Refreshing
	Paused
	CoolingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Refreshing:
		return "refreshing"
	case Paused:
		return "paused"
	case CoolingDown:
		return "cooling_down"
	}
	return "unknown"
}

// RefreshFunc performs one refresh.
type RefreshFunc func(ctx context.Context) error

// Config controls the cadence and failure policy.
type Config struct {
	Interval         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultConfig is the UI-level polling tier.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second, FailureThreshold: 3, Cooldown: 30 * time.Second}
}

// Stats counts what a Poller has done since it was created.
type Stats struct {
	Refreshes           int
	Failures            int
	Dropped             int
	ConsecutiveFailures int
}

// Poller is a periodic refresher.  The zero value is not usable; call New.
type Poller struct {
	name    string
	refresh RefreshFunc
	cfg     Config
	logger  *zap.Logger

	mu         sync.Mutex
	running    bool
	visible    bool
	focused    bool
	refreshing bool
	cooling    bool
	stats      Stats
	cooldown   *time.Timer
	cancel     context.CancelFunc
	wake       chan struct{}
	wg         sync.WaitGroup
}

// New builds a stopped poller.  A nil logger disables logging.
func New(name string, refresh RefreshFunc, cfg Config, logger *zap.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		name:    name,
		refresh: refresh,
		cfg:     cfg,
		logger:  logger.With(zap.String("poller", name)),
		visible: true,
		focused: true,
		wake:    make(chan struct{}, 1),
	}
}

// Start arms the poller.  Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.cooling = false
	p.stats.ConsecutiveFailures = 0
	p.wg.Add(1)
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop disarms the poller and waits for an in-flight refresh to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cooling = false
	if p.cooldown != nil {
		p.cooldown.Stop()
		p.cooldown = nil
	}
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// SetVisible reports whether the device screen is visible.  Becoming
// visible again triggers an immediate refresh.
func (p *Poller) SetVisible(visible bool) {
	p.setPresence(func() { p.visible = visible })
}

// SetFocused reports whether the app has input focus.  Regaining focus
// triggers an immediate refresh.
func (p *Poller) SetFocused(focused bool) {
	p.setPresence(func() { p.focused = focused })
}

func (p *Poller) setPresence(apply func()) {
	p.mu.Lock()
	was := p.activeLocked()
	apply()
	now := p.activeLocked()
	p.mu.Unlock()
	if !was && now {
		p.kick()
	}
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.running:
		return Idle
	case p.refreshing:
		return Refreshing
	case p.cooling:
		return CoolingDown
	case !p.visible || !p.focused:
		return Paused
	}
	return Armed
}

// Stats returns a copy of the counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// activeLocked reports whether ticks should refresh.  Callers hold p.mu.
func (p *Poller) activeLocked() bool {
	return p.running && p.visible && p.focused && !p.cooling
}

// kick requests an out-of-band refresh.
func (p *Poller) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.wake:
			p.tick(ctx)
		}
	}
}

// tick starts a refresh unless one is in flight, in which case the tick
// is dropped.
func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if !p.activeLocked() {
		p.mu.Unlock()
		return
	}
	if p.refreshing {
		p.stats.Dropped++
		p.mu.Unlock()
		return
	}
	p.refreshing = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	err := p.refresh(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshing = false
	p.stats.Refreshes++
	if err == nil {
		p.stats.ConsecutiveFailures = 0
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.stats.Failures++
	p.stats.ConsecutiveFailures++
	p.logger.Warn("refresh failed",
		zap.Int("consecutive_failures", p.stats.ConsecutiveFailures),
		zap.Error(err))
	if p.stats.ConsecutiveFailures < p.cfg.FailureThreshold || !p.running {
		return
	}
	p.cooling = true
	p.logger.Warn("polling paused after repeated failures", zap.Duration("cooldown", p.cfg.Cooldown))
	p.cooldown = time.AfterFunc(p.cfg.Cooldown, p.endCooldown)
}

func (p *Poller) endCooldown() {
	p.mu.Lock()
	if !p.running || !p.cooling {
		p.mu.Unlock()
		return
	}
	p.cooling = false
	p.cooldown = nil
	p.stats.ConsecutiveFailures = 0
	resume := p.activeLocked()
	p.mu.Unlock()

	p.logger.Info("polling resumed")
	if resume {
		p.kick()
	}
}
