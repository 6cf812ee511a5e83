// Package notifier turns emergency events into a visible, audible alert
// that dismisses itself after a while.
package notifier

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
)

// DefaultDismissAfter is how long an alert stays up unless dismissed.
const DefaultDismissAfter = 30 * time.Second

// Sounder plays the audible cue.  Failures are logged and never block the
// visual alert.
type Sounder interface {
	Play() error
}

// TerminalBell rings the terminal bell on W.
type TerminalBell struct {
	W io.Writer
}

// Play writes BEL.
func (b TerminalBell) Play() error {
	if b.W == nil {
		return nil
	}
	_, err := io.WriteString(b.W, "\a")
	return err
}

// Alert is the currently displayed emergency.
type Alert struct {
	Event     changefeed.EmergencyEvent
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Notifier holds at most one alert.  A new emergency replaces the one on
// display; alerts are not queued.
type Notifier struct {
	sound   Sounder
	dismiss time.Duration
	logger  *zap.Logger
	now     func() time.Time

	// render orders listener calls so they match the order of state
	// changes.  Listeners must not call Notify or Dismiss.
	render  sync.Mutex
	mu      sync.Mutex
	current *Alert
	timer   *time.Timer
	seq     uint64
	onShow  []func(Alert)
	onClear []func()
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSounder sets the audible cue.
func WithSounder(s Sounder) Option {
	return func(n *Notifier) { n.sound = s }
}

// WithDismissAfter overrides DefaultDismissAfter.
func WithDismissAfter(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.dismiss = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// New returns a notifier with nothing on display.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		dismiss: DefaultDismissAfter,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnShow registers fn to render a new alert.
func (n *Notifier) OnShow(fn func(Alert)) {
	n.mu.Lock()
	n.onShow = append(n.onShow, fn)
	n.mu.Unlock()
}

// OnClear registers fn to hide the alert.
func (n *Notifier) OnClear(fn func()) {
	n.mu.Lock()
	n.onClear = append(n.onClear, fn)
	n.mu.Unlock()
}

// Notify displays ev, replacing any alert already shown, and restarts the
// auto-dismiss timer.
func (n *Notifier) Notify(ev changefeed.EmergencyEvent) {
	now := n.now()
	alert := Alert{Event: ev, ShownAt: now, ExpiresAt: now.Add(n.dismiss)}

	n.render.Lock()
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.seq++
	seq := n.seq
	n.current = &alert
	n.timer = time.AfterFunc(n.dismiss, func() { n.expire(seq) })
	show := slices.Clone(n.onShow)
	n.mu.Unlock()

	for _, fn := range show {
		fn(alert)
	}
	n.render.Unlock()
	n.play()
}

func (n *Notifier) play() {
	if n.sound == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("alert sound panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := n.sound.Play(); err != nil {
		n.logger.Warn("alert sound failed", zap.Error(err))
	}
}

func (n *Notifier) expire(seq uint64) {
	n.render.Lock()
	defer n.render.Unlock()
	n.mu.Lock()
	if seq != n.seq || n.current == nil {
		n.mu.Unlock()
		return
	}
	n.clearLocked()
	hide := slices.Clone(n.onClear)
	n.mu.Unlock()

	for _, fn := range hide {
		fn()
	}
}

// Dismiss hides the current alert.
func (n *Notifier) Dismiss() {
	n.expire(n.currentSeq())
}

func (n *Notifier) currentSeq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

// clearLocked drops the alert and its timer.  Callers hold n.mu.
func (n *Notifier) clearLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.current = nil
	n.seq++
}

// Current returns the alert on display.
func (n *Notifier) Current() (Alert, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Alert{}, false
	}
	return *n.current, true
}

// Close stops the auto-dismiss timer without notifying listeners.
func (n *Notifier) Close() error {
	n.mu.Lock()
	n.clearLocked()
	n.mu.Unlock()
	return nil
}
