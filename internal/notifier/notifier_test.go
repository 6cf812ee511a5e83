package notifier

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
)

type fakeSounder struct {
	plays atomic.Int32
	err   error
	crash bool
}

func (f *fakeSounder) Play() error {
	f.plays.Add(1)
	if f.crash {
		panic("no audio device")
	}
	return f.err
}

func event(childID string) changefeed.EmergencyEvent {
	return changefeed.EmergencyEvent{VenueID: "v1", ChildID: childID, ChildName: "Ana", Timestamp: time.Now()}
}

func TestNotifier_ShowAndAutoDismiss(t *testing.T) {
	snd := &fakeSounder{}
	n := New(WithSounder(snd), WithDismissAfter(30*time.Millisecond), WithLogger(zap.NewNop()))
	defer n.Close()

	var cleared atomic.Int32
	n.OnClear(func() { cleared.Add(1) })

	n.Notify(event("c1"))
	a, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "c1", a.Event.ChildID)
	assert.Equal(t, 30*time.Millisecond, a.ExpiresAt.Sub(a.ShownAt))
	assert.Equal(t, int32(1), snd.plays.Load())

	assert.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), cleared.Load())
}

func TestNotifier_LastOneWins(t *testing.T) {
	n := New(WithDismissAfter(80 * time.Millisecond))
	defer n.Close()

	var shown []string
	n.OnShow(func(a Alert) { shown = append(shown, a.Event.ChildID) })

	n.Notify(event("c1"))
	time.Sleep(50 * time.Millisecond)
	n.Notify(event("c2"))

	a, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "c2", a.Event.ChildID)
	assert.Equal(t, []string{"c1", "c2"}, shown)

	// c1's timer would have fired by now; c2 restarted it.
	time.Sleep(50 * time.Millisecond)
	_, ok = n.Current()
	assert.True(t, ok)
}

func TestNotifier_Dismiss(t *testing.T) {
	n := New()
	defer n.Close()
	n.Notify(event("c1"))
	n.Dismiss()
	_, ok := n.Current()
	assert.False(t, ok)
	assert.NotPanics(t, n.Dismiss)
}

func TestNotifier_SoundFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		n := New(WithSounder(&fakeSounder{err: errors.New("muted")}))
		defer n.Close()
		n.Notify(event("c1"))
		_, ok := n.Current()
		assert.True(t, ok)
	})

	t.Run("panic", func(t *testing.T) {
		n := New(WithSounder(&fakeSounder{crash: true}))
		defer n.Close()
		assert.NotPanics(t, func() { n.Notify(event("c1")) })
		_, ok := n.Current()
		assert.True(t, ok)
	})
}

func TestTerminalBell(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TerminalBell{W: &buf}.Play())
	assert.Equal(t, "\a", buf.String())
	assert.NoError(t, TerminalBell{}.Play())
}

func TestNotifier_RenderOrderMatchesCurrent(t *testing.T) {
	n := New(WithDismissAfter(time.Minute))
	defer n.Close()

	var (
		mu    sync.Mutex
		shown string
	)
	n.OnShow(func(a Alert) {
		mu.Lock()
		shown = a.Event.ChildID
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n.Notify(event(fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	a, ok := n.Current()
	require.True(t, ok)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, a.Event.ChildID, shown, "the rendered alert is the current one")
}
