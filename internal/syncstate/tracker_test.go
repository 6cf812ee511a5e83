package syncstate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	now := time.Date(2025, 10, 11, 19, 0, 0, 0, time.Local)
	tr := New(func() time.Time { return now })

	st := tr.Status()
	assert.True(t, st.Online)
	assert.False(t, st.Syncing)
	assert.True(t, st.LastSync.IsZero())

	tr.Begin()
	assert.True(t, tr.Status().Syncing)

	tr.End(errors.New("dial tcp: refused"), true)
	st = tr.Status()
	assert.False(t, st.Online)
	assert.False(t, st.Syncing)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, "dial tcp: refused", st.LastError)

	tr.Begin()
	tr.End(nil, false)
	st = tr.Status()
	assert.True(t, st.Online)
	assert.Equal(t, now, st.LastSync)
	assert.Equal(t, 0, st.Failures)
	assert.Empty(t, st.LastError)
}

func TestTracker_ZeroValue(t *testing.T) {
	var tr Tracker
	tr.End(nil, false)
	assert.False(t, tr.Status().LastSync.IsZero())

	tr.SetOnline(false)
	assert.False(t, tr.Status().Online)
}
