package install

import (
	"sync"
	"time"

	"github.com/Hierosoft/hierosoft/pkg/types"
)

// throttle forwards at most one snapshot per interval to the callback.
// Terminal snapshots always go through.
type throttle struct {
	mu       sync.Mutex
	cb       types.ProgressFunc
	interval time.Duration
	now      func() time.Time
	last     time.Time
	sent     int
}

func newThrottle(cb types.ProgressFunc, interval time.Duration, now func() time.Time) *throttle {
	return &throttle{cb: cb, interval: interval, now: now}
}

func (t *throttle) offer(s types.ProgressSnapshot) {
	if t.cb == nil {
		return
	}
	t.mu.Lock()
	now := t.now()
	if t.sent > 0 && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return
	}
	t.last = now
	t.sent++
	t.mu.Unlock()
	t.cb(s)
}

func (t *throttle) final(s types.ProgressSnapshot) {
	if t.cb == nil {
		return
	}
	t.mu.Lock()
	t.sent++
	t.mu.Unlock()
	t.cb(s)
}

// simulateSnapshot reports the totals found so far; nothing is done yet.
func simulateSnapshot(rel string, st *types.RunState) types.ProgressSnapshot {
	return types.ProgressSnapshot{
		Status:           types.StatusSimulating,
		Rel:              rel,
		BytesTotal:       st.BytesPlanned + st.DeletesPlanned,
		FilesTotal:       st.FilesPlanned + st.DeleteFilesPlanned,
		DeletesTotal:     st.DeletesPlanned,
		DeleteFilesTotal: st.DeleteFilesPlanned,
	}
}

// commitSnapshot measures commit progress against the simulate totals.
func commitSnapshot(rel string, st, planned *types.RunState) types.ProgressSnapshot {
	return types.ProgressSnapshot{
		Status:           types.StatusCommitting,
		Rel:              rel,
		Percent:          st.Percent(planned),
		BytesDone:        st.BytesDone + st.DeletesDone,
		BytesTotal:       planned.BytesPlanned + planned.DeletesPlanned,
		FilesDone:        st.FilesAdded + st.DeleteFilesDone,
		FilesTotal:       planned.FilesPlanned + planned.DeleteFilesPlanned,
		DeletesDone:      st.DeletesDone,
		DeletesTotal:     planned.DeletesPlanned,
		DeleteFilesDone:  st.DeleteFilesDone,
		DeleteFilesTotal: planned.DeleteFilesPlanned,
	}
}
