package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"porter/internal/node"
)

func TestReconcileBeforeChunking(t *testing.T) {
	snap := Reconcile(node.Status{}, 1000)

	assert.Equal(t, PhaseProcessing, snap.Phase)
	assert.Equal(t, placeholderPercent, snap.Percent)
	assert.NotEqual(t, 0, snap.Percent)
	assert.NotEqual(t, 100, snap.Percent)
	assert.Equal(t, int64(0), snap.Bytes)
}

func TestReconcilePhases(t *testing.T) {
	tests := []struct {
		name    string
		status  node.Status
		phase   Phase
		percent int
	}{
		{
			name:    "nothing seen yet",
			status:  node.Status{Split: 10},
			phase:   PhaseProcessing,
			percent: 0,
		},
		{
			name:    "uploading",
			status:  node.Status{Split: 10, Seen: 4},
			phase:   PhaseUploading,
			percent: 40,
		},
		{
			name:    "syncing",
			status:  node.Status{Split: 10, Seen: 6, Sent: 3},
			phase:   PhaseSyncing,
			percent: 60,
		},
		{
			name:    "sent ahead of seen",
			status:  node.Status{Split: 10, Seen: 2, Sent: 7},
			phase:   PhaseSyncing,
			percent: 70,
		},
		{
			name:    "synced counter leads without reaching split",
			status:  node.Status{Split: 10, Seen: 1, Sent: 2, Synced: 5},
			phase:   PhaseSyncing,
			percent: 50,
		},
		{
			name:    "fully synced",
			status:  node.Status{Split: 10, Seen: 3, Sent: 1, Synced: 10},
			phase:   PhaseSynced,
			percent: 100,
		},
		{
			name:    "synced beyond split",
			status:  node.Status{Split: 10, Synced: 12},
			phase:   PhaseSynced,
			percent: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Reconcile(tt.status, 1000)
			assert.Equal(t, tt.phase, snap.Phase)
			assert.Equal(t, tt.percent, snap.Percent)
		})
	}
}

func TestReconcileSyncedIgnoresOtherCounters(t *testing.T) {
	// seen/sent values must not matter once synced reached split
	snap := Reconcile(node.Status{Split: 8, Seen: 0, Sent: 0, Synced: 8}, 4096)

	assert.Equal(t, PhaseSynced, snap.Phase)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, int64(4096), snap.Bytes)
}

func TestReconcileBytesEstimate(t *testing.T) {
	snap := Reconcile(node.Status{Split: 4, Seen: 2}, 1000)

	assert.Equal(t, 50, snap.Percent)
	assert.Equal(t, int64(500), snap.Bytes)
}

func TestTrackerNeverRegressesPhase(t *testing.T) {
	tr := NewTracker(1000)

	first := tr.Update(node.Status{Split: 10, Sent: 5})
	assert.Equal(t, PhaseSyncing, first.Phase)

	// A later poll with a stale sent counter but advancing seen must not
	// move the display back to uploading.
	second := tr.Update(node.Status{Split: 10, Seen: 8})
	assert.Equal(t, PhaseSyncing, second.Phase)
	assert.Equal(t, 80, second.Percent)
}

func TestTrackerNeverRegressesPercent(t *testing.T) {
	tr := NewTracker(1000)

	tr.Update(node.Status{Split: 10, Seen: 7})
	snap := tr.Update(node.Status{Split: 10, Seen: 3})

	assert.Equal(t, 70, snap.Percent)
	assert.Equal(t, int64(700), snap.Bytes)
}
