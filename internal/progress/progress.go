package progress

import (
	"math"

	"porter/internal/node"
)

// Phase is the user-facing stage of a transfer, ordered from least to
// most advanced.
type Phase int

const (
	PhaseProcessing Phase = iota
	PhaseUploading
	PhaseSyncing
	PhaseSynced
)

func (p Phase) String() string {
	switch p {
	case PhaseUploading:
		return "uploading"
	case PhaseSyncing:
		return "syncing"
	case PhaseSynced:
		return "synced with network"
	default:
		return "processing"
	}
}

// placeholderPercent is shown while the node has not computed chunking
// yet (split == 0): non-zero so the display shows activity, never 100.
const placeholderPercent = 5

// Snapshot is a reconciled view of one Status poll.
type Snapshot struct {
	Phase   Phase
	Percent int
	Bytes   int64 // estimated bytes transferred, derived from Percent
}

// Reconcile turns raw propagation counters into a coherent snapshot.
// The counters are not guaranteed to advance in their nominal
// seen -> sent -> synced order, so the most advanced non-zero counter
// decides both the percentage and the phase.
func Reconcile(st node.Status, totalSize int64) Snapshot {
	if st.Split == 0 {
		return Snapshot{Phase: PhaseProcessing, Percent: placeholderPercent}
	}

	if st.Synced >= st.Split {
		return Snapshot{Phase: PhaseSynced, Percent: 100, Bytes: totalSize}
	}

	progress := st.Seen
	if st.Sent > progress {
		progress = st.Sent
	}
	if st.Synced > progress {
		progress = st.Synced
	}

	percent := int(100 * progress / st.Split)
	snap := Snapshot{
		Percent: percent,
		Bytes:   int64(math.Round(float64(percent) / 100 * float64(totalSize))),
	}
	switch {
	case st.Sent > 0:
		snap.Phase = PhaseSyncing
	case st.Seen > 0:
		snap.Phase = PhaseUploading
	default:
		snap.Phase = PhaseProcessing
	}
	return snap
}

// Tracker reconciles successive polls without ever regressing the
// reported phase: a later poll carrying a stale lower counter for a
// different field must not move the display backwards.
type Tracker struct {
	totalSize int64
	last      Snapshot
	seeded    bool
}

// NewTracker creates a tracker for a payload of totalSize bytes.
func NewTracker(totalSize int64) *Tracker {
	return &Tracker{totalSize: totalSize}
}

// Update reconciles st and returns the snapshot to display.
func (t *Tracker) Update(st node.Status) Snapshot {
	snap := Reconcile(st, t.totalSize)
	if t.seeded {
		if snap.Phase < t.last.Phase {
			snap.Phase = t.last.Phase
		}
		if snap.Percent < t.last.Percent {
			snap.Percent = t.last.Percent
			snap.Bytes = t.last.Bytes
		}
	}
	t.last = snap
	t.seeded = true
	return snap
}

// Current returns the last snapshot produced by Update.
func (t *Tracker) Current() Snapshot {
	return t.last
}
