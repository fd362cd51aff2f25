package session

import (
	"porter/internal/node"
	"porter/internal/progress"
)

// State is the lifecycle stage of one upload session.
type State int

const (
	StateInitializing State = iota
	StateCreatingTransfer
	StateTransferring
	StateSyncing
	StateCompleted
	StateFailed
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateCreatingTransfer:
		return "creating transfer"
	case StateTransferring:
		return "transferring"
	case StateSyncing:
		return "syncing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Update is one observable progress event. Every state transition and
// every successful status poll produces one.
type Update struct {
	State     State
	Phase     progress.Phase
	Percent   int
	Bytes     int64
	TotalSize int64
}

// Result is the terminal outcome of a session. Err is nil for both
// completed outcomes; Synced reports whether full network propagation
// was observed before the sync wait budget ran out.
type Result struct {
	Handle  node.Handle
	Address string
	Synced  bool
	Err     error
}
