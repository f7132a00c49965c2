package registry

import (
	"sync"
	"time"
)

// State is the transfer's terminal-or-not lifecycle phase (§3). The
// registry compares states by equality only; the numeric order carries no
// meaning (StateRejected sorts between StateAccepted and StateInFlight).
type State int

const (
	StateProposed State = iota
	StateAccepted
	StateRejected
	StateInFlight
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateRejected || s == StateCompleted || s == StateAborted
}

// Outcome is observe_chunk's result (§4.3): Ok for an accepted chunk that
// doesn't complete the set, Complete when it was the last missing
// sequence number.
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeComplete
)

// Transfer is one in-flight-or-proposed transfer entry. Mutable fields are
// guarded by their own mutex per §5, so the registry's map mutex need not
// be held while a transfer's chunk bookkeeping is updated.
type Transfer struct {
	ID       string
	FileName string
	Size     int64
	SenderID string
	TargetID string

	expectedChunks int32

	mu           sync.Mutex
	state        State
	seen         map[int32]struct{}
	bytesAccounted int64
	createdAt    time.Time
	lastActivity time.Time
}

// Snapshot is a point-in-time, lock-free copy of a Transfer's observable
// fields, safe to pass around or hold across I/O.
type Snapshot struct {
	ID             string
	FileName       string
	Size           int64
	SenderID       string
	TargetID       string
	State          State
	ExpectedChunks int32
	SeenCount      int
	BytesAccounted int64
	CreatedAt      time.Time
	LastActivity   time.Time
}

func (t *Transfer) snapshotLocked() Snapshot {
	return Snapshot{
		ID:             t.ID,
		FileName:       t.FileName,
		Size:           t.Size,
		SenderID:       t.SenderID,
		TargetID:       t.TargetID,
		State:          t.state,
		ExpectedChunks: t.expectedChunks,
		SeenCount:      len(t.seen),
		BytesAccounted: t.bytesAccounted,
		CreatedAt:      t.createdAt,
		LastActivity:   t.lastActivity,
	}
}

// Snapshot returns a copy of the transfer's current observable state.
func (t *Transfer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func expectedChunkCount(size int64, chunkSize int64) int32 {
	if size <= 0 {
		return 0
	}
	n := (size + chunkSize - 1) / chunkSize
	return int32(n)
}
