// Package registry implements the process-wide transfer bookkeeper
// described in §4.3: it tracks state transitions and chunk accounting for
// in-flight transfers, but it never moves a single payload byte itself —
// that is the hub's job, which consults the registry before forwarding.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"filetransfer/internal/protocol"
)

// DefaultChunkSize is the protocol-level chunking quantum (§6): 8192 bytes.
const DefaultChunkSize = 8192

// Policy is the pluggable hook §4.3 calls out ("optional policy (size cap,
// name check)"). A nil Policy accepts everything. File-type allow-listing
// (§9) is exactly this kind of hook, not part of the wire contract.
type Policy interface {
	Allow(start protocol.FileStart) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(start protocol.FileStart) error

func (f PolicyFunc) Allow(start protocol.FileStart) error { return f(start) }

// Registry is the concurrent map keyed by transfer id (§5). The map
// mutex guards membership only; per-transfer field mutations are guarded
// by each Transfer's own mutex so a long-running chunk write never blocks
// unrelated transfers.
type Registry struct {
	chunkSize int64
	policy    Policy

	mu        sync.RWMutex
	transfers map[string]*Transfer
}

// New constructs a Registry. policy may be nil to accept every proposed
// transfer (subject to size/shape checks performed elsewhere).
func New(chunkSize int64, policy Policy) *Registry {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Registry{
		chunkSize: chunkSize,
		policy:    policy,
		transfers: make(map[string]*Transfer),
	}
}

func (r *Registry) lookup(id string) (*Transfer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	return t, ok
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.transfers, id)
	r.mu.Unlock()
}

// Open transitions a newly announced transfer into state Proposed. It
// rejects a duplicate id, an id that is not a canonical UUID, or a start
// the policy hook denies.
func (r *Registry) Open(start protocol.FileStart) (*Transfer, error) {
	if _, err := uuid.Parse(start.TransferID); err != nil {
		return nil, ErrInvalidTransferID
	}

	if r.policy != nil {
		if err := r.policy.Allow(start); err != nil {
			return nil, Error{Code: ErrPolicyDenied.Code, Message: err.Error()}
		}
	}

	now := time.Now()
	t := &Transfer{
		ID:             start.TransferID,
		FileName:       start.FileName,
		Size:           start.FileSize,
		SenderID:       start.Sender,
		TargetID:       start.Target,
		expectedChunks: expectedChunkCount(start.FileSize, r.chunkSize),
		state:          StateProposed,
		seen:           make(map[int32]struct{}),
		createdAt:      now,
		lastActivity:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transfers[start.TransferID]; exists {
		return nil, ErrAlreadyExists
	}
	r.transfers[start.TransferID] = t
	return t, nil
}

// Accept transitions Proposed -> Accepted.
func (r *Registry) Accept(id string) (*Transfer, error) {
	t, ok := r.lookup(id)
	if !ok {
		return nil, ErrUnknownTransfer
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateProposed {
		return nil, ErrWrongState
	}
	t.state = StateAccepted
	t.lastActivity = time.Now()
	return t, nil
}

// Reject transitions Proposed -> Aborted and removes the entry
// immediately; the hub still routes the reject notification onward.
func (r *Registry) Reject(id string) error {
	t, ok := r.lookup(id)
	if !ok {
		return ErrUnknownTransfer
	}
	t.mu.Lock()
	if t.state != StateProposed {
		t.mu.Unlock()
		return ErrWrongState
	}
	t.state = StateAborted
	t.mu.Unlock()

	r.remove(id)
	return nil
}

// ObserveChunk records one chunk if the transfer is Accepted or InFlight
// and the sequence number is in range and previously unseen. It never
// double-counts a sequence number, and out-of-range/duplicate sequences
// are reported as errors without mutating state (§4.3 invariant).
func (r *Registry) ObserveChunk(data protocol.FileData) (Outcome, error) {
	t, ok := r.lookup(data.TransferID)
	if !ok {
		return 0, ErrUnknownTransfer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateAccepted && t.state != StateInFlight {
		return 0, ErrWrongState
	}
	if data.Seq < 0 || data.Seq >= t.expectedChunks {
		return 0, ErrSequenceOutOfRange
	}
	if _, dup := t.seen[data.Seq]; dup {
		return 0, ErrDuplicateSequence
	}

	t.seen[data.Seq] = struct{}{}
	t.bytesAccounted += int64(len(data.Data))
	t.lastActivity = time.Now()
	if t.state == StateAccepted {
		t.state = StateInFlight
	}

	if len(t.seen) == int(t.expectedChunks) {
		return OutcomeComplete, nil
	}
	return OutcomeOk, nil
}

// Close performs the terminal transition for id (Completed or Aborted,
// per success) and removes the entry. After this no further operation on
// id succeeds.
func (r *Registry) Close(id string, success bool) error {
	t, ok := r.lookup(id)
	if !ok {
		return ErrUnknownTransfer
	}
	t.mu.Lock()
	if success {
		t.state = StateCompleted
	} else {
		t.state = StateAborted
	}
	t.mu.Unlock()

	r.remove(id)
	return nil
}

// Get returns a snapshot of the transfer, for callers (the hub) that need
// to read fields like SenderID/TargetID before deciding where to forward.
func (r *Registry) Get(id string) (Snapshot, bool) {
	t, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Sweep removes every entry whose last-activity predates now.Add(-maxIdle)
// and returns their snapshots so the caller (the hub) can notify peers.
func (r *Registry) Sweep(now time.Time, maxIdle time.Duration) []Snapshot {
	r.mu.Lock()
	var expired []string
	var snapshots []Snapshot
	for id, t := range r.transfers {
		t.mu.Lock()
		idle := now.Sub(t.lastActivity)
		snap := t.snapshotLocked()
		t.mu.Unlock()
		if idle > maxIdle {
			expired = append(expired, id)
			snapshots = append(snapshots, snap)
		}
	}
	for _, id := range expired {
		delete(r.transfers, id)
	}
	r.mu.Unlock()
	return snapshots
}

// RemoveByPeer removes and returns snapshots of every transfer in which
// peerID participates as sender or target — used when a peer disconnects
// so the hub can notify the surviving side (§4.4 lifecycle: "the registry
// does not implicitly abort transfers when a peer is removed; the hub
// SHOULD").
func (r *Registry) RemoveByPeer(peerID string) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snapshots []Snapshot
	for id, t := range r.transfers {
		snap := t.Snapshot()
		if snap.SenderID == peerID || snap.TargetID == peerID {
			snapshots = append(snapshots, snap)
			delete(r.transfers, id)
		}
	}
	return snapshots
}
