// Package hub implements the server-side routing hub (§4.4): the accept
// loop, the peer table, the dispatch rules, and the consent-mediation and
// idle-sweep logic that coordinate transfers between the transfer registry
// and the endpoints that carry their bytes.
package hub

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"filetransfer/internal/config"
	"filetransfer/internal/endpoint"
	"filetransfer/internal/protocol"
	"filetransfer/internal/registry"
)

// Hub owns the peer table and the transfer registry exclusively (§3
// Ownership). Endpoints are co-owned by the accept path, which registers
// them, and their own read-loop goroutine, which tears them down.
type Hub struct {
	cfg config.Config
	reg *registry.Registry

	mu    sync.RWMutex
	peers map[string]*endpoint.Endpoint

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	listener net.Listener
}

// New constructs a Hub. policy, if non-nil, gates FILE_START proposals
// (§4.3's pluggable size-cap/name-check hook).
func New(cfg config.Config, policy registry.Policy) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:    cfg,
		reg:    registry.New(cfg.ChunkSize, policy),
		peers:  make(map[string]*endpoint.Endpoint),
		events: make(chan Event, eventBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ListenAndServe binds the listening socket and runs the accept loop and
// the periodic sweep until Shutdown is called. It blocks until the
// listener is closed.
func (h *Hub) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	h.listener = ln

	h.wg.Add(1)
	go h.sweepLoop()

	log.Printf("[HUB] listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-h.ctx.Done():
				return nil
			default:
				log.Printf("[HUB] accept error: %v", err)
				continue
			}
		}
		h.wg.Add(1)
		go h.handleConn(conn)
	}
}

// Shutdown raises the root cancellation signal, closes the listener, and
// waits for every connection handler and the sweep loop to drain. It does
// not wait for the accept loop, which returns from ListenAndServe on its
// own once the listener is closed.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.listener != nil {
		h.listener.Close()
	}

	h.mu.RLock()
	eps := make([]*endpoint.Endpoint, 0, len(h.peers))
	for _, ep := range h.peers {
		eps = append(eps, ep)
	}
	h.mu.RUnlock()
	for _, ep := range eps {
		ep.Close()
	}

	h.wg.Wait()
	close(h.events)
}

// assignID draws a fresh 64-bit random value, takes its first 8 hex
// digits, and retries on collision with a currently-connected peer (§4.4).
func (h *Hub) assignID() string {
	for {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand failure is effectively unrecoverable entropy
			// starvation; fall back to a time-derived value so the hub
			// keeps running rather than deadlocking callers.
			binary.BigEndian.PutUint64(b[:], uint64(time.Now().UnixNano()))
		}
		id := fmt.Sprintf("%x", b[:4])

		h.mu.RLock()
		_, taken := h.peers[id]
		h.mu.RUnlock()
		if !taken {
			return id
		}
	}
}

func (h *Hub) registerPeer(ep *endpoint.Endpoint) {
	h.mu.Lock()
	h.peers[ep.ID()] = ep
	h.mu.Unlock()
}

func (h *Hub) unregisterPeer(id string) {
	h.mu.Lock()
	delete(h.peers, id)
	h.mu.Unlock()
}

func (h *Hub) peerByID(id string) (*endpoint.Endpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ep, ok := h.peers[id]
	return ep, ok
}

// snapshotPeers takes a copy of the currently-connected endpoint list
// under the peer-table lock, then releases it — so broadcast fan-out
// never holds the lock across network I/O (§5).
func (h *Hub) snapshotPeers(excludeID string) []*endpoint.Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*endpoint.Endpoint, 0, len(h.peers))
	for id, ep := range h.peers {
		if id == excludeID {
			continue
		}
		out = append(out, ep)
	}
	return out
}

func (h *Hub) handleConn(conn net.Conn) {
	defer h.wg.Done()

	ep := endpoint.New(conn)
	id := h.assignID()
	ep.SetID(id)
	h.registerPeer(ep)

	defer h.teardown(ep)

	for {
		msg, err := ep.Receive()
		if err != nil {
			return
		}
		h.dispatch(ep, msg)
	}
}

// teardown runs once a peer's read loop exits for any reason: orderly
// EOF, a framing error, or a transport error. It removes the peer,
// aborts transfers in which it was sender or receiver, and notifies the
// surviving side (§4.4 lifecycle, §7 Transport policy).
func (h *Hub) teardown(ep *endpoint.Endpoint) {
	id := ep.ID()
	h.unregisterPeer(id)
	ep.Close()

	for _, snap := range h.reg.RemoveByPeer(id) {
		survivor := snap.SenderID
		if survivor == id {
			survivor = snap.TargetID
		}
		h.notifyAborted(survivor, snap.ID, "peer disconnected")
		h.emit(Event{
			Kind:       EventTransferEnded,
			TransferID: snap.ID,
			FileName:   snap.FileName,
			Success:    false,
			Reason:     "peer disconnected",
		})
	}

	h.emit(Event{Kind: EventPeerLeft, PeerID: id, PeerName: ep.DisplayName()})
	log.Printf("[HUB] peer %s disconnected", id)
}

func (h *Hub) notifyAborted(peerID, transferID, reason string) {
	if peerID == "" {
		return
	}
	ep, ok := h.peerByID(peerID)
	if !ok {
		return
	}
	ep.Send(protocol.FileEnd{
		Sender:       protocol.ServerSender,
		Target:       peerID,
		TransferID:   transferID,
		Success:      false,
		ErrorMessage: reason,
	})
}

func (h *Hub) sweepLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case now := <-ticker.C:
			h.runSweep(now)
		}
	}
}

func (h *Hub) runSweep(now time.Time) {
	expired := h.reg.Sweep(now, h.cfg.TransferIdleTimeout)
	for _, snap := range expired {
		h.notifyAborted(snap.SenderID, snap.ID, "expired")
		h.notifyAborted(snap.TargetID, snap.ID, "expired")
		h.emit(Event{
			Kind:       EventTransferEnded,
			TransferID: snap.ID,
			FileName:   snap.FileName,
			Success:    false,
			Reason:     "expired",
		})
		log.Printf("[HUB] transfer %s expired (idle)", snap.ID)
	}
}
