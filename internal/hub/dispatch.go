package hub

import (
	"log"

	"filetransfer/internal/endpoint"
	"filetransfer/internal/protocol"
	"filetransfer/internal/registry"
)

// dispatch implements the §4.4 routing table. Every inbound message first
// has its sender field rewritten to the peer's hub-assigned id, regardless
// of what the peer put there.
func (h *Hub) dispatch(ep *endpoint.Endpoint, msg protocol.Message) {
	msg = withSender(msg, ep.ID())

	switch m := msg.(type) {
	case protocol.Chat:
		h.onChat(ep, m)
	case protocol.FileStart:
		h.onFileStart(ep, m)
	case protocol.DownloadAccept:
		h.onDownloadAccept(ep, m)
	case protocol.DownloadReject:
		h.onDownloadReject(ep, m)
	case protocol.FileData:
		h.onFileData(ep, m)
	case protocol.FileEnd:
		h.onFileEnd(ep, m)
	case protocol.Ack:
		h.forward(m.Target, m)
	case protocol.Error:
		h.forward(m.Target, m)
	case protocol.ClientConnect:
		h.onClientConnect(ep, m)
	case protocol.ClientDisconnect:
		// The read loop's own teardown handles peer removal once
		// Receive() returns after the connection closes; an explicit
		// disconnect message just triggers the same path promptly.
		log.Printf("[HUB] peer %s requested disconnect: %s", ep.ID(), m.Reason)
		ep.Close()
	default:
		log.Printf("[HUB] unhandled message kind %s from %s", msg.Kind(), ep.ID())
	}
}

// withSender returns a copy of msg with its Sender field set to id.
func withSender(msg protocol.Message, id string) protocol.Message {
	switch m := msg.(type) {
	case protocol.Chat:
		m.Sender = id
		return m
	case protocol.FileStart:
		m.Sender = id
		return m
	case protocol.FileData:
		m.Sender = id
		return m
	case protocol.FileEnd:
		m.Sender = id
		return m
	case protocol.Ack:
		m.Sender = id
		return m
	case protocol.Error:
		m.Sender = id
		return m
	case protocol.ClientConnect:
		m.Sender = id
		return m
	case protocol.ClientDisconnect:
		m.Sender = id
		return m
	case protocol.ClientIDResponse:
		m.Sender = id
		return m
	case protocol.DownloadAccept:
		m.Sender = id
		return m
	case protocol.DownloadReject:
		m.Sender = id
		return m
	case protocol.UploadConfirmed:
		m.Sender = id
		return m
	default:
		return msg
	}
}

// forward sends msg unchanged to the peer named by targetID. If that peer
// is not connected, msg is dropped silently: no ERROR goes back to the
// sender. (Unicast chat to a missing target is handled separately by
// onChat, which does reply with an ERROR.)
func (h *Hub) forward(targetID string, msg protocol.Message) {
	ep, ok := h.peerByID(targetID)
	if !ok {
		return
	}
	if err := ep.Send(msg); err != nil {
		log.Printf("[HUB] forward to %s failed: %v", targetID, err)
	}
}

func (h *Hub) sendError(ep *endpoint.Endpoint, description string) {
	ep.Send(protocol.Error{
		Sender:           protocol.ServerSender,
		Target:           ep.ID(),
		ErrorDescription: description,
	})
}

func (h *Hub) onChat(ep *endpoint.Endpoint, m protocol.Chat) {
	if m.Target == "" {
		for _, peer := range h.snapshotPeers(ep.ID()) {
			if err := peer.Send(m); err != nil {
				log.Printf("[HUB] broadcast to %s failed: %v", peer.ID(), err)
			}
		}
		return
	}
	target, ok := h.peerByID(m.Target)
	if !ok {
		h.sendError(ep, "chat target not connected: "+m.Target)
		return
	}
	target.Send(m)
}

func (h *Hub) onClientConnect(ep *endpoint.Endpoint, m protocol.ClientConnect) {
	ep.SetDisplayName(m.ClientName)
	ep.Send(protocol.ClientIDResponse{
		Sender:   protocol.ServerSender,
		ClientID: ep.ID(),
	})
	h.emit(Event{Kind: EventPeerJoined, PeerID: ep.ID(), PeerName: m.ClientName})
	log.Printf("[HUB] peer %s connected as %q", ep.ID(), m.ClientName)
}

func (h *Hub) onFileStart(ep *endpoint.Endpoint, m protocol.FileStart) {
	if _, err := h.reg.Open(m); err != nil {
		h.sendError(ep, "file start rejected: "+err.Error())
		return
	}

	target, ok := h.peerByID(m.Target)
	if !ok {
		h.reg.Close(m.TransferID, false)
		h.sendError(ep, "transfer target not connected: "+m.Target)
		return
	}
	if err := target.Send(m); err != nil {
		h.reg.Close(m.TransferID, false)
		h.sendError(ep, "failed to reach transfer target")
		return
	}
	h.emit(Event{
		Kind:       EventTransferStarted,
		TransferID: m.TransferID,
		FileName:   m.FileName,
		PeerID:     ep.ID(),
	})
}

func (h *Hub) onDownloadAccept(ep *endpoint.Endpoint, m protocol.DownloadAccept) {
	snap, err := func() (registry.Snapshot, error) {
		t, err := h.reg.Accept(m.TransferID)
		if err != nil {
			return registry.Snapshot{}, err
		}
		return t.Snapshot(), nil
	}()
	if err != nil {
		h.sendError(ep, "download accept rejected: "+err.Error())
		return
	}

	h.forward(snap.SenderID, protocol.UploadConfirmed{
		Sender:     protocol.ServerSender,
		TransferID: m.TransferID,
	})
}

func (h *Hub) onDownloadReject(ep *endpoint.Endpoint, m protocol.DownloadReject) {
	snap, ok := h.reg.Get(m.TransferID)
	if !ok {
		h.sendError(ep, "download reject: unknown transfer "+m.TransferID)
		return
	}
	if err := h.reg.Reject(m.TransferID); err != nil {
		h.sendError(ep, "download reject rejected: "+err.Error())
		return
	}

	h.forward(snap.SenderID, protocol.FileEnd{
		Sender:       protocol.ServerSender,
		Target:       snap.SenderID,
		TransferID:   m.TransferID,
		Success:      false,
		ErrorMessage: "rejected by recipient",
	})
	h.emit(Event{
		Kind:       EventTransferEnded,
		TransferID: m.TransferID,
		FileName:   snap.FileName,
		Success:    false,
		Reason:     "rejected",
	})
}

func (h *Hub) onFileData(ep *endpoint.Endpoint, m protocol.FileData) {
	outcome, err := h.reg.ObserveChunk(m)
	if err != nil {
		h.sendError(ep, "file data rejected: "+err.Error())
		return
	}

	snap, ok := h.reg.Get(m.TransferID)
	if ok {
		h.forward(snap.TargetID, m)
	}

	ep.Send(protocol.Ack{
		Sender:     protocol.ServerSender,
		Target:     ep.ID(),
		TransferID: m.TransferID,
		Seq:        m.Seq,
	})

	_ = outcome // completion is surfaced to peers via FILE_END, not here
}

func (h *Hub) onFileEnd(ep *endpoint.Endpoint, m protocol.FileEnd) {
	snap, _ := h.reg.Get(m.TransferID)
	h.reg.Close(m.TransferID, m.Success)
	h.forward(m.Target, m)
	h.emit(Event{
		Kind:       EventTransferEnded,
		TransferID: m.TransferID,
		FileName:   snap.FileName,
		Success:    m.Success,
		Reason:     m.ErrorMessage,
	})
}
