// Package peerclient implements the client-side counterpart to the hub
// (§4.5): the outbound transfer driver, the inbound transfer assembler,
// and the consent-prompt surface a UI collaborator renders.
package peerclient

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"filetransfer/internal/config"
	"filetransfer/internal/endpoint"
	"filetransfer/internal/protocol"
)

// Client is one peer's connection to the hub.
type Client struct {
	cfg        config.Config
	ep         *endpoint.Endpoint
	compressor Compressor

	id          string
	displayName string

	events chan Event

	mu               sync.Mutex
	pendingUploads   map[string]*pendingUpload
	pendingDownloads map[string]*pendingDownload
	activeDownloads  map[string]*activeDownload
	nextOrdinal      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the hub at addr and returns a ready Client. Call Run to
// start its read loop and background sweeps, and Connect to announce
// displayName.
func Dial(addr string, cfg config.Config) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return New(conn, cfg), nil
}

// New wraps an already-established connection to the hub.
func New(conn net.Conn, cfg config.Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:              cfg,
		ep:               endpoint.New(conn),
		compressor:       NewCompressor(),
		events:           make(chan Event, eventBufferSize),
		pendingUploads:   make(map[string]*pendingUpload),
		pendingDownloads: make(map[string]*pendingDownload),
		activeDownloads:  make(map[string]*activeDownload),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// ID returns the hub-assigned id, empty until CLIENT_ID_RESPONSE arrives.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Run starts the read loop and the pending-upload/pending-download sweep
// goroutines and returns at once. The read loop ends when the connection
// closes; the sweep loop ends when Shutdown is called.
func (c *Client) Run() {
	c.wg.Add(2)
	go c.sweepLoop()
	go c.readLoop()
}

// Connect sends CLIENT_CONNECT announcing displayName.
func (c *Client) Connect(displayName string) error {
	c.displayName = displayName
	return c.ep.Send(protocol.ClientConnect{ClientName: displayName})
}

// Shutdown sends CLIENT_DISCONNECT, stops background goroutines, and
// closes the underlying connection.
func (c *Client) Shutdown(reason string) {
	c.ep.Send(protocol.ClientDisconnect{Reason: reason})
	c.cancel()
	c.ep.Close()
	c.wg.Wait()
	close(c.events)
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		msg, err := c.ep.Receive()
		if err != nil {
			log.Printf("[PEER] connection to hub ended: %v", err)
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ClientIDResponse:
		c.mu.Lock()
		c.id = m.ClientID
		c.mu.Unlock()
		c.emit(Event{Kind: EventClientIDAssigned, PeerID: m.ClientID})
	case protocol.Chat:
		c.emit(Event{Kind: EventChatReceived, From: m.Sender, Content: m.Content})
	case protocol.Error:
		c.emit(Event{Kind: EventErrorReceived, From: m.Sender, Content: m.ErrorDescription})
	case protocol.FileStart:
		c.onFileStart(m)
	case protocol.UploadConfirmed:
		c.onUploadConfirmed(m)
	case protocol.FileData:
		c.onFileData(m)
	case protocol.FileEnd:
		c.onFileEnd(m)
	case protocol.Ack:
		// §9 open question: the sender-side client does not act on ACK
		// beyond logging; it carries no flow-control semantics here.
		log.Printf("[PEER] ack seq=%d transfer=%s", m.Seq, m.TransferID)
	default:
		log.Printf("[PEER] unhandled message kind %s", msg.Kind())
	}
}

// SendChat sends a chat message. target == "" broadcasts.
func (c *Client) SendChat(target, content string) error {
	return c.ep.Send(protocol.Chat{Target: target, Content: content})
}

// PendingTransferSummary describes one in-flight or awaiting-decision
// transfer, for a REPL's "list" command.
type PendingTransferSummary struct {
	TransferID string
	FileName   string
	Direction  string // "upload" or "download"
	Target     string // upload: recipient; pending download: sender; empty for a download in progress
	Awaiting   string // "confirmation", "accept/reject", or "in progress"
}

// PendingTransfers reports every transfer this client is currently
// tracking locally — no round trip to the hub, since pending and active
// bookkeeping already lives in pendingUploads/pendingDownloads/activeDownloads.
func (c *Client) PendingTransfers() []PendingTransferSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []PendingTransferSummary
	for _, p := range c.pendingUploads {
		out = append(out, PendingTransferSummary{
			TransferID: p.TransferID,
			FileName:   filepath.Base(p.LocalPath),
			Direction:  "upload",
			Target:     p.Target,
			Awaiting:   "confirmation",
		})
	}
	for _, p := range c.pendingDownloads {
		out = append(out, PendingTransferSummary{
			TransferID: p.Start.TransferID,
			FileName:   p.Start.FileName,
			Direction:  "download",
			Target:     p.Start.Sender,
			Awaiting:   "accept/reject",
		})
	}
	for _, a := range c.activeDownloads {
		out = append(out, PendingTransferSummary{
			TransferID: a.TransferID,
			FileName:   a.FileName,
			Direction:  "download",
			Awaiting:   "in progress",
		})
	}
	return out
}

func (c *Client) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.sweepPendingUploads(now)
			c.sweepPendingDownloads(now)
		}
	}
}

func (c *Client) sweepPendingUploads(now time.Time) {
	c.mu.Lock()
	var expired []*pendingUpload
	for id, p := range c.pendingUploads {
		if now.Sub(p.CreatedAt) > c.cfg.PendingUploadTimeout {
			expired = append(expired, p)
			delete(c.pendingUploads, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		if p.Compressed {
			os.Remove(p.LocalPath)
		}
		c.emit(Event{Kind: EventUploadFailed, TransferID: p.TransferID, Reason: "no upload confirmation received in time"})
	}
}

func (c *Client) sweepPendingDownloads(now time.Time) {
	c.mu.Lock()
	var expired []*pendingDownload
	for id, p := range c.pendingDownloads {
		if now.Sub(p.ArrivedAt) > c.cfg.PendingDownloadTimeout {
			expired = append(expired, p)
			delete(c.pendingDownloads, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		c.emit(Event{Kind: EventDownloadTimedOut, TransferID: p.Start.TransferID, FileName: p.Start.FileName})
	}
}

// newTransferID generates a fresh canonical-UUID transfer id.
func newTransferID() string { return uuid.New().String() }

// uniquePath appends "_N" before the extension until path doesn't exist,
// starting at N=1, per §6.
func uniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
