package peerclient

import (
	"fmt"
	"log"
	"os"
	"time"

	"filetransfer/internal/config"
	"filetransfer/internal/protocol"
)

// onFileStart implements §4.5 inbound step 1: queue a pending download
// with a short local ordinal, surface it to the user. It never
// auto-accepts.
func (c *Client) onFileStart(m protocol.FileStart) {
	c.mu.Lock()
	c.nextOrdinal++
	ordinal := c.nextOrdinal
	c.pendingDownloads[m.TransferID] = &pendingDownload{
		Ordinal:   ordinal,
		Start:     m,
		ArrivedAt: time.Now(),
		State:     DownloadProposed,
	}
	c.mu.Unlock()

	c.emit(Event{
		Kind:       EventDownloadProposed,
		Ordinal:    ordinal,
		TransferID: m.TransferID,
		FileName:   m.FileName,
		FileSize:   m.FileSize,
		From:       m.Sender,
	})
}

// AcceptDownload implements §4.5 inbound step 2: open the destination
// path (choosing a non-colliding name), send DOWNLOAD_ACCEPT, and move the
// transfer into active-transfers.
func (c *Client) AcceptDownload(transferID string, downloadDir string) error {
	c.mu.Lock()
	p, ok := c.pendingDownloads[transferID]
	if ok {
		p.State = DownloadAccepting
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending download with id %s", transferID)
	}

	if downloadDir == "" {
		downloadDir = config.Default().DownloadDir
	}
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	path := uniquePath(downloadDir, p.Start.FileName)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	c.mu.Lock()
	delete(c.pendingDownloads, transferID)
	c.activeDownloads[transferID] = &activeDownload{
		TransferID: transferID,
		FileName:   p.Start.FileName,
		Path:       path,
		Size:       p.Start.FileSize,
		File:       f,
		State:      DownloadActive,
		digest:     newDigest(),
	}
	c.mu.Unlock()

	if err := c.ep.Send(protocol.DownloadAccept{TransferID: transferID}); err != nil {
		return fmt.Errorf("send DOWNLOAD_ACCEPT: %w", err)
	}
	c.emit(Event{Kind: EventDownloadAccepted, TransferID: transferID, FileName: p.Start.FileName})
	return nil
}

// RejectDownload implements §4.5 inbound step 1's alternative branch.
func (c *Client) RejectDownload(transferID string) error {
	c.mu.Lock()
	_, ok := c.pendingDownloads[transferID]
	if ok {
		delete(c.pendingDownloads, transferID)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending download with id %s", transferID)
	}

	if err := c.ep.Send(protocol.DownloadReject{TransferID: transferID}); err != nil {
		return fmt.Errorf("send DOWNLOAD_REJECT: %w", err)
	}
	c.emit(Event{Kind: EventDownloadRejected, TransferID: transferID})
	return nil
}

// onFileData implements §4.5 inbound step 3. Chunks are written at their
// declared offset rather than purely sequentially so an unexpected
// sequence number (logged as a warning, never fatal per §4.5) cannot
// corrupt bytes that did arrive in order.
func (c *Client) onFileData(m protocol.FileData) {
	c.mu.Lock()
	a, ok := c.activeDownloads[m.TransferID]
	c.mu.Unlock()
	if !ok {
		log.Printf("[PEER] FILE_DATA for unknown/inactive transfer %s", m.TransferID)
		return
	}

	if m.Seq != a.ExpectedNext {
		log.Printf("[PEER] transfer %s: unexpected sequence %d (expected %d)", m.TransferID, m.Seq, a.ExpectedNext)
	}

	offset := int64(m.Seq) * c.cfg.ChunkSize
	if _, err := a.File.WriteAt(m.Data, offset); err != nil {
		log.Printf("[PEER] write failed for transfer %s: %v", m.TransferID, err)
		return
	}

	a.digest.Write(m.Data)
	a.BytesWritten += int64(len(m.Data))
	if m.Seq == a.ExpectedNext {
		a.ExpectedNext++
	}

	c.emit(Event{Kind: EventDownloadProgress, TransferID: m.TransferID, Bytes: a.BytesWritten, FileSize: a.Size})
}

// onFileEnd implements §4.5 inbound step 4.
func (c *Client) onFileEnd(m protocol.FileEnd) {
	c.mu.Lock()
	a, ok := c.activeDownloads[m.TransferID]
	if ok {
		delete(c.activeDownloads, m.TransferID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	a.File.Close()
	if m.Success {
		log.Printf("[PEER] download %s complete, digest=%s", m.TransferID, a.digest.Sum())
		c.emit(Event{Kind: EventDownloadCompleted, TransferID: m.TransferID, FileName: a.FileName, Bytes: a.BytesWritten})
		return
	}

	os.Remove(a.Path)
	c.emit(Event{Kind: EventDownloadFailed, TransferID: m.TransferID, FileName: a.FileName, Reason: m.ErrorMessage})
}
