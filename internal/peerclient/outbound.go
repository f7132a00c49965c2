package peerclient

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"filetransfer/internal/protocol"
)

// SendFile implements the §4.5 outbound flow steps 1-2: basic checks,
// the optional compression collaborator, sending FILE_START, and
// recording a pending upload. It returns once FILE_START has been sent;
// chunk streaming begins asynchronously when UPLOAD_CONFIRMED arrives
// (step 3), handled by onUploadConfirmed.
func (c *Client) SendFile(target, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > c.cfg.MaxFileSize {
		return fmt.Errorf("file %s exceeds max size %d", path, c.cfg.MaxFileSize)
	}

	sendPath := path
	compressed := false
	if shouldCompress(path, info.Size(), c.cfg.CompressThreshold) {
		if dst, cerr := c.compressor.Compress(path); cerr == nil {
			sendPath = dst
			compressed = true
		} else {
			log.Printf("[PEER] compression skipped for %s: %v", path, cerr)
		}
	}

	sendInfo, err := os.Stat(sendPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", sendPath, err)
	}

	transferID := newTransferID()
	start := protocol.FileStart{
		Target:     target,
		TransferID: transferID,
		FileName:   info.Name(),
		FileSize:   sendInfo.Size(),
	}

	c.mu.Lock()
	c.pendingUploads[transferID] = &pendingUpload{
		TransferID: transferID,
		LocalPath:  sendPath,
		Target:     target,
		Compressed: compressed,
		CreatedAt:  time.Now(),
	}
	c.mu.Unlock()

	if err := c.ep.Send(start); err != nil {
		c.mu.Lock()
		delete(c.pendingUploads, transferID)
		c.mu.Unlock()
		if compressed {
			os.Remove(sendPath)
		}
		return fmt.Errorf("send FILE_START: %w", err)
	}

	c.emit(Event{Kind: EventUploadProposed, TransferID: transferID, FileName: info.Name(), FileSize: sendInfo.Size()})
	return nil
}

func (c *Client) onUploadConfirmed(m protocol.UploadConfirmed) {
	c.mu.Lock()
	p, ok := c.pendingUploads[m.TransferID]
	if ok {
		delete(c.pendingUploads, m.TransferID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.emit(Event{Kind: EventUploadConfirmed, TransferID: m.TransferID})
	go c.streamChunks(p)
}

// streamChunks implements §4.5 step 3-4: read the file in fixed
// CHUNK_SIZE blocks, send consecutive FILE_DATA frames, then FILE_END.
func (c *Client) streamChunks(p *pendingUpload) {
	defer func() {
		if p.Compressed {
			os.Remove(p.LocalPath)
		}
	}()

	f, err := os.Open(p.LocalPath)
	if err != nil {
		c.failUpload(p, "open failed: "+err.Error())
		return
	}
	defer f.Close()

	buf := make([]byte, c.cfg.ChunkSize)
	d := newDigest()
	var seq int32
	var sent int64

	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			d.Write(chunk)

			if sendErr := c.ep.Send(protocol.FileData{
				Target:     p.Target,
				TransferID: p.TransferID,
				Seq:        seq,
				Data:       chunk,
			}); sendErr != nil {
				c.failUpload(p, "send failed: "+sendErr.Error())
				return
			}
			seq++
			sent += int64(n)
			c.emit(Event{Kind: EventUploadProgress, TransferID: p.TransferID, Bytes: sent})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			c.failUpload(p, "read failed: "+err.Error())
			return
		}
	}

	c.ep.Send(protocol.FileEnd{Target: p.Target, TransferID: p.TransferID, Success: true})
	log.Printf("[PEER] upload %s complete, digest=%s", p.TransferID, d.Sum())
	c.emit(Event{Kind: EventUploadCompleted, TransferID: p.TransferID, Bytes: sent})
}

func (c *Client) failUpload(p *pendingUpload, reason string) {
	c.ep.Send(protocol.FileEnd{Target: p.Target, TransferID: p.TransferID, Success: false, ErrorMessage: reason})
	c.emit(Event{Kind: EventUploadFailed, TransferID: p.TransferID, Reason: reason})
}
