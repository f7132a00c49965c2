package peerclient

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"filetransfer/internal/config"
	"filetransfer/internal/endpoint"
	"filetransfer/internal/protocol"
)

func newTestClient(t *testing.T, cfg config.Config) (*Client, *endpoint.Endpoint) {
	t.Helper()
	// A loopback TCP pair rather than net.Pipe: Client sends are
	// synchronous, and the tests read the server side only after a send
	// has returned, which an unbuffered pipe would never allow.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverConn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	c := New(clientConn, cfg)
	c.Run()
	server := endpoint.New(serverConn)
	t.Cleanup(func() {
		go drain(server)
		c.Shutdown("test teardown")
	})
	return c, server
}

// drain keeps reading from an endpoint until it errors, so a Client's
// Shutdown (which writes CLIENT_DISCONNECT) never blocks on a peer that
// stopped listening.
func drain(ep *endpoint.Endpoint) {
	for {
		if _, err := ep.Receive(); err != nil {
			return
		}
	}
}

func mustReceive(t *testing.T, ep *endpoint.Endpoint) protocol.Message {
	t.Helper()
	type result struct {
		msg protocol.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := ep.Receive()
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Receive: %v", r.err)
		}
		return r.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func mustEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	for {
		select {
		case ev := <-c.events:
			if ev.Kind == kind {
				return ev
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestSendChat(t *testing.T) {
	c, server := newTestClient(t, config.Default())
	if err := c.SendChat("bob", "hi there"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	msg := mustReceive(t, server)
	chat, ok := msg.(protocol.Chat)
	if !ok || chat.Target != "bob" || chat.Content != "hi there" {
		t.Fatalf("got %#v", msg)
	}
}

func TestFullUploadFlow(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 5
	c, server := newTestClient(t, cfg)

	dir := t.TempDir()
	path := filepath.Join(dir, "upload.txt")
	content := []byte("abcdefghij") // 10 bytes -> two 5-byte chunks
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := c.SendFile("bob", path); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	msg := mustReceive(t, server)
	start, ok := msg.(protocol.FileStart)
	if !ok {
		t.Fatalf("got %T, want FileStart", msg)
	}
	if start.FileName != "upload.txt" || start.FileSize != int64(len(content)) {
		t.Fatalf("got %#v", start)
	}
	mustEvent(t, c, EventUploadProposed)

	if err := server.Send(protocol.UploadConfirmed{TransferID: start.TransferID}); err != nil {
		t.Fatalf("send UploadConfirmed: %v", err)
	}
	mustEvent(t, c, EventUploadConfirmed)

	for seq, want := range [][]byte{content[0:5], content[5:10]} {
		msg := mustReceive(t, server)
		data, ok := msg.(protocol.FileData)
		if !ok {
			t.Fatalf("chunk %d: got %T, want FileData", seq, msg)
		}
		if data.Seq != int32(seq) || string(data.Data) != string(want) {
			t.Fatalf("chunk %d: got seq=%d data=%q, want seq=%d data=%q", seq, data.Seq, data.Data, seq, want)
		}
	}

	msg = mustReceive(t, server)
	end, ok := msg.(protocol.FileEnd)
	if !ok || !end.Success || end.TransferID != start.TransferID {
		t.Fatalf("got %#v, want successful FileEnd", msg)
	}
	mustEvent(t, c, EventUploadCompleted)
}

func TestFullDownloadFlow(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 4
	c, server := newTestClient(t, cfg)

	dir := t.TempDir()
	transferID := uuid.NewString()
	content := []byte("abcdefgh") // 8 bytes -> two 4-byte chunks

	if err := server.Send(protocol.FileStart{
		Sender: "alice", TransferID: transferID, FileName: "note.txt", FileSize: int64(len(content)),
	}); err != nil {
		t.Fatalf("send FileStart: %v", err)
	}
	proposed := mustEvent(t, c, EventDownloadProposed)
	if proposed.TransferID != transferID || proposed.FileName != "note.txt" {
		t.Fatalf("got %#v", proposed)
	}

	if err := c.AcceptDownload(transferID, dir); err != nil {
		t.Fatalf("AcceptDownload: %v", err)
	}
	msg := mustReceive(t, server)
	if acc, ok := msg.(protocol.DownloadAccept); !ok || acc.TransferID != transferID {
		t.Fatalf("got %#v, want DownloadAccept", msg)
	}
	mustEvent(t, c, EventDownloadAccepted)

	for seq, chunk := range [][]byte{content[0:4], content[4:8]} {
		if err := server.Send(protocol.FileData{TransferID: transferID, Seq: int32(seq), Data: chunk}); err != nil {
			t.Fatalf("send chunk %d: %v", seq, err)
		}
		mustEvent(t, c, EventDownloadProgress)
	}

	if err := server.Send(protocol.FileEnd{TransferID: transferID, Success: true}); err != nil {
		t.Fatalf("send FileEnd: %v", err)
	}
	mustEvent(t, c, EventDownloadCompleted)

	got, err := os.ReadFile(filepath.Join(dir, "note.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("got file contents %q, want %q", got, content)
	}
}

func TestRejectDownload(t *testing.T) {
	c, server := newTestClient(t, config.Default())

	transferID := uuid.NewString()
	if err := server.Send(protocol.FileStart{
		Sender: "alice", TransferID: transferID, FileName: "note.txt", FileSize: 10,
	}); err != nil {
		t.Fatalf("send FileStart: %v", err)
	}
	mustEvent(t, c, EventDownloadProposed)

	if err := c.RejectDownload(transferID); err != nil {
		t.Fatalf("RejectDownload: %v", err)
	}
	msg := mustReceive(t, server)
	if rej, ok := msg.(protocol.DownloadReject); !ok || rej.TransferID != transferID {
		t.Fatalf("got %#v, want DownloadReject", msg)
	}
	mustEvent(t, c, EventDownloadRejected)
}

func TestDownloadFailureRemovesPartialFile(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 4
	c, server := newTestClient(t, cfg)

	dir := t.TempDir()
	transferID := uuid.NewString()

	if err := server.Send(protocol.FileStart{
		Sender: "alice", TransferID: transferID, FileName: "partial.bin", FileSize: 8,
	}); err != nil {
		t.Fatalf("send FileStart: %v", err)
	}
	mustEvent(t, c, EventDownloadProposed)

	if err := c.AcceptDownload(transferID, dir); err != nil {
		t.Fatalf("AcceptDownload: %v", err)
	}
	mustReceive(t, server) // DownloadAccept
	mustEvent(t, c, EventDownloadAccepted)

	if err := server.Send(protocol.FileData{TransferID: transferID, Seq: 0, Data: []byte("abcd")}); err != nil {
		t.Fatalf("send chunk: %v", err)
	}
	mustEvent(t, c, EventDownloadProgress)

	if err := server.Send(protocol.FileEnd{TransferID: transferID, Success: false, ErrorMessage: "peer aborted"}); err != nil {
		t.Fatalf("send FileEnd: %v", err)
	}
	mustEvent(t, c, EventDownloadFailed)

	if _, err := os.Stat(filepath.Join(dir, "partial.bin")); !os.IsNotExist(err) {
		t.Error("expected partial download file to be removed after failure")
	}
}

func TestUniquePathAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.txt"), []byte("1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := uniquePath(dir, "x.txt")
	want := filepath.Join(dir, "x_1.txt")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if err := os.WriteFile(got, []byte("2"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got = uniquePath(dir, "x.txt")
	want = filepath.Join(dir, "x_2.txt")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
