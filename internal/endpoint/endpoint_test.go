package endpoint

import (
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"filetransfer/internal/protocol"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn)
	server := New(serverConn)
	defer client.Close()
	defer server.Close()

	want := protocol.Chat{Sender: "aaaa1111", Target: "", Content: "hello"}

	done := make(chan error, 1)
	go func() { done <- client.Send(want) }()

	got, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestSendIsSerializedAcrossGoroutines(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn)
	server := New(serverConn)
	defer client.Close()
	defer server.Close()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_ = client.Send(protocol.Ack{Sender: "aaaa1111", TransferID: "t", Seq: int32(i)})
		}()
	}

	seen := make(map[int32]bool)
	for i := 0; i < n; i++ {
		m, err := server.Receive()
		if err != nil {
			t.Fatalf("Receive #%d: %v", i, err)
		}
		ack, ok := m.(protocol.Ack)
		if !ok {
			t.Fatalf("Receive #%d: got %T, want protocol.Ack (frame interleaving corrupted the stream)", i, m)
		}
		seen[ack.Seq] = true
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d distinct sequence numbers, want %d", len(seen), n)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	server := New(serverConn)

	errCh := make(chan error, 1)
	go func() {
		_, err := server.Receive()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error from Receive after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}

	select {
	case <-server.Done():
	default:
		t.Error("Done() channel not closed after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	_, serverConn := net.Pipe()
	server := New(serverConn)

	if err := server.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSendAfterPeerCloseReturnsError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := New(clientConn)
	server := New(serverConn)
	server.Close()

	err := client.Send(protocol.Chat{Sender: "aaaa1111", Content: "hi"})
	if err == nil {
		t.Fatal("expected error sending to a closed peer")
	}

	select {
	case <-client.Done():
	default:
		t.Error("Done() channel not closed after failed Send")
	}
}

func TestIDAndDisplayName(t *testing.T) {
	_, conn := net.Pipe()
	e := New(conn)
	defer e.Close()

	if e.ID() != "" || e.DisplayName() != "" {
		t.Fatal("expected empty id/name before assignment")
	}
	e.SetID("aaaa1111")
	e.SetDisplayName("alice")
	if e.ID() != "aaaa1111" {
		t.Errorf("ID() = %q, want aaaa1111", e.ID())
	}
	if e.DisplayName() != "alice" {
		t.Errorf("DisplayName() = %q, want alice", e.DisplayName())
	}
}
