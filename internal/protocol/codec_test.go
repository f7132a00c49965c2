package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		Chat{Sender: "aaaa1111", Target: "", Content: "hi"},
		Chat{Sender: "aaaa1111", Target: "bbbb2222", Content: "p"},
		FileStart{Sender: "aaaa1111", Target: "bbbb2222", TransferID: "t-1", FileName: "x.bin", FileSize: 20000},
		FileData{Sender: "aaaa1111", Target: "bbbb2222", TransferID: "t-1", Seq: 2, Data: []byte("some bytes")},
		FileData{Sender: "aaaa1111", Target: "bbbb2222", TransferID: "t-1", Seq: 0, Data: []byte{}},
		FileEnd{Sender: "aaaa1111", Target: "bbbb2222", TransferID: "t-1", Success: true},
		FileEnd{Sender: "aaaa1111", Target: "bbbb2222", TransferID: "t-1", Success: false, ErrorMessage: "expired"},
		Ack{Sender: "SERVER", Target: "aaaa1111", TransferID: "t-1", Seq: 5},
		Error{Sender: "SERVER", Target: "aaaa1111", ErrorDescription: "boom"},
		ClientConnect{Sender: "aaaa1111", ClientName: "alice"},
		ClientDisconnect{Sender: "aaaa1111", Reason: "bye"},
		ClientIDResponse{Sender: "SERVER", ClientID: "aaaa1111"},
		DownloadAccept{Sender: "bbbb2222", TransferID: "t-1"},
		DownloadReject{Sender: "bbbb2222", TransferID: "t-1"},
		UploadConfirmed{Sender: "server", TransferID: "t-1"},
	}

	for _, m := range cases {
		payload := Encode(m)
		decoded, err := Decode(payload)
		if err != nil {
			t.Fatalf("decode(%v) failed: %v", m, err)
		}
		if !reflect.DeepEqual(decoded, m) {
			t.Errorf("round trip mismatch:\n  want %#v\n  got  %#v", m, decoded)
		}

		reencoded := Encode(decoded)
		if !bytes.Equal(payload, reencoded) {
			t.Errorf("encode(decode(f)) != f for %#v", m)
		}
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	payload := []byte{0xFE, 0, 0, 0, 0}
	if _, err := Decode(payload); err == nil {
		t.Fatal("expected error for unknown kind tag")
	}
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestDecodeRejectsTruncatedField(t *testing.T) {
	// KindChat tag followed by a length prefix claiming 100 bytes but
	// supplying none.
	payload := []byte{byte(KindChat), 100, 0, 0, 0}
	if _, err := Decode(payload); err == nil {
		t.Fatal("expected error for truncated field")
	}
}

func TestDecodeRejectsTrailingGarbage(t *testing.T) {
	payload := Encode(ClientDisconnect{Sender: "aaaa1111", Reason: "bye"})
	payload = append(payload, 0xFF)
	if _, err := Decode(payload); err == nil {
		t.Fatal("expected error for trailing garbage")
	}
}
