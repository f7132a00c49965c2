package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxFrameLen bounds the declared length of any single frame payload.
// §4.1 requires MAX_FRAME_LEN >= 16 KiB and <= 128 MiB; we use the spec's
// recommended 100 MiB ceiling, which covers the largest permitted
// chunk-carrying frame with headroom.
const MaxFrameLen = 100 * 1024 * 1024

// ErrMalformedFrame is returned by Decode for any frame that is truncated,
// carries an out-of-range length, trailing garbage, or an unknown kind tag.
type ErrMalformedFrame struct {
	Reason string
}

func (e *ErrMalformedFrame) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

func malformed(reason string) error { return &ErrMalformedFrame{Reason: reason} }

// Encode serializes a message into a frame payload (kind byte + body). It
// never fails for a well-formed value, matching the §4.1 contract.
func Encode(m Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Kind()))

	switch v := m.(type) {
	case Chat:
		putString(&buf, v.Sender)
		putString(&buf, v.Target)
		putString(&buf, v.Content)
	case FileStart:
		putString(&buf, v.Sender)
		putString(&buf, v.Target)
		putString(&buf, v.TransferID)
		putString(&buf, v.FileName)
		putInt64(&buf, v.FileSize)
	case FileData:
		putString(&buf, v.Sender)
		putString(&buf, v.Target)
		putString(&buf, v.TransferID)
		putInt32(&buf, v.Seq)
		putBytes(&buf, v.Data)
	case FileEnd:
		putString(&buf, v.Sender)
		putString(&buf, v.Target)
		putString(&buf, v.TransferID)
		putBool(&buf, v.Success)
		putString(&buf, v.ErrorMessage)
	case Ack:
		putString(&buf, v.Sender)
		putString(&buf, v.Target)
		putString(&buf, v.TransferID)
		putInt32(&buf, v.Seq)
	case Error:
		putString(&buf, v.Sender)
		putString(&buf, v.Target)
		putString(&buf, v.ErrorDescription)
	case ClientConnect:
		putString(&buf, v.Sender)
		putString(&buf, v.ClientName)
	case ClientDisconnect:
		putString(&buf, v.Sender)
		putString(&buf, v.Reason)
	case ClientIDResponse:
		putString(&buf, v.Sender)
		putString(&buf, v.ClientID)
	case DownloadAccept:
		putString(&buf, v.Sender)
		putString(&buf, v.TransferID)
	case DownloadReject:
		putString(&buf, v.Sender)
		putString(&buf, v.TransferID)
	case UploadConfirmed:
		putString(&buf, v.Sender)
		putString(&buf, v.TransferID)
	default:
		panic(fmt.Sprintf("protocol: unencodable message type %T", m))
	}

	return buf.Bytes()
}

// Decode reads a complete frame payload (kind byte + body, no length
// prefix — that is stripped by the framing layer already) and returns the
// typed message it represents. It rejects trailing garbage, truncation,
// and unknown kind tags.
func Decode(payload []byte) (Message, error) {
	if len(payload) < 1 {
		return nil, malformed("empty payload")
	}
	kind := Kind(payload[0])
	if !kind.valid() {
		return nil, malformed(fmt.Sprintf("unknown kind tag 0x%02x", payload[0]))
	}

	r := &reader{buf: payload[1:]}

	var m Message
	switch kind {
	case KindChat:
		v := Chat{}
		v.Sender = r.string()
		v.Target = r.string()
		v.Content = r.string()
		m = v
	case KindFileStart:
		v := FileStart{}
		v.Sender = r.string()
		v.Target = r.string()
		v.TransferID = r.string()
		v.FileName = r.string()
		v.FileSize = r.int64()
		m = v
	case KindFileData:
		v := FileData{}
		v.Sender = r.string()
		v.Target = r.string()
		v.TransferID = r.string()
		v.Seq = r.int32()
		v.Data = r.bytes()
		m = v
	case KindFileEnd:
		v := FileEnd{}
		v.Sender = r.string()
		v.Target = r.string()
		v.TransferID = r.string()
		v.Success = r.boolean()
		v.ErrorMessage = r.string()
		m = v
	case KindAck:
		v := Ack{}
		v.Sender = r.string()
		v.Target = r.string()
		v.TransferID = r.string()
		v.Seq = r.int32()
		m = v
	case KindError:
		v := Error{}
		v.Sender = r.string()
		v.Target = r.string()
		v.ErrorDescription = r.string()
		m = v
	case KindClientConnect:
		v := ClientConnect{}
		v.Sender = r.string()
		v.ClientName = r.string()
		m = v
	case KindClientDisconnect:
		v := ClientDisconnect{}
		v.Sender = r.string()
		v.Reason = r.string()
		m = v
	case KindClientIDResponse:
		v := ClientIDResponse{}
		v.Sender = r.string()
		v.ClientID = r.string()
		m = v
	case KindDownloadAccept:
		v := DownloadAccept{}
		v.Sender = r.string()
		v.TransferID = r.string()
		m = v
	case KindDownloadReject:
		v := DownloadReject{}
		v.Sender = r.string()
		v.TransferID = r.string()
		m = v
	case KindUploadConfirmed:
		v := UploadConfirmed{}
		v.Sender = r.string()
		v.TransferID = r.string()
		m = v
	}

	if r.err != nil {
		return nil, r.err
	}
	if !r.exhausted() {
		return nil, malformed("trailing bytes after decoded fields")
	}
	return m, nil
}

// ---- low-level field encoding ----
//
// Strings and byte arrays: uint32_le length || raw bytes.
// 64-bit integers: little-endian. 32-bit integers: little-endian.
// Booleans: one byte, 0 or 1.

func putString(buf *bytes.Buffer, s string) { putBytes(buf, []byte(s)) }

func putBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func putInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func putInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// reader unpacks fields from a decoded payload body, accumulating the
// first error it hits so call sites can chain reads without checking
// after every field.
type reader struct {
	buf []byte
	err error
}

func (r *reader) exhausted() bool { return len(r.buf) == 0 }

func (r *reader) need(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = malformed("truncated field")
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) uint32() uint32 {
	b := r.need(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) int32() int32 { return int32(r.uint32()) }

func (r *reader) int64() int64 {
	b := r.need(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	b := r.need(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) string() string {
	b := r.bytes()
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *reader) boolean() bool {
	b := r.need(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}
