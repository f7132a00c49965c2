package protocol

import (
	"encoding/binary"
	"io"
)

// WriteFrame emits one frame: a 4-byte little-endian length prefix followed
// by exactly len(payload) bytes. Callers are responsible for holding
// whatever write-serialization discipline the caller needs (see
// internal/endpoint) — this function issues two Write calls and does not
// itself guarantee atomicity against concurrent writers on the same
// underlying writer.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one complete frame payload from r: the length prefix,
// validated against (0, MaxFrameLen], then exactly that many payload
// bytes. Returns io.EOF (unwrapped) only when the stream closes cleanly
// before any byte of a new frame is read; any other truncation is reported
// as ErrMalformedFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, malformed("truncated length prefix")
		}
		return nil, err
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxFrameLen {
		return nil, malformed("declared length out of range")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, malformed("truncated payload")
	}
	return payload, nil
}
