package peerclient

import (
	"os"
	"time"

	"filetransfer/internal/protocol"
)

// pendingUpload is the sender-side bookkeeping kept until UPLOAD_CONFIRMED
// arrives (§3): the local bytes are not streamed before that.
type pendingUpload struct {
	TransferID string
	LocalPath  string // path to the bytes actually sent (post-compression)
	Target     string
	Compressed bool
	CreatedAt  time.Time
}

// pendingDownload is the receiver-side bookkeeping kept until the user
// accepts or rejects a proposed transfer (§3).
type pendingDownload struct {
	Ordinal   int
	Start     protocol.FileStart
	ArrivedAt time.Time
	State     DownloadState
}

// activeDownload is one transfer currently receiving chunks on the
// receiver side.
type activeDownload struct {
	TransferID   string
	FileName     string
	Path         string
	Size         int64
	File         *os.File
	ExpectedNext int32
	BytesWritten int64
	State        DownloadState
	digest       *digest
}
