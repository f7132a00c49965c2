package peerclient

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compressor is the pluggable "optional compression of large files before
// send" collaborator §1 names as an external concern and §4.5 step 1
// describes procedurally. The core outbound flow calls through this
// interface; it does not implement or exhaustively test compression
// itself.
type Compressor interface {
	// Compress reads srcPath and writes a single-entry compressed
	// artifact to a new temporary file, returning its path. The caller
	// owns deleting the returned path once the transfer ends, regardless
	// of outcome.
	Compress(srcPath string) (dstPath string, err error)
}

// zstdCompressor is the default Compressor, backed by
// github.com/klauspost/compress/zstd.
type zstdCompressor struct{}

// NewCompressor returns the default zstd-backed Compressor.
func NewCompressor() Compressor { return zstdCompressor{} }

func (zstdCompressor) Compress(srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dstPath := srcPath + ".zst.tmp"
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", err
	}

	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		os.Remove(dstPath)
		return "", err
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", err
	}
	return dstPath, nil
}

// alreadyCompressedExts lists extensions that shouldCompress skips, since
// compressing them again rarely pays off. It only affects compression; it
// does not decide which files may be sent (that hook is registry.Policy).
var alreadyCompressedExts = map[string]bool{
	".zip": true, ".gz": true, ".zst": true, ".7z": true, ".rar": true,
	".mp4": true, ".mp3": true, ".jpg": true, ".jpeg": true, ".png": true,
}

// shouldCompress reports whether the outbound flow should run the
// compression collaborator for a file of the given size and name (§4.5
// step 1: above the threshold, and not already a compressed format).
func shouldCompress(path string, size, threshold int64) bool {
	if size <= threshold {
		return false
	}
	return !alreadyCompressedExts[strings.ToLower(filepath.Ext(path))]
}
