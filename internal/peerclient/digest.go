package peerclient

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// digest accumulates a running BLAKE2b-256 hash over the bytes a transfer
// reads (sender) or writes (receiver). This is a local integrity check,
// not a wire-protocol field: §6's FILE_END shape is fixed
// (transferId/success/errorMessage) and is not extended here, so the digest
// is never carried across the connection. Sender and receiver each compute
// and log their own digest independently (outbound.go's streamChunks,
// inbound.go's onFileEnd); there is no side channel to compare them, so a
// corrupted-in-transit file with a successful FILE_END is not detected by
// this mechanism.
type digest struct {
	h hash.Hash
}

func newDigest() *digest {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a bad key, and we pass none.
		panic(err)
	}
	return &digest{h: h}
}

func (d *digest) Write(p []byte) { d.h.Write(p) }

func (d *digest) Sum() string { return hex.EncodeToString(d.h.Sum(nil)) }
