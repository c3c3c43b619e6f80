// Package kvstree implements the KVS data model: content-addressed
// directory entries, directories, and the canonical encoding/hashing that
// ties them to blob references (spec §3).
package kvstree

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// Ref is an opaque blob reference: a CIDv1 string derived from hashing a
// canonical encoding with the configured hash algorithm. Equality of refs
// implies equality of content (spec §3 "Blob reference").
type Ref string

// rawCodec is the multicodec used for the blobs this store addresses; the
// content itself is opaque JSON, not a typed IPLD schema, so "raw" (0x55)
// is the correct codec the way it is for any non-schema blob.
const rawCodec = cid.Raw

// MaxRefLength bounds the accepted length of a wire-supplied reference
// string (spec §7 EInvalid: "bad reference string length").
const MaxRefLength = 256

// HashBytes computes the blob reference for an already-canonically-encoded
// value. Callers normally go through HashDirectory/HashValue instead.
func HashBytes(encoded []byte) (Ref, error) {
	digest := keccak256(encoded)
	mh, err := multihash.Encode(digest, multihash.KECCAK_256)
	if err != nil {
		return "", err
	}
	return Ref(cid.NewCidV1(rawCodec, mh).String()), nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Valid reports whether ref looks like a well-formed reference string
// (non-empty, within the configured maximum length). It does not check
// that the referenced blob actually exists.
func (r Ref) Valid() bool {
	return len(r) > 0 && len(r) <= MaxRefLength
}

func (r Ref) String() string { return string(r) }
