// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// frameKey is the BLAKE3 key for frame hashing. Domain separation
// keeps frame hashes from colliding with any other keyed hash a
// future component might compute over the same bytes. The value is
// the ASCII domain name zero-padded to the 32 bytes keyed mode
// requires, which keeps it readable in a debugger.
var frameKey = [32]byte{
	'l', 'a', 'p', 's', 'e', '.', 'c', 'a', 'p', 't', 'u', 'r', 'e', '.',
	'f', 'r', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// frameHash is a 32-byte keyed BLAKE3 digest of an encoded frame.
type frameHash [32]byte

// hashFrame digests the encoded image bytes. Identical consecutive
// digests are how the writer recognizes an unchanged screen.
func hashFrame(encoded []byte) frameHash {
	hasher, err := blake3.NewKeyed(frameKey[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)
	var hash frameHash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the canonical hex form used in logs and the index.
func (h frameHash) String() string {
	return hex.EncodeToString(h[:])
}
