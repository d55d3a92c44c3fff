package ckpt

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashMemory produces the stable content digest that becomes part of a
// checkpoint's HashTag; restoreRemote recomputes it over a downloaded
// payload and discards the checkpoint when the two differ.
func hashMemory(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
