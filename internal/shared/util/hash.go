package util

import (
	"crypto/sha256"
	"encoding/hex"
)

const ownerPrefixBytes = 16

// OwnerKeyPrefix is the storage namespace for an owner: a fixed-length,
// path-safe digest of the owner id. Raw ids never appear in object keys.
func OwnerKeyPrefix(ownerID string) string {
	sum := sha256.Sum256([]byte(ownerID))
	return hex.EncodeToString(sum[:ownerPrefixBytes])
}
