package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
