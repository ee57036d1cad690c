package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives content-addressed identifiers from uploaded documents. Digests carry no salt
// so identifiers survive restarts and redeploys.
type Hasher struct {
	IDLength int
}

func NewHasher(idLength int) Hasher {
	return Hasher{IDLength: idLength}
}

// Hash returns the hex SHA-256 digest of data.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DeriveID returns the first IDLength characters of contentHash.
func (h Hasher) DeriveID(contentHash string) string {
	return DeriveID(contentHash, h.IDLength)
}

func DeriveID(contentHash string, length int) string {
	if length <= 0 || length >= len(contentHash) {
		return contentHash
	}
	return contentHash[:length]
}
