package message

import "crypto/sha256"

// IDSize is the length in bytes of every message identifier.
const IDSize = sha256.Size

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// GenerateID derives a message identifier from its payload. The same payload
// always yields the same id, so two requests carrying identical text are
// indistinguishable by id.
func GenerateID(data []byte) []byte {
	return Hash(data)
}
