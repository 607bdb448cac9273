package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashBytes returns the hex SHA-256 of data. Feed uploads are keyed by this
// hash so re-posting the same extract is detected as a duplicate.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader hashes an uploaded file without loading it into memory.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
