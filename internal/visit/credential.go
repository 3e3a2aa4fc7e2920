package visit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// credentialBytes is the entropy of an issued credential. 256 bits makes
// the credential itself the secret, so a fast hash suffices for storage:
// there is nothing to dictionary-attack.
const credentialBytes = 32

// GenerateCredential returns a new raw credential value and its storage
// hash. The raw value is shown to the caller exactly once; only the
// hash is persisted.
func GenerateCredential() (raw, hash string, err error) {
	buf := make([]byte, credentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating credential: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashCredential(raw), nil
}

// HashCredential computes the storage hash for a raw credential value.
// Deterministic so a scanned credential can be matched by indexed lookup.
func HashCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
