package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signatureOf fingerprints an ordered list of item identity keys. Reordering
// two keys changes the signature; so does any insertion or removal.
func signatureOf(keys []string) string {
	h := sha256.Sum256([]byte(strings.Join(keys, "\x1f")))
	return hex.EncodeToString(h[:])
}
