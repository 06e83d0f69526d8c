// Package fingerprint derives deterministic job identifiers from artifact
// identity metadata. The fingerprint doubles as the dedup key and the object
// storage key, so re-uploading the same metadata is naturally idempotent.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HexLength is the number of hex characters kept from the SHA-256 digest.
// 32 chars (128 bits) is plenty for per-owner dedup.
const HexLength = 32

// Resolve computes the fingerprint for an artifact identity triple.
// Same (name, size, lastModified) always yields the same fingerprint; two
// artifacts with an identical triple are treated as the same job regardless
// of byte-level identity. That collision policy is deliberate.
func Resolve(name string, size int64, lastModified int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", name, size, lastModified)))
	return hex.EncodeToString(sum[:])[:HexLength]
}

// ObjectKey builds the storage key for an artifact: "<owner>/<fp>-<name>".
// The key embeds the fingerprint so the ingest trigger and the worker can
// recover the job identity without a lookup.
func ObjectKey(ownerID, fp, name string) string {
	return fmt.Sprintf("%s/%s-%s", ownerID, fp, name)
}

// ResultKey builds the key under which the result document is stored.
func ResultKey(ownerID, fp string) string {
	return fmt.Sprintf("%s/%s.json", ownerID, fp)
}

// ParseObjectKey splits an object key back into (ownerID, fingerprint, name).
// Returns an error if the key does not follow the ObjectKey layout.
func ParseObjectKey(key string) (ownerID, fp, name string, err error) {
	owner, rest, ok := strings.Cut(key, "/")
	if !ok || owner == "" || rest == "" {
		return "", "", "", fmt.Errorf("malformed object key %q: missing owner segment", key)
	}

	if len(rest) < HexLength+2 || rest[HexLength] != '-' {
		return "", "", "", fmt.Errorf("malformed object key %q: missing fingerprint prefix", key)
	}

	fp = rest[:HexLength]
	if !isHex(fp) {
		return "", "", "", fmt.Errorf("malformed object key %q: fingerprint is not hex", key)
	}

	return owner, fp, rest[HexLength+1:], nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
