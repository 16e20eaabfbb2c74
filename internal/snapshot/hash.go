package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSnapshot separates snapshot hashes from any other SHA-256 use of
// the same bytes. The version suffix allows migrating the algorithm.
const DomainSnapshot = "enmod/snapshot/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash identifies the content of s: topology, definition, time
// index and every result value. Run id and solve time are excluded, so
// two runs producing the same solution share a hash.
func ContentHash(s *Snapshot) (string, error) {
	tree, err := toTree(s)
	if err != nil {
		return "", fmt.Errorf("ContentHash: %w", err)
	}
	delete(tree, "run_id")
	delete(tree, "solved_at")
	canonical, err := MarshalCanonical(tree)
	if err != nil {
		return "", fmt.Errorf("ContentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
