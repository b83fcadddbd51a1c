package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint returns a deterministic key for the query structure. Identical
// trees always produce the same fingerprint, which is what makes caching
// compiled queries by fingerprint sound.
func Fingerprint(q *Query) string {
	h := sha256.New()
	for i, c := range q.Clauses {
		fmt.Fprintf(h, "%d:%T:%s;", i, c, c.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether two queries are structurally identical, ignoring
// source positions.
func Equal(a, b *Query) bool {
	if a == nil || b == nil {
		return a == b
	}
	return Fingerprint(a) == Fingerprint(b)
}
