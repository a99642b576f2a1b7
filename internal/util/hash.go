// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
)

// NetworkID derives a stable 64-bit identifier from a 16-byte peer id so the
// same peer can be correlated across logs and sessions. The mapping is
// deterministic and not reversible.
func NetworkID(peer [16]byte) uint64 {
	h := fnv.New64a()
	h.Write(peer[:])
	return h.Sum64()
}
