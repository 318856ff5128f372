// SPDX-License-Identifier: Apache-2.0

package frame

import (
	lru "github.com/elastic/go-freelru"
)

// cieCacheSize mirrors the teacher's own constant: real .eh_frame sections
// share one CIE across thousands of FDEs, and 256 distinct CIEs comfortably
// covers every augmentation/personality variant one image is likely to
// carry.
const cieCacheSize = 256

// cieInfo is the parsed, alignment-factor-bearing prologue of one CIE. It
// is cheap to recompute but expensive to recompute per FDE, hence the
// cache below.
type cieInfo struct {
	codeAlign uint64
	dataAlign int64
}

// newCIECache builds the LRU that fronts parseCIEPrologue, keyed by the CIE's byte
// offset within its section. Capacity failures are treated as
// "cache disabled" by the caller rather than propagated, since the cache
// carries no correctness weight (§4.7 — clearing it must not change any
// output table).
func newCIECache() *lru.LRU[uint64, *cieInfo] {
	c, err := lru.New[uint64, *cieInfo](cieCacheSize, hashCIEOffset)
	if err != nil {
		return nil
	}
	return c
}

func hashCIEOffset(offset uint64) uint32 {
	// Splitmix64-style finalizer, cheap and sufficiently well distributed
	// for the small, sparse set of CIE offsets one image carries.
	h := offset
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return uint32(h)
}
