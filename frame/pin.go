// SPDX-License-Identifier: Apache-2.0

package frame

import "sync"

// Pin is the scoped image-pinning handle of §5: a caller holds one for
// the duration of a Parse call to guarantee the backing byte ranges stay
// mapped. It is modeled as an interface because the actual mechanism
// (dlopen/dlclose refcounting, an mmap reference count, ...) belongs to
// the image-enumeration collaborator, not to this package — grounded on
// original_source's UnloadProtection, which wraps exactly this pattern
// around dlopen/dlclose.
type Pin interface {
	// Acquire attempts to pin the image, returning false if it is being
	// unloaded concurrently. Parse skips the image entirely on failure,
	// per §7's per-image-skip rule.
	Acquire() bool
	// Release must be safe to call even if Acquire returned false.
	Release()
}

type noopPin struct{}

func (noopPin) Acquire() bool { return true }
func (noopPin) Release()      {}

// NoopPin is a Pin that always succeeds and never releases anything. It
// is correct for callers reading a file from disk (cmd/unwindtable, most
// tests) where nothing can concurrently unload the backing bytes.
var NoopPin Pin = noopPin{}

// Registry is the process-wide "already parsed" image-base set of §5,
// guarded by a single lock so the symbol-parse entry points stay
// race-free. Grounded on original_source's Symbols::parseLibraries,
// which guards its _parsed_libraries set with one _parse_lock mutex.
type Registry struct {
	mu     sync.Mutex
	marked map[uint64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{marked: make(map[uint64]struct{})}
}

// TryMark atomically checks whether imageBase has already been parsed
// and, if not, marks it as parsed. Callers should only proceed to Parse
// when TryMark returns true.
func (r *Registry) TryMark(imageBase uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.marked[imageBase]; ok {
		return false
	}
	r.marked[imageBase] = struct{}{}
	return true
}

// Unmark removes imageBase from the parsed set, for a library that was
// unloaded and may later be reloaded (and re-parsed) at the same base.
func (r *Registry) Unmark(imageBase uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.marked, imageBase)
}
