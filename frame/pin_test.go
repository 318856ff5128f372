// SPDX-License-Identifier: Apache-2.0

package frame

import "testing"

func TestRegistryTryMarkOnce(t *testing.T) {
	r := NewRegistry()
	if !r.TryMark(0x1000) {
		t.Fatalf("first TryMark(0x1000) = false, want true")
	}
	if r.TryMark(0x1000) {
		t.Fatalf("second TryMark(0x1000) = true, want false (already marked)")
	}
	r.Unmark(0x1000)
	if !r.TryMark(0x1000) {
		t.Fatalf("TryMark(0x1000) after Unmark = false, want true")
	}
}

func TestNoopPinAlwaysAcquires(t *testing.T) {
	if !NoopPin.Acquire() {
		t.Fatalf("NoopPin.Acquire() = false, want true")
	}
	NoopPin.Release() // must not panic
}
