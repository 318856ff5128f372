// SPDX-License-Identifier: Apache-2.0

package frame

import "sort"

// Table is the append-only, later-sorted store of FrameDesc records built
// by a single image's parse. It is safe to grow via AddRecord for as long
// as one goroutine owns it; once Sort has been called it must be treated
// as immutable by every later reader, matching the publication-barrier
// discipline the profiler relies on.
type Table struct {
	records []FrameDesc
}

// NewTable preallocates room for a typical single-CIE .eh_frame section;
// growth beyond this is handled by Go's own slice-growth doubling, so no
// manual capacity-doubling logic is needed here.
func NewTable() *Table {
	return &Table{records: make([]FrameDesc, 0, 128)}
}

// AddRecord implements the append protocol of §4.5: the same-loc case
// overwrites, the same-tuple case drops, everything else appends.
func (t *Table) AddRecord(loc uint32, reg CfaReg, cfaOff, fpOff, pcOff int32) {
	t.addRecord(loc, PackCFA(reg, cfaOff), fpOff, pcOff)
}

// addRecord is the form of AddRecord that takes an already packed CFA
// value; AddRecord and addDesc both go through it.
func (t *Table) addRecord(loc uint32, cfa, fpOff, pcOff int32) {
	n := len(t.records)
	if n == 0 {
		t.records = append(t.records, FrameDesc{loc, cfa, fpOff, pcOff})
		return
	}

	prev := &t.records[n-1]
	if prev.Loc == loc {
		*prev = FrameDesc{loc, cfa, fpOff, pcOff}
		return
	}
	if prev.Cfa == cfa && prev.FpOff == fpOff && prev.PcOff == pcOff {
		return
	}
	t.records = append(t.records, FrameDesc{loc, cfa, fpOff, pcOff})
}

// addDesc is a thin convenience wrapper over addRecord for producers that
// already have a complete FrameDesc (the terminal-sentinel helpers).
func (t *Table) addDesc(d FrameDesc) {
	t.addRecord(d.Loc, d.Cfa, d.FpOff, d.PcOff)
}

// Sort orders the table ascending by Loc. Must be called exactly once,
// after every producer has finished appending and before the table is
// published to any reader.
func (t *Table) Sort() {
	sort.Slice(t.records, func(i, j int) bool { return t.records[i].Loc < t.records[j].Loc })
}

// Records returns the table's backing slice. Callers must not mutate it;
// ownership of the slice passes to whoever calls Records after Sort.
func (t *Table) Records() []FrameDesc {
	return t.records
}

// Lookup performs the binary search a sampler uses at signal-handler time:
// the greatest record whose Loc is <= pc. It is provided here for testing
// convenience even though §4.5 places runtime lookup with the external
// collaborator.
func (t *Table) Lookup(pc uint32) (FrameDesc, bool) {
	recs := t.records
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Loc > pc })
	if i == 0 {
		return FrameDesc{}, false
	}
	return recs[i-1], true
}
