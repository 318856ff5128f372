// SPDX-License-Identifier: Apache-2.0

package frame

import "testing"

func TestTableAddRecordOverwritesSameLoc(t *testing.T) {
	tbl := NewTable()
	tbl.AddRecord(0x10, CfaSP, 8, SameFP, -8)
	tbl.AddRecord(0x10, CfaFP, 16, -16, -8)

	recs := tbl.Records()
	if len(recs) != 1 {
		t.Fatalf("len(Records()) = %d, want 1", len(recs))
	}
	reg, off := UnpackCFA(recs[0].Cfa)
	if reg != CfaFP || off != 16 {
		t.Errorf("got cfa (%v, %d), want (fp, 16)", reg, off)
	}
}

func TestTableAddRecordDropsIdenticalTuple(t *testing.T) {
	tbl := NewTable()
	tbl.AddRecord(0x10, CfaSP, 8, SameFP, -8)
	tbl.AddRecord(0x18, CfaSP, 8, SameFP, -8) // identical rule, new loc: dropped.
	tbl.AddRecord(0x20, CfaFP, 16, -16, -8)   // genuinely different: appended.

	recs := tbl.Records()
	if len(recs) != 2 {
		t.Fatalf("len(Records()) = %d, want 2", len(recs))
	}
	if recs[0].Loc != 0x10 || recs[1].Loc != 0x20 {
		t.Errorf("got locs [%#x, %#x], want [0x10, 0x20]", recs[0].Loc, recs[1].Loc)
	}
}

func TestTableSortAndLookup(t *testing.T) {
	tbl := NewTable()
	tbl.addRecord(0x30, PackCFA(CfaSP, 8), SameFP, -8)
	tbl.addRecord(0x10, PackCFA(CfaFP, 16), -16, -8)
	tbl.addRecord(0x20, PackCFA(CfaPLT, 8), SameFP, -8)
	tbl.Sort()

	recs := tbl.Records()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Loc >= recs[i].Loc {
			t.Fatalf("records not strictly ascending at %d: %#x >= %#x", i, recs[i-1].Loc, recs[i].Loc)
		}
	}

	if _, ok := tbl.Lookup(0x05); ok {
		t.Errorf("Lookup(0x05) found a record before the first entry")
	}
	d, ok := tbl.Lookup(0x25)
	if !ok {
		t.Fatalf("Lookup(0x25) found nothing")
	}
	if d.Loc != 0x20 {
		t.Errorf("Lookup(0x25).Loc = %#x, want 0x20", d.Loc)
	}
}

func TestPackUnpackCFARoundTrip(t *testing.T) {
	for _, off := range []int32{0, 8, -16, 1<<20 - 1} {
		packed := PackCFA(CfaFP, off)
		reg, gotOff := UnpackCFA(packed)
		if reg != CfaFP || gotOff != off {
			t.Errorf("PackCFA/UnpackCFA(fp, %d) round-tripped to (%v, %d)", off, reg, gotOff)
		}
	}
}

func TestPCOffsetRoundTrip(t *testing.T) {
	for _, off := range []int32{0, 1, -1, 42, -42} {
		tagged := PCOffset(off)
		got, ok := IsPCOffset(tagged)
		if !ok {
			t.Fatalf("IsPCOffset(PCOffset(%d)) reported ok=false", off)
		}
		if got != off {
			t.Errorf("IsPCOffset(PCOffset(%d)) = %d", off, got)
		}
	}
	if _, ok := IsPCOffset(SameFP); ok {
		t.Errorf("IsPCOffset(SameFP) reported ok=true")
	}
}
