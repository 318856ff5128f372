// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type failPin struct{ acquired bool }

func (p *failPin) Acquire() bool { return false }
func (p *failPin) Release()      { p.acquired = false }

func TestParseSkipsWhenPinFails(t *testing.T) {
	tbl := Parse(Image{Name: "libfoo.so", Arch: ArchX86_64}, &failPin{})
	require.NotNil(t, tbl)
	require.Empty(t, tbl.Records())
}

func TestParseViaEhFrameHdr(t *testing.T) {
	ehFrame, fdeOffset := buildCIEFDE()

	const (
		hdrVAddr     = 0x1000
		ehFrameVAddr = 0x2000
	)
	targetVAddr := ehFrameVAddr + uint32(fdeOffset)
	fdePtr := targetVAddr - hdrVAddr

	hdr := make([]byte, 24)
	hdr[0], hdr[1], hdr[2], hdr[3] = 1, 0x03, 0x03, 0x33
	putU32(hdr, 8, 1)
	putU32(hdr, 16, fdePtr)

	img := Image{
		Name:            "libfoo.so",
		Arch:            ArchX86_64,
		TextBase:        0,
		EhFrameHdr:      hdr,
		EhFrameHdrVAddr: hdrVAddr,
		EhFrame:         ehFrame,
		EhFrameVAddr:    ehFrameVAddr,
	}

	tbl := Parse(img, NoopPin)
	recs := tbl.Records()
	require.NotEmpty(t, recs)
	require.Equal(t, uint32(256), recs[0].Loc)
	for i := 1; i < len(recs); i++ {
		require.Less(t, recs[i-1].Loc, recs[i].Loc, "table must be sorted ascending by Loc")
	}
}

func TestParseViaCompactUnwind(t *testing.T) {
	img := Image{
		Name:          "libbar.dylib",
		Arch:          ArchX86_64,
		TextBase:      0,
		CompactUnwind: buildRegularPageUnwindInfo(),
	}

	tbl := Parse(img, NoopPin)
	recs := tbl.Records()
	require.Len(t, recs, 1)
	reg, off := UnpackCFA(recs[0].Cfa)
	require.Equal(t, CfaSP, reg)
	require.EqualValues(t, 32, off)
}

func TestParseNoMetadataReturnsEmptyTable(t *testing.T) {
	tbl := Parse(Image{Name: "libnone.so", Arch: ArchX86_64}, NoopPin)
	require.NotNil(t, tbl)
	require.Empty(t, tbl.Records())
}
