// SPDX-License-Identifier: Apache-2.0

package frame

import "testing"

func TestCursorFixedWidth(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	c := newCursor(data)

	b, err := c.u8()
	if err != nil || b != 0x01 {
		t.Fatalf("u8() = %v, %v; want 0x01, nil", b, err)
	}

	c.seek(0)
	u16, err := c.u16()
	if err != nil || u16 != 0x0201 {
		t.Fatalf("u16() = %#x, %v; want 0x0201, nil", u16, err)
	}

	c.seek(0)
	u32, err := c.u32()
	if err != nil || u32 != 0x04030201 {
		t.Fatalf("u32() = %#x, %v; want 0x04030201, nil", u32, err)
	}

	c.seek(0)
	u64, err := c.u64()
	if err != nil || u64 != 0x0807060504030201 {
		t.Fatalf("u64() = %#x, %v; want 0x0807060504030201, nil", u64, err)
	}
}

func TestCursorTruncated(t *testing.T) {
	c := newCursor([]byte{0x01, 0x02})
	if _, err := c.u32(); err == nil {
		t.Fatalf("u32() over 2 bytes should fail, got nil error")
	}
}

func TestCursorULEB128(t *testing.T) {
	cases := []struct {
		data []byte
		want uint64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x02}, 2},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
	}
	for _, tc := range cases {
		c := newCursor(tc.data)
		got, err := c.uleb()
		if err != nil {
			t.Fatalf("uleb(%v): unexpected error %v", tc.data, err)
		}
		if got != tc.want {
			t.Errorf("uleb(%v) = %d, want %d", tc.data, got, tc.want)
		}
	}
}

func TestCursorSLEB128(t *testing.T) {
	cases := []struct {
		data []byte
		want int64
	}{
		{[]byte{0x02}, 2},
		{[]byte{0x7e}, -2},
		{[]byte{0xff, 0x00}, 127},
		{[]byte{0x81, 0x7f}, -127},
	}
	for _, tc := range cases {
		c := newCursor(tc.data)
		got, err := c.sleb()
		if err != nil {
			t.Fatalf("sleb(%v): unexpected error %v", tc.data, err)
		}
		if got != tc.want {
			t.Errorf("sleb(%v) = %d, want %d", tc.data, got, tc.want)
		}
	}
}

func TestCursorCString(t *testing.T) {
	c := newCursor([]byte{'z', 'P', 'L', 0, 0xff})
	s, err := c.cstring()
	if err != nil {
		t.Fatalf("cstring(): unexpected error %v", err)
	}
	if s != "zPL" {
		t.Errorf("cstring() = %q, want %q", s, "zPL")
	}
	if c.offset() != 4 {
		t.Errorf("offset after cstring() = %d, want 4", c.offset())
	}
}

func TestCursorSaveRestoreViaAt(t *testing.T) {
	c := newCursor([]byte{0xaa, 0xbb, 0xcc, 0xdd})
	c.seek(2)
	saved := c.at(c.offset())
	c.seek(0)
	if c.offset() != 0 {
		t.Fatalf("seek(0) left offset %d", c.offset())
	}
	if saved.offset() != 2 {
		t.Errorf("independent cursor from at() has offset %d, want 2", saved.offset())
	}
	b, err := saved.u8()
	if err != nil || b != 0xcc {
		t.Errorf("saved.u8() = %#x, %v; want 0xcc, nil", b, err)
	}
}
