package crc32

import "testing"

func TestKnownValues(t *testing.T) {
	tests := []struct {
		in   string
		want Checksum
	}{
		{"", 0x00000000},
		{"a", 0xE8B7BE43},
		{"abc", 0x352441C2},
		{"123456789", 0xCBF43926},
	}
	for _, tc := range tests {
		if got := Update(New(), []byte(tc.in)); got != tc.want {
			t.Errorf("Update(%q) = %#08x, want %#08x", tc.in, uint32(got), uint32(tc.want))
		}
	}
}

func TestByteFallbackMatchesTable(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	want := Update(New(), data)

	got := New()
	for _, b := range data {
		got = UpdateByte(got, b)
	}
	if got != want {
		t.Errorf("byte-at-a-time = %#08x, want %#08x", uint32(got), uint32(want))
	}
}

func TestChunking(t *testing.T) {
	data := make([]byte, 20003)
	for i := range data {
		data[i] = byte(i * 13)
	}
	want := Update(New(), data)

	for _, chunkSize := range []int{1, 3, 7, 8, 16, 4099} {
		got := New()
		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			got = Update(got, data[off:end])
		}
		if got != want {
			t.Errorf("chunkSize=%d: got %#08x, want %#08x", chunkSize, uint32(got), uint32(want))
		}
	}
}

func TestCombine(t *testing.T) {
	a := []byte("Hello, ")
	b := []byte("World!")
	ab := append(append([]byte(nil), a...), b...)

	crcA := Update(New(), a)
	crcB := Update(New(), b)
	crcAB := Update(New(), ab)

	if got := Combine(crcA, crcB, int64(len(b))); got != crcAB {
		t.Errorf("Combine = %#08x, want %#08x", uint32(got), uint32(crcAB))
	}
}

func TestCombineEmptySecond(t *testing.T) {
	a := []byte("some data")
	crcA := Update(New(), a)
	if got := Combine(crcA, New(), 0); got != crcA {
		t.Errorf("Combine with empty B = %#08x, want %#08x", uint32(got), uint32(crcA))
	}
}

func TestOperatorReuse(t *testing.T) {
	chunk := []byte("0123456789")
	full := append(append([]byte(nil), chunk...), chunk...)
	full = append(full, chunk...)

	want := Update(New(), full)

	crc := Update(New(), chunk)
	op := NewOperator(int64(len(chunk)))
	for i := 0; i < 2; i++ {
		crc = Checksum(uint32(op.Apply(crc)) ^ uint32(Update(New(), chunk)))
	}
	if crc != want {
		t.Errorf("operator-based combine = %#08x, want %#08x", uint32(crc), uint32(want))
	}
}
