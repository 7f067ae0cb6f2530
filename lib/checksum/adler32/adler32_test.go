package adler32

import "testing"

func TestEmpty(t *testing.T) {
	if got := Update(New(), nil); got != 1 {
		t.Errorf("Update(New(), nil) = %#x, want 0x1", uint32(got))
	}
}

func TestKnownValues(t *testing.T) {
	tests := []struct {
		in   string
		want Checksum
	}{
		{"", 0x00000001},
		{"a", 0x00620062},
		{"abc", 0x024d0127},
		{"Wikipedia", 0x11E60398},
	}
	for _, tc := range tests {
		if got := Update(New(), []byte(tc.in)); got != tc.want {
			t.Errorf("Update(%q) = %#x, want %#x", tc.in, uint32(got), uint32(tc.want))
		}
	}
}

func TestChunking(t *testing.T) {
	data := make([]byte, 20000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	want := Update(New(), data)

	for _, chunkSize := range []int{1, 3, 5552, 5553, 9999} {
		got := New()
		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			got = Update(got, data[off:end])
		}
		if got != want {
			t.Errorf("chunkSize=%d: got %#x, want %#x", chunkSize, uint32(got), uint32(want))
		}
	}
}

func TestCombine(t *testing.T) {
	a := []byte("Hello, ")
	b := []byte("World!")
	ab := append(append([]byte(nil), a...), b...)

	adlerA := Update(New(), a)
	adlerB := Update(New(), b)
	adlerAB := Update(New(), ab)

	if got := Combine(adlerA, adlerB, int64(len(b))); got != adlerAB {
		t.Errorf("Combine = %#x, want %#x", uint32(got), uint32(adlerAB))
	}
}

func TestCombineEmptySecond(t *testing.T) {
	a := []byte("some data")
	adlerA := Update(New(), a)
	if got := Combine(adlerA, New(), 0); got != adlerA {
		t.Errorf("Combine with empty B = %#x, want %#x", uint32(got), uint32(adlerA))
	}
}
