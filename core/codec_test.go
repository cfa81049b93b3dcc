package core

import (
	"bytes"
	"math/big"
	"testing"
)

func TestPackUnpackIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 255, 256, 65535, 1 << 40}
	for _, c := range cases {
		n := big.NewInt(c)
		packed := PackInt(n)
		got, next, err := UnpackInt(packed, 0)
		if err != nil {
			t.Fatalf("UnpackInt(%d): %v", c, err)
		}
		if got.Cmp(n) != 0 {
			t.Fatalf("round-trip %d: got %s", c, got.String())
		}
		if next != len(packed) {
			t.Fatalf("round-trip %d: next=%d want %d", c, next, len(packed))
		}
	}
}

func TestPackIntZeroIsEightZeroBytes(t *testing.T) {
	packed := PackInt(big.NewInt(0))
	if len(packed) != 8 || !bytes.Equal(packed, make([]byte, 8)) {
		t.Fatalf("pack_int(0) = %x, want 8 zero bytes", packed)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	elems := [][]byte{[]byte("alpha"), []byte("b"), []byte("")}
	encoded, err := ArrayToBytes(elems)
	if err != nil {
		t.Fatalf("ArrayToBytes: %v", err)
	}
	decoded, err := ParseArray(encoded)
	if err != nil {
		t.Fatalf("ParseArray: %v", err)
	}
	// Zero-length elements are omitted on encode, so decoding drops the third.
	if len(decoded) != 2 {
		t.Fatalf("decoded %d elements, want 2", len(decoded))
	}
	if !bytes.Equal(decoded[0], []byte("alpha")) || !bytes.Equal(decoded[1], []byte("b")) {
		t.Fatalf("decoded mismatch: %q %q", decoded[0], decoded[1])
	}
}

func TestArrayToBytesRejectsTooManyElements(t *testing.T) {
	elems := make([][]byte, maxArrayElements+1)
	for i := range elems {
		elems[i] = []byte{1}
	}
	if _, err := ArrayToBytes(elems); err == nil {
		t.Fatalf("expected error for %d elements", len(elems))
	}
}

func TestAccountArrayToBytesSortsByInstanceID(t *testing.T) {
	sub1 := append(InstanceIDBytes(5), []byte("five")...)
	sub2 := append(InstanceIDBytes(1), []byte("one")...)
	sub3 := append(InstanceIDBytes(3), []byte("three")...)

	encoded, err := AccountArrayToBytes([][]byte{sub1, sub2, sub3})
	if err != nil {
		t.Fatalf("AccountArrayToBytes: %v", err)
	}
	decoded, err := ParseArray(encoded)
	if err != nil {
		t.Fatalf("ParseArray: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("got %d sub-records, want 3", len(decoded))
	}
	ids := []uint32{subRecordInstanceID(decoded[0]), subRecordInstanceID(decoded[1]), subRecordInstanceID(decoded[2])}
	if ids[0] != 1 || ids[1] != 3 || ids[2] != 5 {
		t.Fatalf("sub-records not sorted ascending by instance id: %v", ids)
	}
}

func TestGetAppDataFromArrayMissingReturnsNegativeIndex(t *testing.T) {
	sub := append(InstanceIDBytes(7), []byte("x")...)
	_, idx := GetAppDataFromArray(9, [][]byte{sub})
	if idx != -1 {
		t.Fatalf("GetAppDataFromArray for unknown instance id = %d, want -1", idx)
	}
}

func TestSetToArrayAppendsOnNegativeIndex(t *testing.T) {
	out := SetToArray(nil, -1, []byte("a"))
	if len(out) != 1 || !bytes.Equal(out[0], []byte("a")) {
		t.Fatalf("SetToArray append failed: %v", out)
	}
	out = SetToArray(out, 0, []byte("b"))
	if len(out) != 1 || !bytes.Equal(out[0], []byte("b")) {
		t.Fatalf("SetToArray update failed: %v", out)
	}
}
