package core

// codec.go — the binary encoding shared by every application: length-prefixed
// integers, length-prefixed byte-string arrays, and the account sub-record
// array that keys each application's slice of an account's storage by
// instance id. Ported from the reference mip12 implementation's MAM.pack_int
// / MAM.parse_array / MAM.array_to_bytes / MAM.account_array_to_bytes /
// MAM.get_app_data_from_array static helpers — none of these charge gas
// themselves; callers meter reads/writes through the ExecutionContext around
// them.

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
)

// packedIntLengthWidth is the width, in bytes, of the big-endian length
// prefix that precedes every pack_int value and every array element.
const packedIntLengthWidth = 8

// maxArrayElements is the largest number of elements an `array` may encode;
// the count byte that precedes them is a single byte.
const maxArrayElements = 255

// PackInt encodes n as an 8-byte big-endian length L followed by L big-endian
// value bytes. L is the minimal number of bytes needed to represent n; L is 0
// for n == 0. Implemented over math/big so the full unsigned range the wire
// format allows (L up to 255 bytes) round-trips correctly, not just uint64.
func PackInt(n *big.Int) []byte {
	if n.Sign() == 0 {
		return make([]byte, packedIntLengthWidth)
	}
	val := n.Bytes() // big-endian, minimal, no leading zero byte
	out := make([]byte, packedIntLengthWidth+len(val))
	binary.BigEndian.PutUint64(out[:packedIntLengthWidth], uint64(len(val)))
	copy(out[packedIntLengthWidth:], val)
	return out
}

// PackUint64 is a convenience wrapper around PackInt for the common case of
// packing a machine-word unsigned integer.
func PackUint64(n uint64) []byte {
	return PackInt(new(big.Int).SetUint64(n))
}

// UnpackInt decodes a pack_int value starting at off, returning the value and
// the offset immediately following it (off + 8 + L).
func UnpackInt(buf []byte, off int) (*big.Int, int, error) {
	if off+packedIntLengthWidth > len(buf) {
		return nil, 0, fmt.Errorf("%w: pack_int length prefix truncated", ErrValidation)
	}
	l := binary.BigEndian.Uint64(buf[off : off+packedIntLengthWidth])
	off += packedIntLengthWidth
	if uint64(off)+l > uint64(len(buf)) {
		return nil, 0, fmt.Errorf("%w: pack_int value truncated", ErrValidation)
	}
	val := new(big.Int).SetBytes(buf[off : off+int(l)])
	return val, off + int(l), nil
}

// UnpackUint64 decodes a pack_int value and truncates it to uint64, for
// fields the spec bounds well within 64 bits (amounts, supplies, ids).
func UnpackUint64(buf []byte, off int) (uint64, int, error) {
	v, next, err := UnpackInt(buf, off)
	if err != nil {
		return 0, 0, err
	}
	if !v.IsUint64() {
		return 0, 0, fmt.Errorf("%w: pack_int value exceeds 64 bits", ErrValidation)
	}
	return v.Uint64(), next, nil
}

// ArrayToBytes encodes elems as a length-prefixed array: one count byte
// followed by, for each element, an 8-byte big-endian length and the element
// bytes. Elements of length 0 are skipped entirely on encode — an account
// that stores an empty sub-record is indistinguishable from one that never
// wrote it, an invariant several applications rely on to mean "delete".
func ArrayToBytes(elems [][]byte) ([]byte, error) {
	if len(elems) > maxArrayElements {
		return nil, fmt.Errorf("%w: array has %d elements, max %d", ErrValidation, len(elems), maxArrayElements)
	}
	out := []byte{0}
	count := 0
	for _, e := range elems {
		if len(e) == 0 {
			continue
		}
		lenBuf := make([]byte, packedIntLengthWidth)
		binary.BigEndian.PutUint64(lenBuf, uint64(len(e)))
		out = append(out, lenBuf...)
		out = append(out, e...)
		count++
	}
	out[0] = byte(count)
	return out, nil
}

// ParseArray decodes a length-prefixed array. An empty input decodes to a nil
// slice. The leading count byte drives exactly that many element reads.
func ParseArray(buf []byte) ([][]byte, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	elems, _, err := ParseArrayAt(buf, 0)
	return elems, err
}

// ParseArrayAt decodes a length-prefixed array starting at off within a
// larger buffer, returning the decoded elements and the offset immediately
// past the array — the form several application payloads need since a
// params blob embeds an array inline between fixed-width fields rather than
// as the whole buffer (Assets.create's modes array, Marketplace.list's
// goods/price arrays).
func ParseArrayAt(buf []byte, off int) ([][]byte, int, error) {
	if off >= len(buf) {
		return nil, 0, fmt.Errorf("%w: array count byte missing", ErrValidation)
	}
	count := int(buf[off])
	off++
	elems := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if off+packedIntLengthWidth > len(buf) {
			return nil, 0, fmt.Errorf("%w: array element %d length prefix truncated", ErrValidation, i)
		}
		l := binary.BigEndian.Uint64(buf[off : off+packedIntLengthWidth])
		off += packedIntLengthWidth
		if uint64(off)+l > uint64(len(buf)) {
			return nil, 0, fmt.Errorf("%w: array element %d truncated", ErrValidation, i)
		}
		elem := make([]byte, l)
		copy(elem, buf[off:off+int(l)])
		elems = append(elems, elem)
		off += int(l)
	}
	return elems, off, nil
}

// AccountArrayToBytes sorts sub-records ascending by their first 4 bytes
// (the instance id header every sub-record carries) and encodes the result
// as an array, giving account storage a stable, total-order serialization.
func AccountArrayToBytes(subRecords [][]byte) ([]byte, error) {
	sorted := make([][]byte, len(subRecords))
	copy(sorted, subRecords)
	sort.SliceStable(sorted, func(i, j int) bool {
		return subRecordInstanceID(sorted[i]) < subRecordInstanceID(sorted[j])
	})
	return ArrayToBytes(sorted)
}

func subRecordInstanceID(subRecord []byte) uint32 {
	if len(subRecord) < InstanceIDLength {
		return 0
	}
	return binary.BigEndian.Uint32(subRecord[:InstanceIDLength])
}

// GetAppDataFromArray linear-scans decoded account sub-records for the one
// belonging to instanceID, returning it and its index, or (nil, -1) if the
// account has no sub-record for that application yet.
func GetAppDataFromArray(instanceID uint32, subRecords [][]byte) ([]byte, int) {
	for i, sr := range subRecords {
		if subRecordInstanceID(sr) == instanceID {
			return sr, i
		}
	}
	return nil, -1
}

// SetToArray writes value at index, or appends it when index is negative —
// the insert-or-update helper every application uses after mutating its
// sub-record before re-encoding the account array.
func SetToArray(subRecords [][]byte, index int, value []byte) [][]byte {
	if index < 0 {
		return append(subRecords, value)
	}
	subRecords[index] = value
	return subRecords
}

// InstanceIDBytes encodes an instance id as the fixed 4-byte big-endian
// header every sub-record and token-info record begins with.
func InstanceIDBytes(id uint32) []byte {
	b := make([]byte, InstanceIDLength)
	binary.BigEndian.PutUint32(b, id)
	return b
}
