package testutil

// Reverse returns s with its bytes in reverse order. It operates on raw
// bytes rather than runes so it is an involution even for invalid UTF-8,
// which makes it a cheap round-trip check for sandbox file I/O: encode,
// reverse, write, read, reverse back, compare.
func Reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
