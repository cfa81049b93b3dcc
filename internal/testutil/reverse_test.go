package testutil

import "testing"

func TestReverse(t *testing.T) {
	cases := []string{"", "a", "ab", "mam-call-id", "Hello, 世界"}
	for _, c := range cases {
		if got := Reverse(Reverse(c)); got != c {
			t.Fatalf("reverse twice mismatch: got %q want %q", got, c)
		}
	}
}
