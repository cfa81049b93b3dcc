package core

import (
	"testing"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	resetSingletonForTesting()
	rt, err := NewRuntime(NewKVStore(), NewKVStore(), func() uint64 { return 1 }, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.BootstrapMCM(NewMCMApp); err != nil {
		t.Fatalf("BootstrapMCM: %v", err)
	}
	return rt
}

func seedMCMBalance(t *testing.T, rt *Runtime, addr Address, balance uint64) {
	t.Helper()
	ctx := NoOpContext(rt.appStore, rt.accountStore)
	if err := SetMCMBalance(ctx, addr, balance, false); err != nil {
		t.Fatalf("seedMCMBalance: %v", err)
	}
}

func encodeCreateTagParams(newAddr Address, funding uint64) []byte {
	out := make([]byte, AddressLength+8)
	copy(out[:AddressLength], newAddr.Bytes())
	for i := 0; i < 8; i++ {
		out[AddressLength+7-i] = byte(funding >> (8 * i))
	}
	return out
}

func addrOf(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestMCMCreateTagSeedsNewAccount(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	b := addrOf(0x22)
	seedMCMBalance(t, rt, a, 1_000_000)

	maxGas := uint64(100_000)
	gasUsed, gasCost, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 500_000))
	if err != nil {
		t.Fatalf("create_tag: %v", err)
	}
	if gasUsed == 0 || gasCost != gasUsed*GasPrice {
		t.Fatalf("unexpected gas accounting: used=%d cost=%d", gasUsed, gasCost)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	balA, _ := GetMCMBalance(ctx, a, false)
	balB, _ := GetMCMBalance(ctx, b, false)
	if balB != 500_000 {
		t.Fatalf("balance(B) = %d, want 500000", balB)
	}
	if balA != 500_000-gasCost {
		t.Fatalf("balance(A) = %d, want %d", balA, 500_000-gasCost)
	}
}

func TestMCMCreateTagDuplicateRejected(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	b := addrOf(0x22)
	seedMCMBalance(t, rt, a, 1_000_000)

	maxGas := uint64(100_000)
	if _, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 500_000)); err != nil {
		t.Fatalf("first create_tag: %v", err)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	balABefore, _ := GetMCMBalance(ctx, a, false)

	_, gasCost, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 500_000))
	if err == nil {
		t.Fatalf("expected duplicate create_tag to fail")
	}
	if gasCost != maxGas*GasPrice {
		t.Fatalf("failed call should charge full max_gas*GAS_PRICE, got %d want %d", gasCost, maxGas*GasPrice)
	}

	ctx2 := NoOpContext(rt.appStore, rt.accountStore)
	balAAfter, _ := GetMCMBalance(ctx2, a, false)
	if balABefore-balAAfter != gasCost {
		t.Fatalf("A's balance should drop by exactly gas_cost %d, dropped by %d", gasCost, balABefore-balAAfter)
	}
}

func TestMCMTransferAccumulatesTotal(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	b := addrOf(0x22)
	c := addrOf(0x33)
	seedMCMBalance(t, rt, a, 1_000_000)

	maxGas := uint64(200_000)
	if _, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 600)); err != nil {
		t.Fatalf("seed b: %v", err)
	}
	if _, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(c, 600)); err != nil {
		t.Fatalf("seed c: %v", err)
	}

	entries, err := ArrayToBytes([][]byte{
		transferEntry(100, b, nil),
		transferEntry(200, c, nil),
	})
	if err != nil {
		t.Fatalf("encode transfer: %v", err)
	}

	ctxBefore := NoOpContext(rt.appStore, rt.accountStore)
	balABefore, _ := GetMCMBalance(ctxBefore, a, false)

	if _, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMTransfer, entries); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	balAAfter, _ := GetMCMBalance(ctx, a, false)
	balB, _ := GetMCMBalance(ctx, b, false)
	balC, _ := GetMCMBalance(ctx, c, false)

	if balB != 700 {
		t.Fatalf("balance(B) = %d, want 700", balB)
	}
	if balC != 800 {
		t.Fatalf("balance(C) = %d, want 800", balC)
	}
	if balABefore-balAAfter < 300 {
		t.Fatalf("A's balance should drop by at least the transferred total 300, dropped by %d", balABefore-balAAfter)
	}
}

func transferEntry(amount uint64, dest Address, memo []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(amount >> (8 * i))
	}
	out = append(out, dest.Bytes()...)
	memoLen := make([]byte, 8)
	for i := 0; i < 8; i++ {
		memoLen[7-i] = byte(uint64(len(memo)) >> (8 * i))
	}
	out = append(out, memoLen...)
	out = append(out, memo...)
	return out
}
