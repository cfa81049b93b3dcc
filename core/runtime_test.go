package core

import "testing"

// TestFailedCommittedCallDoesNotPersist exercises whole-call atomicity: a
// call that fails must leave both stores exactly as they were, other than
// the punitive gas debit.
func TestFailedCommittedCallDoesNotPersist(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	b := addrOf(0x22)
	seedMCMBalance(t, rt, a, 1_000_000)
	seedMCMBalance(t, rt, b, 1) // account already exists, so create_tag must fail

	before := rt.AccountStorage(b)

	maxGas := uint64(100_000)
	if _, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 500_000)); err == nil {
		t.Fatalf("expected create_tag on an existing account to fail")
	}

	after := rt.AccountStorage(b)
	if string(before) != string(after) {
		t.Fatalf("failed call mutated account storage for the target account: before=%x after=%x", before, after)
	}
}

// TestDryRunDoesNotPersist verifies a dry-run call's buffered writes are
// discarded, unlike a committed call with the same params.
func TestDryRunDoesNotPersist(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	b := addrOf(0x22)
	seedMCMBalance(t, rt, a, 1_000_000)

	before := rt.AccountStorage(b)
	if _, _, err := rt.Call(true, a, nil, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 500_000)); err != nil {
		t.Fatalf("dry run create_tag: %v", err)
	}
	after := rt.AccountStorage(b)
	if string(before) != string(after) {
		t.Fatalf("dry-run call persisted a write: before=%x after=%x", before, after)
	}
}

// TestDryRunAndCommittedGasAgree checks that dry-run and committed calls with
// identical params consume identical gas — the dry-run/commit duality the
// runtime is built around.
func TestDryRunAndCommittedGasAgree(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	b := addrOf(0x22)
	c := addrOf(0x33)
	seedMCMBalance(t, rt, a, 1_000_000)

	dryGasUsed, _, err := rt.Call(true, a, nil, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(b, 500_000))
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	maxGas := uint64(1_000_000)
	committedGasUsed, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(c, 500_000))
	if err != nil {
		t.Fatalf("committed call: %v", err)
	}

	if dryGasUsed != committedGasUsed {
		t.Fatalf("dry-run gas %d != committed gas %d for identical params", dryGasUsed, committedGasUsed)
	}
}

// TestGasMonotonicallyIncreasesWithWorkload checks a transfer touching more
// recipients consumes strictly more gas than one touching fewer.
func TestGasMonotonicallyIncreasesWithWorkload(t *testing.T) {
	rt := newTestRuntime(t)
	a := addrOf(0x11)
	seedMCMBalance(t, rt, a, 10_000_000)

	recipients := []Address{addrOf(0x22), addrOf(0x33), addrOf(0x44)}
	maxGas := uint64(1_000_000)
	for _, r := range recipients {
		if _, _, err := rt.Call(false, a, &maxGas, MCMInstanceID, SelectorMCMCreateTag, encodeCreateTagParams(r, 1000)); err != nil {
			t.Fatalf("seed %x: %v", r, err)
		}
	}

	oneEntry, err := ArrayToBytes([][]byte{transferEntry(1, recipients[0], nil)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	threeEntries, err := ArrayToBytes([][]byte{
		transferEntry(1, recipients[0], nil),
		transferEntry(1, recipients[1], nil),
		transferEntry(1, recipients[2], nil),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	gasOne, _, err := rt.Call(true, a, nil, MCMInstanceID, SelectorMCMTransfer, oneEntry)
	if err != nil {
		t.Fatalf("transfer one: %v", err)
	}
	gasThree, _, err := rt.Call(true, a, nil, MCMInstanceID, SelectorMCMTransfer, threeEntries)
	if err != nil {
		t.Fatalf("transfer three: %v", err)
	}
	if gasThree <= gasOne {
		t.Fatalf("gas for 3 recipients (%d) should exceed gas for 1 recipient (%d)", gasThree, gasOne)
	}
}
