package core

import (
	"math/big"
	"testing"
)

func newTestRuntimeWithAMM(t *testing.T) (*Runtime, uint32, uint32) {
	t.Helper()
	rt, assetsID := newTestRuntimeWithAssets(t)
	if err := rt.AddAppTemplate(AppTypeAMM, NewAMMApp); err != nil {
		t.Fatalf("AddAppTemplate(AMM): %v", err)
	}
	ammID, err := rt.CreateInstance(AppTypeAMM)
	if err != nil {
		t.Fatalf("CreateInstance(AMM): %v", err)
	}
	return rt, assetsID, ammID
}

func encodeAMMCreateParams(tokenA [4]byte, amtA uint64, tokenB [4]byte, amtB uint64, feeBps uint64, assetsAppID uint32) []byte {
	out := append([]byte{}, tokenA[:]...)
	out = append(out, PackUint64(amtA)...)
	out = append(out, tokenB[:]...)
	out = append(out, PackUint64(amtB)...)
	out = append(out, byte(feeBps>>8), byte(feeBps))
	out = append(out, beBytes32(assetsAppID)...)
	return out
}

func encodeSwapParams(aToB bool, amountIn, minOut uint64) []byte {
	out := []byte{0}
	if aToB {
		out[0] = 1
	}
	out = append(out, PackUint64(amountIn)...)
	out = append(out, PackUint64(minOut)...)
	return out
}

func mintToSelf(t *testing.T, rt *Runtime, assetsID uint32, admin Address, symbol [4]byte, amount uint64, to Address) {
	t.Helper()
	maxGas := uint64(1_000_000)
	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsMint, encodeMintParams(symbol, mintEntry(amount, to))); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

// TestAMMSwap follows the documented swap scenario: a 100000 LAMA / 10000
// FIAT pool with a 30bps fee, swapping 1000 FIAT for LAMA.
func TestAMMSwap(t *testing.T) {
	rt, assetsID, ammID := newTestRuntimeWithAMM(t)
	admin := addrOf(0x01)
	trader := addrOf(0x02)
	seedMCMBalance(t, rt, admin, 10_000_000)
	seedMCMBalance(t, rt, trader, 10_000_000)

	lama := symbolOf("LAMA")
	fiat := symbolOf("FIAT")
	maxGas := uint64(1_000_000)

	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(lama, admin, 0)); err != nil {
		t.Fatalf("create LAMA: %v", err)
	}
	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(fiat, admin, 0)); err != nil {
		t.Fatalf("create FIAT: %v", err)
	}
	mintToSelf(t, rt, assetsID, admin, lama, 100_000, admin)
	mintToSelf(t, rt, assetsID, admin, fiat, 10_000, admin)
	mintToSelf(t, rt, assetsID, admin, fiat, 1_000, trader)

	if _, _, err := rt.Call(false, admin, &maxGas, ammID, SelectorAMMCreate,
		encodeAMMCreateParams(lama, 100_000, fiat, 10_000, 30, assetsID)); err != nil {
		t.Fatalf("amm create: %v", err)
	}

	if _, _, err := rt.Call(false, trader, &maxGas, ammID, SelectorAMMSwap, encodeSwapParams(false, 1000, 9000)); err != nil {
		t.Fatalf("swap: %v", err)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	outLAMA, err := AssetBalance(ctx, assetsID, trader, lama)
	if err != nil {
		t.Fatalf("assetBalance: %v", err)
	}
	if outLAMA < 9000 {
		t.Fatalf("trader received %d LAMA, want >= 9000", outLAMA)
	}

	k := big.NewInt(100_000 * 10_000)
	netIn := big.NewInt(1000 - 1000*30/10000)
	reserveIn := big.NewInt(10_000)
	denom := new(big.Int).Add(reserveIn, netIn)
	want := new(big.Int).Sub(big.NewInt(100_000), new(big.Int).Div(k, denom))
	if outLAMA != want.Uint64() {
		t.Fatalf("amount_out = %d, want %s", outLAMA, want.String())
	}
}

// TestAMMAddAndWithdrawLiquidity exercises the full create -> add_liquidity
// -> withdraw_liquidity cycle and checks the pool never pays out more than
// it holds (no bad debt).
func TestAMMAddAndWithdrawLiquidity(t *testing.T) {
	rt, assetsID, ammID := newTestRuntimeWithAMM(t)
	admin := addrOf(0x01)
	lp2 := addrOf(0x03)
	seedMCMBalance(t, rt, admin, 10_000_000)
	seedMCMBalance(t, rt, lp2, 10_000_000)

	lama := symbolOf("LAMA")
	fiat := symbolOf("FIAT")
	maxGas := uint64(1_000_000)

	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(lama, admin, 0)); err != nil {
		t.Fatalf("create LAMA: %v", err)
	}
	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(fiat, admin, 0)); err != nil {
		t.Fatalf("create FIAT: %v", err)
	}
	mintToSelf(t, rt, assetsID, admin, lama, 100_000, admin)
	mintToSelf(t, rt, assetsID, admin, fiat, 10_000, admin)
	mintToSelf(t, rt, assetsID, admin, lama, 50_000, lp2)
	mintToSelf(t, rt, assetsID, admin, fiat, 5_000, lp2)

	if _, _, err := rt.Call(false, admin, &maxGas, ammID, SelectorAMMCreate,
		encodeAMMCreateParams(lama, 100_000, fiat, 10_000, 30, assetsID)); err != nil {
		t.Fatalf("amm create: %v", err)
	}

	addParams := append(PackUint64(50_000), PackUint64(5_001)...)
	if _, _, err := rt.Call(false, lp2, &maxGas, ammID, SelectorAMMAddLiquidity, addParams); err != nil {
		t.Fatalf("add_liquidity: %v", err)
	}

	if _, _, err := rt.Call(false, lp2, &maxGas, ammID, SelectorAMMWithdrawLiquidity, nil); err != nil {
		t.Fatalf("withdraw_liquidity: %v", err)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	poolAddr := InstanceAddress(ammID)
	balA, err := AssetBalance(ctx, assetsID, poolAddr, lama)
	if err != nil {
		t.Fatalf("pool balance A: %v", err)
	}
	balB, err := AssetBalance(ctx, assetsID, poolAddr, fiat)
	if err != nil {
		t.Fatalf("pool balance B: %v", err)
	}

	raw := rt.AppStorage(ammID)
	ps, err := decodePoolState(raw)
	if err != nil {
		t.Fatalf("decodePoolState: %v", err)
	}
	if new(big.Int).SetUint64(balA).Cmp(ps.reserveA) < 0 {
		t.Fatalf("pool token A balance %d below reserve %s (bad debt)", balA, ps.reserveA.String())
	}
	if new(big.Int).SetUint64(balB).Cmp(ps.reserveB) < 0 {
		t.Fatalf("pool token B balance %d below reserve %s (bad debt)", balB, ps.reserveB.String())
	}
}
