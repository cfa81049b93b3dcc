package core

import "testing"

func newTestRuntimeWithMarketplace(t *testing.T) (*Runtime, uint32, uint32) {
	t.Helper()
	rt, assetsID := newTestRuntimeWithAssets(t)
	if err := rt.AddAppTemplate(AppTypeMarketplace, NewMarketplaceApp); err != nil {
		t.Fatalf("AddAppTemplate(Marketplace): %v", err)
	}
	marketID, err := rt.CreateInstance(AppTypeMarketplace)
	if err != nil {
		t.Fatalf("CreateInstance(Marketplace): %v", err)
	}
	return rt, assetsID, marketID
}

func encodeMarketCreateParams(offerFee, matchFee uint64, assetsAppID uint32) []byte {
	out := PackUint64(offerFee)
	out = append(out, PackUint64(matchFee)...)
	out = append(out, beBytes32(assetsAppID)...)
	return out
}

func goodOrPriceEntry(symbol [4]byte, amount uint64) []byte {
	out := append([]byte{}, symbol[:]...)
	out = append(out, PackUint64(amount)...)
	return out
}

func encodeListParams(goods, price [][]byte, counterparty Address) []byte {
	goodsBytes, _ := ArrayToBytes(goods)
	priceBytes, _ := ArrayToBytes(price)
	out := writeLen8(uint64(len(goodsBytes)))
	out = append(out, goodsBytes...)
	out = append(out, writeLen8(uint64(len(priceBytes)))...)
	out = append(out, priceBytes...)
	out = append(out, counterparty.Bytes()...)
	return out
}

func encodeMatchParams(seller Address, offerID uint64) []byte {
	return append(seller.Bytes(), PackUint64(offerID)...)
}

// TestMarketplaceListAndMatch follows the documented scenario: B lists 1
// LAMA for 1 FIAT open to anyone, A matches offer 0, A gains the LAMA and B
// gains the FIAT.
func TestMarketplaceListAndMatch(t *testing.T) {
	rt, assetsID, marketID := newTestRuntimeWithMarketplace(t)
	admin := addrOf(0x01)
	a := addrOf(0x0a)
	b := addrOf(0x0b)
	seedMCMBalance(t, rt, admin, 10_000_000)
	seedMCMBalance(t, rt, a, 10_000_000)
	seedMCMBalance(t, rt, b, 10_000_000)

	lama := symbolOf("LAMA")
	fiat := symbolOf("FIAT")
	maxGas := uint64(1_000_000)

	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(lama, admin, 0)); err != nil {
		t.Fatalf("create LAMA: %v", err)
	}
	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(fiat, admin, 0)); err != nil {
		t.Fatalf("create FIAT: %v", err)
	}
	mintToSelf(t, rt, assetsID, admin, lama, 1, b)
	mintToSelf(t, rt, assetsID, admin, fiat, 1, a)

	if _, _, err := rt.Call(false, admin, &maxGas, marketID, SelectorMarketplaceCreate, encodeMarketCreateParams(0, 0, assetsID)); err != nil {
		t.Fatalf("marketplace create: %v", err)
	}

	goods := [][]byte{goodOrPriceEntry(lama, 1)}
	price := [][]byte{goodOrPriceEntry(fiat, 1)}
	if _, _, err := rt.Call(false, b, &maxGas, marketID, SelectorMarketplaceList, encodeListParams(goods, price, AddressZero)); err != nil {
		t.Fatalf("list: %v", err)
	}

	if _, _, err := rt.Call(false, a, &maxGas, marketID, SelectorMarketplaceMatch, encodeMatchParams(b, 0)); err != nil {
		t.Fatalf("match: %v", err)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	aLama, err := AssetBalance(ctx, assetsID, a, lama)
	if err != nil {
		t.Fatalf("AssetBalance(A, LAMA): %v", err)
	}
	bFiat, err := AssetBalance(ctx, assetsID, b, fiat)
	if err != nil {
		t.Fatalf("AssetBalance(B, FIAT): %v", err)
	}
	if aLama != 1 {
		t.Fatalf("A's LAMA = %d, want 1", aLama)
	}
	if bFiat != 1 {
		t.Fatalf("B's FIAT = %d, want 1", bFiat)
	}

	_, subRecord, idx, err := GetAccountSubRecord(ctx, b, marketID, false)
	if err != nil {
		t.Fatalf("GetAccountSubRecord: %v", err)
	}
	if idx >= 0 {
		offers, err := decodeSellerOffers(subRecord)
		if err != nil {
			t.Fatalf("decodeSellerOffers: %v", err)
		}
		if len(offers) != 0 {
			t.Fatalf("matched offer should be removed, got %d remaining", len(offers))
		}
	}
}

// TestMarketplaceSequentialOfferIDs verifies offer ids increase monotonically
// instead of every listing staying at id 0.
func TestMarketplaceSequentialOfferIDs(t *testing.T) {
	rt, assetsID, marketID := newTestRuntimeWithMarketplace(t)
	admin := addrOf(0x01)
	seller := addrOf(0x0c)
	seedMCMBalance(t, rt, admin, 10_000_000)
	seedMCMBalance(t, rt, seller, 10_000_000)

	lama := symbolOf("LAMA")
	maxGas := uint64(1_000_000)
	if _, _, err := rt.Call(false, admin, &maxGas, assetsID, SelectorAssetsCreate, encodeCreateParams(lama, admin, 0)); err != nil {
		t.Fatalf("create LAMA: %v", err)
	}
	mintToSelf(t, rt, assetsID, admin, lama, 10, seller)
	if _, _, err := rt.Call(false, admin, &maxGas, marketID, SelectorMarketplaceCreate, encodeMarketCreateParams(0, 0, assetsID)); err != nil {
		t.Fatalf("marketplace create: %v", err)
	}

	for i := 0; i < 3; i++ {
		goods := [][]byte{goodOrPriceEntry(lama, 1)}
		price := [][]byte{goodOrPriceEntry(lama, 1)}
		if _, _, err := rt.Call(false, seller, &maxGas, marketID, SelectorMarketplaceList, encodeListParams(goods, price, AddressZero)); err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	_, subRecord, idx, err := GetAccountSubRecord(ctx, seller, marketID, false)
	if err != nil || idx < 0 {
		t.Fatalf("GetAccountSubRecord: %v idx=%d", err, idx)
	}
	offers, err := decodeSellerOffers(subRecord)
	if err != nil {
		t.Fatalf("decodeSellerOffers: %v", err)
	}
	if len(offers) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(offers))
	}
	for i, o := range offers {
		if o.id != uint64(i) {
			t.Fatalf("offer[%d].id = %d, want %d (ids must increase monotonically)", i, o.id, i)
		}
	}
}
