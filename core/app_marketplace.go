package core

// app_marketplace.go — the peer-to-peer escrow marketplace application.
// Grounded on the teacher's marketplace.go escrow pattern (list an item,
// hold it until a counterparty satisfies the price, then release both
// sides) with the listing/escrow pair collapsed into a single on-chain
// offer record addressed by a sequential id, per the corrected id-
// assignment and match-removal invariants.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	SelectorMarketplaceCreate uint32 = 1
	SelectorMarketplaceList   uint32 = 2
	SelectorMarketplaceMatch  uint32 = 3
	SelectorMarketplaceCancel uint32 = 4
)

// MarketplaceApp escrows goods from sellers and releases them to the first
// matching buyer against a fixed price, taking no custody of anything not
// already transferred in through Assets.
type MarketplaceApp struct {
	instanceID uint32
	maxStorage uint64
}

func NewMarketplaceApp(instanceID uint32) Application {
	return &MarketplaceApp{instanceID: instanceID, maxStorage: 1 << 16}
}

func (a *MarketplaceApp) Type() ApplicationType { return AppTypeMarketplace }

func (a *MarketplaceApp) MaxStorage() uint64 { return a.maxStorage }

func (a *MarketplaceApp) Execute(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, selector uint32, params []byte) error {
	switch selector {
	case SelectorMarketplaceCreate:
		return a.create(ctx, instanceID, params)
	case SelectorMarketplaceList:
		return a.list(rt, ctx, instanceID, caller, params)
	case SelectorMarketplaceMatch:
		return a.match(rt, ctx, instanceID, caller, params)
	case SelectorMarketplaceCancel:
		return fmt.Errorf("%w: marketplace cancel", ErrNotImplemented)
	default:
		return fmt.Errorf("%w: marketplace selector %d", ErrUnknownSelector, selector)
	}
}

// marketState is the decoded Marketplace application-storage record:
// pack_int(offer_fee) | pack_int(match_fee) | assets_app_id(4) |
// pack_int(next_offer_id).
type marketState struct {
	offerFee    uint64
	matchFee    uint64
	assetsAppID uint32
	nextOfferID uint64
}

func decodeMarketState(buf []byte) (marketState, error) {
	var ms marketState
	offerFee, off, err := UnpackUint64(buf, 0)
	if err != nil {
		return ms, err
	}
	matchFee, off, err := UnpackUint64(buf, off)
	if err != nil {
		return ms, err
	}
	if off+4 > len(buf) {
		return ms, fmt.Errorf("%w: malformed marketplace state", ErrValidation)
	}
	assetsAppID := beUint32(buf[off : off+4])
	off += 4
	nextOfferID, _, err := UnpackUint64(buf, off)
	if err != nil {
		return ms, err
	}
	return marketState{offerFee: offerFee, matchFee: matchFee, assetsAppID: assetsAppID, nextOfferID: nextOfferID}, nil
}

func (ms marketState) encode() []byte {
	out := PackUint64(ms.offerFee)
	out = append(out, PackUint64(ms.matchFee)...)
	out = append(out, beBytes32(ms.assetsAppID)...)
	out = append(out, PackUint64(ms.nextOfferID)...)
	return out
}

// offer is a single marketplace listing: pack_int(id) | data_len(8) |
// array(goods) | data_len(8) | array(price) | counterparty(12). A zero
// counterparty means the offer is open to anyone.
type offer struct {
	id           uint64
	goods, price [][]byte
	counterparty Address
}

func decodeOffer(buf []byte) (offer, int, error) {
	var o offer
	id, off, err := UnpackUint64(buf, 0)
	if err != nil {
		return o, 0, err
	}
	o.id = id
	goodsLen, off, err := readLen8(buf, off)
	if err != nil {
		return o, 0, err
	}
	goods, goodsEnd, err := ParseArrayAt(buf, off)
	if err != nil {
		return o, 0, err
	}
	if goodsEnd != off+int(goodsLen) {
		return o, 0, fmt.Errorf("%w: offer goods length mismatch", ErrValidation)
	}
	o.goods = goods
	off = goodsEnd
	priceLen, off, err := readLen8(buf, off)
	if err != nil {
		return o, 0, err
	}
	price, priceEnd, err := ParseArrayAt(buf, off)
	if err != nil {
		return o, 0, err
	}
	if priceEnd != off+int(priceLen) {
		return o, 0, fmt.Errorf("%w: offer price length mismatch", ErrValidation)
	}
	o.price = price
	off = priceEnd
	if off+AddressLength > len(buf) {
		return o, 0, fmt.Errorf("%w: offer counterparty truncated", ErrValidation)
	}
	o.counterparty = AddressFromBytes(buf[off : off+AddressLength])
	off += AddressLength
	return o, off, nil
}

func (o offer) encode() ([]byte, error) {
	goodsBytes, err := ArrayToBytes(o.goods)
	if err != nil {
		return nil, err
	}
	priceBytes, err := ArrayToBytes(o.price)
	if err != nil {
		return nil, err
	}
	out := PackUint64(o.id)
	out = append(out, writeLen8(uint64(len(goodsBytes)))...)
	out = append(out, goodsBytes...)
	out = append(out, writeLen8(uint64(len(priceBytes)))...)
	out = append(out, priceBytes...)
	out = append(out, o.counterparty.Bytes()...)
	return out, nil
}

// sellerOffers is the Marketplace account sub-record: instance_id(4) |
// array(offers).
func decodeSellerOffers(subRecord []byte) ([]offer, error) {
	if len(subRecord) == 0 {
		return nil, nil
	}
	if len(subRecord) < InstanceIDLength {
		return nil, fmt.Errorf("%w: malformed marketplace sub-record", ErrValidation)
	}
	raw, _, err := ParseArrayAt(subRecord, InstanceIDLength)
	if err != nil {
		return nil, err
	}
	offers := make([]offer, 0, len(raw))
	for _, r := range raw {
		o, _, err := decodeOffer(r)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, nil
}

func encodeSellerOffers(instanceID uint32, offers []offer) ([]byte, error) {
	encoded := make([][]byte, 0, len(offers))
	for _, o := range offers {
		e, err := o.encode()
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, e)
	}
	arr, err := ArrayToBytes(encoded)
	if err != nil {
		return nil, err
	}
	return append(InstanceIDBytes(instanceID), arr...), nil
}

// create one-shot-initializes the marketplace's fee schedule and paired
// Assets app. pack_int(offer_fee) | pack_int(match_fee) | assets_app_id(4).
func (a *MarketplaceApp) create(ctx *ExecutionContext, instanceID uint32, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	appKey := InstanceIDBytes(instanceID)
	existing, err := ctx.ReadAppStorage(appKey, true)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: marketplace already initialized", ErrValidation)
	}

	offerFee, off, err := UnpackUint64(params, 0)
	if err != nil {
		return err
	}
	matchFee, off, err := UnpackUint64(params, off)
	if err != nil {
		return err
	}
	if off+4 > len(params) {
		return fmt.Errorf("%w: malformed marketplace create params", ErrValidation)
	}
	assetsAppID := beUint32(params[off : off+4])

	ms := marketState{offerFee: offerFee, matchFee: matchFee, assetsAppID: assetsAppID, nextOfferID: 0}
	if err := ctx.WriteAppStorage(appKey, ms.encode(), true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "assets_app_id": assetsAppID}).Info("marketplace: create")
	return nil
}

// list escrows every good from the caller into the marketplace's instance
// address via Assets, then appends a freshly-numbered offer to the caller's
// sub-record. data_len(8) | array(goods) | data_len(8) | array(price) |
// counterparty(12).
func (a *MarketplaceApp) list(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	appKey := InstanceIDBytes(instanceID)
	raw, err := ctx.ReadAppStorage(appKey, true)
	if err != nil {
		return err
	}
	ms, err := decodeMarketState(raw)
	if err != nil {
		return err
	}

	goodsLen, off, err := readLen8(params, 0)
	if err != nil {
		return err
	}
	goods, goodsEnd, err := ParseArrayAt(params, off)
	if err != nil {
		return err
	}
	if goodsEnd != off+int(goodsLen) {
		return fmt.Errorf("%w: list goods length mismatch", ErrValidation)
	}
	off = goodsEnd
	priceLen, off, err := readLen8(params, off)
	if err != nil {
		return err
	}
	price, priceEnd, err := ParseArrayAt(params, off)
	if err != nil {
		return err
	}
	if priceEnd != off+int(priceLen) {
		return fmt.Errorf("%w: list price length mismatch", ErrValidation)
	}
	off = priceEnd
	if off+AddressLength > len(params) {
		return fmt.Errorf("%w: list counterparty truncated", ErrValidation)
	}
	counterparty := AddressFromBytes(params[off : off+AddressLength])

	marketAddr := InstanceAddress(instanceID)
	inst, ok := rt.Instance(ms.assetsAppID)
	if !ok {
		return fmt.Errorf("%w: assets app %d", ErrUnknownApplication, ms.assetsAppID)
	}
	escrowEntries := make([][]byte, 0, len(goods))
	for _, g := range goods {
		if len(g) < 12 {
			return fmt.Errorf("%w: malformed good entry", ErrValidation)
		}
		var symbol [4]byte
		copy(symbol[:], g[0:4])
		amount, _, err := UnpackUint64(g, 4)
		if err != nil {
			return err
		}
		escrowEntries = append(escrowEntries, TransferAssetEntry(symbol, amount, marketAddr))
	}
	escrowParams, err := ArrayToBytes(escrowEntries)
	if err != nil {
		return err
	}
	if err := inst.App.Execute(rt, ctx, ms.assetsAppID, caller, SelectorAssetsTransfer, escrowParams); err != nil {
		return err
	}

	o := offer{id: ms.nextOfferID, goods: goods, price: price, counterparty: counterparty}
	ms.nextOfferID++ // required fix: previously every offer kept id 0

	all, subRecord, idx, err := GetAccountSubRecord(ctx, caller, instanceID, true)
	if err != nil {
		return err
	}
	offers, err := decodeSellerOffers(subRecord)
	if err != nil {
		return err
	}
	offers = append(offers, o)
	encoded, err := encodeSellerOffers(instanceID, offers)
	if err != nil {
		return err
	}
	all = SetToArray(all, idx, encoded)
	if err := WriteAccountSubRecords(ctx, caller, all, true); err != nil {
		return err
	}
	if err := ctx.WriteAppStorage(appKey, ms.encode(), true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "seller": caller.String(), "offer_id": o.id}).Info("marketplace: list")
	return nil
}

// match satisfies a seller's offer: seller(12) | pack_int(offer_id). The
// caller pays price to the seller and receives the escrowed goods; the
// matched offer is removed from the seller's sub-record (the required fix —
// it previously stayed listed forever and could be matched repeatedly).
func (a *MarketplaceApp) match(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	if len(params) < AddressLength {
		return fmt.Errorf("%w: malformed match params", ErrValidation)
	}
	seller := AddressFromBytes(params[0:AddressLength])
	offerID, _, err := UnpackUint64(params, AddressLength)
	if err != nil {
		return err
	}

	appKey := InstanceIDBytes(instanceID)
	raw, err := ctx.ReadAppStorage(appKey, true)
	if err != nil {
		return err
	}
	ms, err := decodeMarketState(raw)
	if err != nil {
		return err
	}

	all, subRecord, idx, err := GetAccountSubRecord(ctx, seller, instanceID, true)
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: seller has no offers", ErrValidation)
	}
	offers, err := decodeSellerOffers(subRecord)
	if err != nil {
		return err
	}
	matchIdx := -1
	for i, o := range offers {
		if o.id == offerID {
			matchIdx = i
			break
		}
	}
	if matchIdx < 0 {
		return fmt.Errorf("%w: offer %d not found", ErrValidation, offerID)
	}
	o := offers[matchIdx]
	if !o.counterparty.IsZero() && o.counterparty != caller {
		return fmt.Errorf("%w: offer restricted to a different counterparty", ErrValidation)
	}

	inst, ok := rt.Instance(ms.assetsAppID)
	if !ok {
		return fmt.Errorf("%w: assets app %d", ErrUnknownApplication, ms.assetsAppID)
	}
	marketAddr := InstanceAddress(instanceID)

	priceEntries := make([][]byte, 0, len(o.price))
	for _, p := range o.price {
		if len(p) < 12 {
			return fmt.Errorf("%w: malformed price entry", ErrValidation)
		}
		var symbol [4]byte
		copy(symbol[:], p[0:4])
		amount, _, err := UnpackUint64(p, 4)
		if err != nil {
			return err
		}
		priceEntries = append(priceEntries, TransferAssetEntry(symbol, amount, seller))
	}
	if len(priceEntries) > 0 {
		priceParams, err := ArrayToBytes(priceEntries)
		if err != nil {
			return err
		}
		if err := inst.App.Execute(rt, ctx, ms.assetsAppID, caller, SelectorAssetsTransfer, priceParams); err != nil {
			return err
		}
	}

	goodsEntries := make([][]byte, 0, len(o.goods))
	for _, g := range o.goods {
		if len(g) < 12 {
			return fmt.Errorf("%w: malformed good entry", ErrValidation)
		}
		var symbol [4]byte
		copy(symbol[:], g[0:4])
		amount, _, err := UnpackUint64(g, 4)
		if err != nil {
			return err
		}
		goodsEntries = append(goodsEntries, TransferAssetEntry(symbol, amount, caller))
	}
	if len(goodsEntries) > 0 {
		goodsParams, err := ArrayToBytes(goodsEntries)
		if err != nil {
			return err
		}
		if err := inst.App.Execute(rt, ctx, ms.assetsAppID, marketAddr, SelectorAssetsTransfer, goodsParams); err != nil {
			return err
		}
	}

	offers = append(offers[:matchIdx], offers[matchIdx+1:]...)
	encoded, err := encodeSellerOffers(instanceID, offers)
	if err != nil {
		return err
	}
	all = SetToArray(all, idx, encoded)
	if err := WriteAccountSubRecords(ctx, seller, all, true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "seller": seller.String(), "buyer": caller.String(), "offer_id": offerID}).Info("marketplace: match")
	return nil
}
