package core

// app_amm.go — the constant-product automated market maker application.
// Grounded on the teacher's liquidity_pools.go (pool state shape, fee
// accounting, the rollback-on-failure discipline) and amm.go's pricing
// helpers, folded down from a multi-hop Dijkstra router into the single
// fixed-pair pool the component design calls for. Re-entrant calls into the
// Assets app reuse the caller's ExecutionContext, never a fresh one.

import (
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
)

const (
	SelectorAMMCreate           uint32 = 1
	SelectorAMMSetFee           uint32 = 2
	SelectorAMMAddLiquidity     uint32 = 3
	SelectorAMMWithdrawLiquidity uint32 = 4
	SelectorAMMSwap             uint32 = 5
)

// DecimalScale is the fixed-point scale fee_bps is expressed against.
const DecimalScale uint64 = 10000

// MaxFeeBps bounds a pool's fee_bps field.
const MaxFeeBps uint64 = 10000

// AMMApp is a single constant-product pool between two Assets-app tokens.
type AMMApp struct {
	instanceID uint32
	maxStorage uint64
}

// NewAMMApp constructs the AMM application template.
func NewAMMApp(instanceID uint32) Application {
	return &AMMApp{instanceID: instanceID, maxStorage: 1024}
}

func (a *AMMApp) Type() ApplicationType { return AppTypeAMM }

func (a *AMMApp) MaxStorage() uint64 { return a.maxStorage }

func (a *AMMApp) Execute(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, selector uint32, params []byte) error {
	switch selector {
	case SelectorAMMCreate:
		return a.create(rt, ctx, instanceID, caller, params)
	case SelectorAMMSetFee:
		return fmt.Errorf("%w: amm set_fee", ErrNotImplemented)
	case SelectorAMMAddLiquidity:
		return a.addLiquidity(rt, ctx, instanceID, caller, params)
	case SelectorAMMWithdrawLiquidity:
		return a.withdrawLiquidity(rt, ctx, instanceID, caller)
	case SelectorAMMSwap:
		return a.swap(rt, ctx, instanceID, caller, params)
	default:
		return fmt.Errorf("%w: amm selector %d", ErrUnknownSelector, selector)
	}
}

// poolState is the decoded AMM application-storage record.
type poolState struct {
	tokenA, tokenB     [4]byte
	typeA, typeB       byte
	assetsAppID        uint32
	k                  *big.Int
	feeBps             uint64
	totalLP            *big.Int
	sumBnum            *big.Int
	reserveA, reserveB *big.Int
}

func decodePoolState(buf []byte) (poolState, error) {
	var ps poolState
	if len(buf) < 4+1+4+1+4 {
		return ps, fmt.Errorf("%w: malformed pool state", ErrValidation)
	}
	off := 0
	copy(ps.tokenA[:], buf[off:off+4])
	off += 4
	ps.typeA = buf[off]
	off++
	copy(ps.tokenB[:], buf[off:off+4])
	off += 4
	ps.typeB = buf[off]
	off++
	ps.assetsAppID = beUint32(buf[off : off+4])
	off += 4

	var err error
	ps.k, off, err = UnpackInt(buf, off)
	if err != nil {
		return ps, err
	}
	if off+2 > len(buf) {
		return ps, fmt.Errorf("%w: pool state missing fee_bps", ErrValidation)
	}
	ps.feeBps = uint64(buf[off])<<8 | uint64(buf[off+1])
	off += 2
	ps.totalLP, off, err = UnpackInt(buf, off)
	if err != nil {
		return ps, err
	}
	ps.sumBnum, off, err = UnpackInt(buf, off)
	if err != nil {
		return ps, err
	}
	ps.reserveA, off, err = UnpackInt(buf, off)
	if err != nil {
		return ps, err
	}
	ps.reserveB, _, err = UnpackInt(buf, off)
	if err != nil {
		return ps, err
	}
	return ps, nil
}

func (ps poolState) encode() []byte {
	out := append([]byte{}, ps.tokenA[:]...)
	out = append(out, ps.typeA)
	out = append(out, ps.tokenB[:]...)
	out = append(out, ps.typeB)
	out = append(out, beBytes32(ps.assetsAppID)...)
	out = append(out, PackInt(ps.k)...)
	out = append(out, byte(ps.feeBps>>8), byte(ps.feeBps))
	out = append(out, PackInt(ps.totalLP)...)
	out = append(out, PackInt(ps.sumBnum)...)
	out = append(out, PackInt(ps.reserveA)...)
	out = append(out, PackInt(ps.reserveB)...)
	return out
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beBytes32(n uint32) []byte {
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

// lpPosition is the decoded AMM account sub-record.
type lpPosition struct {
	bnum uint64
	lp   *big.Int
}

func decodeLPPosition(subRecord []byte) (lpPosition, error) {
	if len(subRecord) < InstanceIDLength+8 {
		return lpPosition{}, fmt.Errorf("%w: malformed lp position", ErrValidation)
	}
	bnum, _, err := readLen8(subRecord, InstanceIDLength)
	if err != nil {
		return lpPosition{}, err
	}
	lp, _, err := UnpackInt(subRecord, InstanceIDLength+8)
	if err != nil {
		return lpPosition{}, err
	}
	return lpPosition{bnum: bnum, lp: lp}, nil
}

func encodeLPPosition(instanceID uint32, bnum uint64, lp *big.Int) []byte {
	out := InstanceIDBytes(instanceID)
	out = append(out, writeLen8(bnum)...)
	out = append(out, PackInt(lp)...)
	return out
}

// assetsApp resolves the Assets instance this pool is paired with.
func (a *AMMApp) assetsApp(rt *Runtime, assetsAppID uint32) (*AppInstance, error) {
	inst, ok := rt.Instance(assetsAppID)
	if !ok {
		return nil, fmt.Errorf("%w: assets app %d", ErrUnknownApplication, assetsAppID)
	}
	return inst, nil
}

// transferAssets re-enters the Assets app's transfer selector through the
// same ExecutionContext — gas keeps accumulating, writes stay buffered.
func (a *AMMApp) transferAssets(rt *Runtime, ctx *ExecutionContext, assetsAppID uint32, from Address, entries ...[]byte) error {
	inst, err := a.assetsApp(rt, assetsAppID)
	if err != nil {
		return err
	}
	params, err := ArrayToBytes(entries)
	if err != nil {
		return err
	}
	return inst.App.Execute(rt, ctx, assetsAppID, from, SelectorAssetsTransfer, params)
}

func (a *AMMApp) poolAssetBalance(ctx *ExecutionContext, assetsAppID uint32, poolAddr Address, symbol [4]byte) (uint64, error) {
	return AssetBalance(ctx, assetsAppID, poolAddr, symbol)
}

// create seeds a new pool: escrows the initial amounts from the caller into
// the pool's instance address via Assets, reads the resulting actual
// balances as the source of truth for K and the reserves, and credits the
// caller with the initial LP position lp = floor(sqrt(K)).
func (a *AMMApp) create(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	if len(params) < 4 {
		return fmt.Errorf("%w: malformed amm create params", ErrValidation)
	}
	off := 0
	var tokenA [4]byte
	copy(tokenA[:], params[off:off+4])
	off += 4
	amtA, off2, err := UnpackUint64(params, off)
	if err != nil {
		return err
	}
	off = off2
	var tokenB [4]byte
	copy(tokenB[:], params[off:off+4])
	off += 4
	amtB, off3, err := UnpackUint64(params, off)
	if err != nil {
		return err
	}
	off = off3
	if off+2+4 > len(params) {
		return fmt.Errorf("%w: malformed amm create params tail", ErrValidation)
	}
	feeBps := uint64(params[off])<<8 | uint64(params[off+1])
	off += 2
	assetsAppID := beUint32(params[off : off+4])

	if feeBps > MaxFeeBps {
		return fmt.Errorf("%w: fee_bps %d exceeds %d", ErrValidation, feeBps, MaxFeeBps)
	}

	poolAddr := InstanceAddress(instanceID)
	if err := a.transferAssets(rt, ctx, assetsAppID, caller,
		TransferAssetEntry(tokenA, amtA, poolAddr),
		TransferAssetEntry(tokenB, amtB, poolAddr),
	); err != nil {
		return err
	}

	actualA, err := a.poolAssetBalance(ctx, assetsAppID, poolAddr, tokenA)
	if err != nil {
		return err
	}
	actualB, err := a.poolAssetBalance(ctx, assetsAppID, poolAddr, tokenB)
	if err != nil {
		return err
	}

	typeA, typeB, err := lookupTokenTypes(ctx, assetsAppID, tokenA, tokenB)
	if err != nil {
		return err
	}

	k := new(big.Int).Mul(big.NewInt(int64(actualA)), big.NewInt(int64(actualB)))
	totalLP := new(big.Int).Sqrt(k)

	ps := poolState{
		tokenA: tokenA, typeA: typeA,
		tokenB: tokenB, typeB: typeB,
		assetsAppID: assetsAppID,
		k:           k,
		feeBps:      feeBps,
		totalLP:     totalLP,
		sumBnum:     big.NewInt(0),
		reserveA:    big.NewInt(int64(actualA)),
		reserveB:    big.NewInt(int64(actualB)),
	}
	if err := ctx.WriteAppStorage(InstanceIDBytes(instanceID), ps.encode(), true); err != nil {
		return err
	}

	if err := creditLPPosition(ctx, instanceID, caller, rt.Bnum(), totalLP); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "k": k.String(), "total_lp": totalLP.String()}).Info("amm: create")
	return nil
}

func lookupTokenTypes(ctx *ExecutionContext, assetsAppID uint32, symbols ...[4]byte) (byte, byte, error) {
	raw, err := ctx.ReadAppStorage(InstanceIDBytes(assetsAppID), true)
	if err != nil {
		return 0, 0, err
	}
	tokens, err := ParseArray(raw)
	if err != nil {
		return 0, 0, err
	}
	types := make([]byte, len(symbols))
	for i, sym := range symbols {
		ti, idx, err := findToken(tokens, sym)
		if err != nil {
			return 0, 0, err
		}
		if idx < 0 {
			return 0, 0, fmt.Errorf("%w: unknown asset symbol in pool", ErrValidation)
		}
		types[i] = ti.typ
	}
	return types[0], types[1], nil
}

func creditLPPosition(ctx *ExecutionContext, instanceID uint32, addr Address, bnum uint64, lp *big.Int) error {
	all, _, idx, err := GetAccountSubRecord(ctx, addr, instanceID, true)
	if err != nil {
		return err
	}
	all = SetToArray(all, idx, encodeLPPosition(instanceID, bnum, lp))
	return WriteAccountSubRecords(ctx, addr, all, true)
}

func removeLPPosition(ctx *ExecutionContext, instanceID uint32, addr Address) error {
	all, err := ReadAccountSubRecords(ctx, addr, true)
	if err != nil {
		return err
	}
	_, idx := GetAppDataFromArray(instanceID, all)
	if idx < 0 {
		return nil
	}
	all = append(all[:idx], all[idx+1:]...)
	return WriteAccountSubRecords(ctx, addr, all, true)
}

// addLiquidity forces a withdraw first when the caller already holds a
// position (resetting its bnum baseline), then deposits amtA plus the
// proportional amtB implied by the current reserve ratio.
func (a *AMMApp) addLiquidity(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	amtA, off, err := UnpackUint64(params, 0)
	if err != nil {
		return err
	}
	maxAmtB, _, err := UnpackUint64(params, off)
	if err != nil {
		return err
	}

	_, _, idx, err := GetAccountSubRecord(ctx, caller, instanceID, true)
	if err != nil {
		return err
	}
	if idx >= 0 {
		if err := a.withdrawLiquidity(rt, ctx, instanceID, caller); err != nil {
			return err
		}
	}

	raw, err := ctx.ReadAppStorage(InstanceIDBytes(instanceID), true)
	if err != nil {
		return err
	}
	ps, err := decodePoolState(raw)
	if err != nil {
		return err
	}

	poolAddr := InstanceAddress(instanceID)
	actualA, err := a.poolAssetBalance(ctx, ps.assetsAppID, poolAddr, ps.tokenA)
	if err != nil {
		return err
	}
	actualB, err := a.poolAssetBalance(ctx, ps.assetsAppID, poolAddr, ps.tokenB)
	if err != nil {
		return err
	}
	if new(big.Int).SetUint64(actualA).Cmp(ps.reserveA) < 0 {
		return fmt.Errorf("%w: pool token A", ErrBadDebt)
	}
	if new(big.Int).SetUint64(actualB).Cmp(ps.reserveB) < 0 {
		return fmt.Errorf("%w: pool token B", ErrBadDebt)
	}

	amtBig := big.NewInt(int64(amtA))
	amtB := new(big.Int).Div(new(big.Int).Mul(amtBig, ps.reserveB), ps.reserveA)
	if amtB.Cmp(big.NewInt(int64(maxAmtB))) > 0 {
		return fmt.Errorf("%w: token B amount %s exceeds max %d", ErrValidation, amtB.String(), maxAmtB)
	}

	if err := a.transferAssets(rt, ctx, ps.assetsAppID, caller,
		TransferAssetEntry(ps.tokenA, amtA, poolAddr),
		TransferAssetEntry(ps.tokenB, amtB.Uint64(), poolAddr),
	); err != nil {
		return err
	}

	newTotalLP := new(big.Int).Div(
		new(big.Int).Mul(ps.totalLP, new(big.Int).Add(ps.reserveA, amtBig)),
		ps.reserveA,
	)
	callerShare := new(big.Int).Sub(newTotalLP, ps.totalLP)

	ps.totalLP = newTotalLP
	ps.sumBnum = new(big.Int).Add(ps.sumBnum, big.NewInt(int64(rt.Bnum())))
	ps.reserveA = new(big.Int).Add(ps.reserveA, amtBig)
	ps.reserveB = new(big.Int).Add(ps.reserveB, amtB)

	if err := ctx.WriteAppStorage(InstanceIDBytes(instanceID), ps.encode(), true); err != nil {
		return err
	}
	if err := creditLPPosition(ctx, instanceID, caller, rt.Bnum(), callerShare); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "caller_lp": callerShare.String()}).Info("amm: add_liquidity")
	return nil
}

// withdrawLiquidity pays the caller their pro-rata principal plus a
// time-and-share-weighted slice of accrued fees, and removes the position.
func (a *AMMApp) withdrawLiquidity(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	raw, err := ctx.ReadAppStorage(InstanceIDBytes(instanceID), true)
	if err != nil {
		return err
	}
	ps, err := decodePoolState(raw)
	if err != nil {
		return err
	}

	_, subRecord, idx, err := GetAccountSubRecord(ctx, caller, instanceID, true)
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: caller has no LP position", ErrValidation)
	}
	pos, err := decodeLPPosition(subRecord)
	if err != nil {
		return err
	}

	poolAddr := InstanceAddress(instanceID)
	actualA, err := a.poolAssetBalance(ctx, ps.assetsAppID, poolAddr, ps.tokenA)
	if err != nil {
		return err
	}
	actualB, err := a.poolAssetBalance(ctx, ps.assetsAppID, poolAddr, ps.tokenB)
	if err != nil {
		return err
	}
	balA := new(big.Int).SetUint64(actualA)
	balB := new(big.Int).SetUint64(actualB)
	if balA.Cmp(ps.reserveA) < 0 {
		return fmt.Errorf("%w: pool token A", ErrBadDebt)
	}
	if balB.Cmp(ps.reserveB) < 0 {
		return fmt.Errorf("%w: pool token B", ErrBadDebt)
	}
	feeA := new(big.Int).Sub(balA, ps.reserveA)
	feeB := new(big.Int).Sub(balB, ps.reserveB)

	if ps.totalLP.Sign() == 0 {
		return fmt.Errorf("%w: pool has no liquidity", ErrValidation)
	}
	principalA := new(big.Int).Div(new(big.Int).Mul(ps.reserveA, pos.lp), ps.totalLP)
	principalB := new(big.Int).Div(new(big.Int).Mul(ps.reserveB, pos.lp), ps.totalLP)

	var payoutA, payoutB *big.Int
	if ps.sumBnum.Sign() == 0 {
		payoutA, payoutB = principalA, principalB
	} else {
		elapsed := big.NewInt(int64(rt.Bnum()) - int64(pos.bnum))
		denom := new(big.Int).Mul(ps.sumBnum, ps.totalLP)
		feeShareA := new(big.Int).Div(new(big.Int).Mul(new(big.Int).Mul(elapsed, pos.lp), feeA), denom)
		feeShareB := new(big.Int).Div(new(big.Int).Mul(new(big.Int).Mul(elapsed, pos.lp), feeB), denom)
		payoutA = new(big.Int).Add(principalA, feeShareA)
		payoutB = new(big.Int).Add(principalB, feeShareB)
	}

	newReserveA := new(big.Int).Sub(ps.reserveA, principalA)
	newReserveB := new(big.Int).Sub(ps.reserveB, principalB)
	newBalA := new(big.Int).Sub(balA, payoutA)
	newBalB := new(big.Int).Sub(balB, payoutB)
	if newBalA.Cmp(newReserveA) < 0 {
		return fmt.Errorf("%w: withdrawal would leave pool token A insolvent", ErrBadDebt)
	}
	if newBalB.Cmp(newReserveB) < 0 {
		return fmt.Errorf("%w: withdrawal would leave pool token B insolvent", ErrBadDebt)
	}

	if err := a.transferAssets(rt, ctx, ps.assetsAppID, poolAddr,
		TransferAssetEntry(ps.tokenA, payoutA.Uint64(), caller),
		TransferAssetEntry(ps.tokenB, payoutB.Uint64(), caller),
	); err != nil {
		return err
	}

	ps.reserveA = newReserveA
	ps.reserveB = newReserveB
	ps.totalLP = new(big.Int).Sub(ps.totalLP, pos.lp)
	ps.sumBnum = new(big.Int).Sub(ps.sumBnum, big.NewInt(int64(pos.bnum)))
	if err := ctx.WriteAppStorage(InstanceIDBytes(instanceID), ps.encode(), true); err != nil {
		return err
	}
	if err := removeLPPosition(ctx, instanceID, caller); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "payout_a": payoutA.String(), "payout_b": payoutB.String()}).Info("amm: withdraw_liquidity")
	return nil
}

// swap executes a constant-product trade: a_to_b(1) | pack_int(amount_in) |
// pack_int(min_out).
func (a *AMMApp) swap(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	if len(params) < 1 {
		return fmt.Errorf("%w: malformed swap params", ErrValidation)
	}
	aToB := params[0] > 0
	amountIn, off, err := UnpackUint64(params, 1)
	if err != nil {
		return err
	}
	minOut, _, err := UnpackUint64(params, off)
	if err != nil {
		return err
	}

	raw, err := ctx.ReadAppStorage(InstanceIDBytes(instanceID), true)
	if err != nil {
		return err
	}
	ps, err := decodePoolState(raw)
	if err != nil {
		return err
	}

	poolAddr := InstanceAddress(instanceID)
	actualA, err := a.poolAssetBalance(ctx, ps.assetsAppID, poolAddr, ps.tokenA)
	if err != nil {
		return err
	}
	actualB, err := a.poolAssetBalance(ctx, ps.assetsAppID, poolAddr, ps.tokenB)
	if err != nil {
		return err
	}
	if new(big.Int).SetUint64(actualA).Cmp(ps.reserveA) < 0 {
		return fmt.Errorf("%w: pool token A", ErrBadDebt)
	}
	if new(big.Int).SetUint64(actualB).Cmp(ps.reserveB) < 0 {
		return fmt.Errorf("%w: pool token B", ErrBadDebt)
	}

	tokenIn, tokenOut := ps.tokenB, ps.tokenA
	reserveIn, reserveOut := ps.reserveB, ps.reserveA
	if aToB {
		tokenIn, tokenOut = ps.tokenA, ps.tokenB
		reserveIn, reserveOut = ps.reserveA, ps.reserveB
	}

	amountInBig := big.NewInt(int64(amountIn))
	feeAmount := new(big.Int).Div(new(big.Int).Mul(amountInBig, big.NewInt(int64(ps.feeBps))), big.NewInt(int64(DecimalScale)))
	netIn := new(big.Int).Sub(amountInBig, feeAmount)
	denom := new(big.Int).Add(reserveIn, netIn)
	if denom.Sign() == 0 {
		return fmt.Errorf("%w: zero liquidity denominator", ErrValidation)
	}
	amountOut := new(big.Int).Sub(reserveOut, new(big.Int).Div(ps.k, denom))
	if amountOut.Cmp(big.NewInt(int64(minOut))) < 0 {
		return fmt.Errorf("%w: amount_out %s below min_out %d", ErrValidation, amountOut.String(), minOut)
	}
	if amountOut.Sign() < 0 {
		return fmt.Errorf("%w: negative amount_out", ErrValidation)
	}

	if err := a.transferAssets(rt, ctx, ps.assetsAppID, caller, TransferAssetEntry(tokenIn, amountIn, poolAddr)); err != nil {
		return err
	}
	if err := a.transferAssets(rt, ctx, ps.assetsAppID, poolAddr, TransferAssetEntry(tokenOut, amountOut.Uint64(), caller)); err != nil {
		return err
	}
	// Reserves and K are intentionally left untouched here, per the
	// component design: they are inferred from Assets balances on the next
	// add/withdraw. This carries the documented rounding drift forward.
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "amount_in": amountIn, "amount_out": amountOut.String()}).Info("amm: swap")
	return nil
}
