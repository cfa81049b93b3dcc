package core

// app_assets.go — the fungible-asset registry application. Grounded on the
// teacher's tokens.go TokenRegistry (create/mint/transfer trio, admin-gated
// mint, per-account sub-ledger) trimmed from 50 SYN standards down to the
// single fungible token kind the component design calls for, and corrected
// per the required total_supply invariant fix.

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	SelectorAssetsCreate   uint32 = 1
	SelectorAssetsMint     uint32 = 2
	SelectorAssetsTransfer uint32 = 3
)

// TypeFungible is the only token kind create currently emits. The type byte
// is preserved verbatim wherever it appears so a future token kind slots in
// without touching the sub-ledger format.
const TypeFungible byte = 0

// MaxDecimals bounds a fungible token's decimals field.
const MaxDecimals uint64 = 18

// ModeNotMintable, present in a token's modes array, permanently forbids
// further minting regardless of caller.
var ModeNotMintable = []byte{0x01}

// AssetsApp is the fungible-token registry. Its application storage is a
// plain array of token-info records (not sorted — only account sub-record
// arrays carry the sort-by-instance-id invariant).
type AssetsApp struct {
	instanceID uint32
	maxStorage uint64
}

// NewAssetsApp constructs the Assets application template with a generous
// default storage ceiling; production deployments size this per the
// expected token catalogue.
func NewAssetsApp(instanceID uint32) Application {
	return &AssetsApp{instanceID: instanceID, maxStorage: 1 << 20}
}

func (a *AssetsApp) Type() ApplicationType { return AppTypeAssets }

func (a *AssetsApp) MaxStorage() uint64 { return a.maxStorage }

func (a *AssetsApp) Execute(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, selector uint32, params []byte) error {
	switch selector {
	case SelectorAssetsCreate:
		return a.create(ctx, instanceID, caller, params)
	case SelectorAssetsMint:
		return a.mint(ctx, instanceID, caller, params)
	case SelectorAssetsTransfer:
		return a.transfer(ctx, instanceID, caller, params)
	default:
		return fmt.Errorf("%w: assets selector %d", ErrNotImplemented, selector)
	}
}

// tokenInfo is the decoded form of a token-info record:
// symbol(4) | type(1) | admin(12) | modes:array | data_len(8) | data.
type tokenInfo struct {
	symbol [4]byte
	typ    byte
	admin  Address
	modes  [][]byte
	data   []byte
}

func decodeTokenInfo(buf []byte) (tokenInfo, error) {
	var ti tokenInfo
	if len(buf) < 4+1+AddressLength {
		return ti, fmt.Errorf("%w: malformed token-info record", ErrValidation)
	}
	copy(ti.symbol[:], buf[0:4])
	ti.typ = buf[4]
	ti.admin = AddressFromBytes(buf[5 : 5+AddressLength])
	off := 5 + AddressLength
	modes, next, err := ParseArrayAt(buf, off)
	if err != nil {
		return ti, err
	}
	ti.modes = modes
	dataLen, next, err := readLen8(buf, next)
	if err != nil {
		return ti, err
	}
	if next+int(dataLen) > len(buf) {
		return ti, fmt.Errorf("%w: token-info data truncated", ErrValidation)
	}
	ti.data = buf[next : next+int(dataLen)]
	return ti, nil
}

// readLen8 reads the plain fixed 8-byte big-endian length field used by
// data_len headers, distinct from pack_int (whose value width varies).
func readLen8(buf []byte, off int) (uint64, int, error) {
	if off+8 > len(buf) {
		return 0, 0, fmt.Errorf("%w: length field truncated", ErrValidation)
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(buf[off+i])
	}
	return v, off + 8, nil
}

func writeLen8(n uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(n >> (8 * i))
	}
	return out
}

func (ti tokenInfo) encode() ([]byte, error) {
	modesBytes, err := ArrayToBytes(ti.modes)
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, ti.symbol[:]...)
	out = append(out, ti.typ)
	out = append(out, ti.admin.Bytes()...)
	out = append(out, modesBytes...)
	out = append(out, writeLen8(uint64(len(ti.data)))...)
	out = append(out, ti.data...)
	return out, nil
}

func (ti tokenInfo) hasMode(mode []byte) bool {
	for _, m := range ti.modes {
		if bytes.Equal(m, mode) {
			return true
		}
	}
	return false
}

func findToken(tokens [][]byte, symbol [4]byte) (tokenInfo, int, error) {
	for i, raw := range tokens {
		ti, err := decodeTokenInfo(raw)
		if err != nil {
			return tokenInfo{}, -1, err
		}
		if ti.symbol == symbol {
			return ti, i, nil
		}
	}
	return tokenInfo{}, -1, nil
}

// create decodes symbol(4) | type(1) | admin(12) | modes:array | data_len(8)
// | data, rejects a duplicate symbol, and for fungible tokens requires a
// zero initial supply and decimals <= 18.
func (a *AssetsApp) create(ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	ti, err := decodeTokenInfo(params)
	if err != nil {
		return err
	}

	appKey := InstanceIDBytes(instanceID)
	raw, err := ctx.ReadAppStorage(appKey, true)
	if err != nil {
		return err
	}
	tokens, err := ParseArray(raw)
	if err != nil {
		return err
	}
	if _, idx, err := findToken(tokens, ti.symbol); err != nil {
		return err
	} else if idx >= 0 {
		return fmt.Errorf("%w: symbol already registered", ErrValidation)
	}

	if ti.typ == TypeFungible {
		totalSupply, off, err := UnpackUint64(ti.data, 0)
		if err != nil {
			return err
		}
		decimals, _, err := UnpackUint64(ti.data, off)
		if err != nil {
			return err
		}
		if totalSupply != 0 {
			return fmt.Errorf("%w: fungible create must start at zero supply", ErrValidation)
		}
		if decimals > MaxDecimals {
			return fmt.Errorf("%w: decimals %d exceeds %d", ErrValidation, decimals, MaxDecimals)
		}
		ti.data = append(PackUint64(0), PackUint64(decimals)...)
	}

	encoded, err := ti.encode()
	if err != nil {
		return err
	}
	tokens = append(tokens, encoded)
	newRaw, err := ArrayToBytes(tokens)
	if err != nil {
		return err
	}
	if err := ctx.WriteAppStorage(appKey, newRaw, true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"symbol": string(ti.symbol[:]), "admin": ti.admin.String()}).Info("assets: create")
	return nil
}

// mint decodes symbol(4) | array of (pack_int(amount) | recipient(12)),
// requires caller == token admin and MODE_NOT_MINTABLE absent, credits each
// recipient, and — the required fix — accumulates the minted total into the
// token-info total_supply field.
func (a *AssetsApp) mint(ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	if len(params) < 4 {
		return fmt.Errorf("%w: malformed mint params", ErrValidation)
	}
	var symbol [4]byte
	copy(symbol[:], params[0:4])
	entries, _, err := ParseArrayAt(params, 4)
	if err != nil {
		return err
	}

	appKey := InstanceIDBytes(instanceID)
	raw, err := ctx.ReadAppStorage(appKey, true)
	if err != nil {
		return err
	}
	tokens, err := ParseArray(raw)
	if err != nil {
		return err
	}
	ti, idx, err := findToken(tokens, symbol)
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: unknown symbol", ErrValidation)
	}
	if ti.admin != caller {
		return fmt.Errorf("%w: caller is not token admin", ErrValidation)
	}
	if ti.hasMode(ModeNotMintable) {
		return fmt.Errorf("%w: token is not mintable", ErrValidation)
	}

	var minted uint64
	for _, entry := range entries {
		amount, off, err := UnpackUint64(entry, 0)
		if err != nil {
			return err
		}
		if off+AddressLength > len(entry) {
			return fmt.Errorf("%w: malformed mint entry", ErrValidation)
		}
		recipient := AddressFromBytes(entry[off : off+AddressLength])
		if err := a.credit(ctx, instanceID, recipient, symbol, ti.typ, amount); err != nil {
			return err
		}
		minted += amount
	}

	if ti.typ == TypeFungible {
		totalSupply, off, err := UnpackUint64(ti.data, 0)
		if err != nil {
			return err
		}
		decimalsBytes := ti.data[off:]
		ti.data = append(PackUint64(totalSupply+minted), decimalsBytes...)
		encoded, err := ti.encode()
		if err != nil {
			return err
		}
		tokens[idx] = encoded
		newRaw, err := ArrayToBytes(tokens)
		if err != nil {
			return err
		}
		if err := ctx.WriteAppStorage(appKey, newRaw, true); err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{"symbol": string(symbol[:]), "minted": minted}).Info("assets: mint")
	return nil
}

// transfer decodes an array of (symbol(4) | pack_int(amount) |
// recipient(12)), skips zero-amount entries, debits the caller (failing if
// the sub-ledger is absent or insufficient), and credits the recipient.
func (a *AssetsApp) transfer(ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	entries, err := ParseArray(params)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if len(entry) < 4 {
			return fmt.Errorf("%w: malformed transfer entry", ErrValidation)
		}
		var symbol [4]byte
		copy(symbol[:], entry[0:4])
		amount, off, err := UnpackUint64(entry, 4)
		if err != nil {
			return err
		}
		if amount == 0 {
			continue
		}
		if off+AddressLength > len(entry) {
			return fmt.Errorf("%w: malformed transfer entry", ErrValidation)
		}
		recipient := AddressFromBytes(entry[off : off+AddressLength])

		typ, err := a.debit(ctx, instanceID, caller, symbol, amount)
		if err != nil {
			return err
		}
		if err := a.credit(ctx, instanceID, recipient, symbol, typ, amount); err != nil {
			return err
		}
	}
	return nil
}

// credit increases addr's balance of (symbol, typ) by amount, inserting a
// fresh sub-record or entry as needed.
func (a *AssetsApp) credit(ctx *ExecutionContext, instanceID uint32, addr Address, symbol [4]byte, typ byte, amount uint64) error {
	return a.adjustBalance(ctx, instanceID, addr, symbol, typ, int64(amount))
}

// debit decreases caller's balance of symbol by amount, failing if the
// sub-ledger is absent or the balance is insufficient. It returns the
// entry's type byte so the caller can credit the recipient identically.
func (a *AssetsApp) debit(ctx *ExecutionContext, instanceID uint32, caller Address, symbol [4]byte, amount uint64) (byte, error) {
	_, subRecord, _, err := GetAccountSubRecord(ctx, caller, instanceID, true)
	if err != nil {
		return 0, err
	}
	typ, found, err := findAssetEntryType(subRecord, symbol)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: caller has no balance of symbol", ErrInsufficientBalance)
	}
	if err := a.adjustBalance(ctx, instanceID, caller, symbol, typ, -int64(amount)); err != nil {
		return 0, err
	}
	return typ, nil
}

// TransferAssetEntry encodes a single transfer-params entry
// (symbol(4) | pack_int(amount) | recipient(12)) — the format SelectorAssetsTransfer
// expects one or more of, packed into an array. Shared by the AMM and
// Marketplace applications, which both move assets by re-entering Assets
// with a SelectorAssetsTransfer call built from one or more of these.
func TransferAssetEntry(symbol [4]byte, amount uint64, recipient Address) []byte {
	out := append([]byte{}, symbol[:]...)
	out = append(out, PackUint64(amount)...)
	out = append(out, recipient.Bytes()...)
	return out
}

// AssetBalance looks up addr's balance of symbol by reading its Assets
// sub-record fresh off ctx. Shared by the AMM and Marketplace applications
// to check pool/escrow balances without duplicating the sub-record lookup.
func AssetBalance(ctx *ExecutionContext, instanceID uint32, addr Address, symbol [4]byte) (uint64, error) {
	_, subRecord, _, err := GetAccountSubRecord(ctx, addr, instanceID, false)
	if err != nil {
		return 0, err
	}
	return AssetEntryBalance(subRecord, symbol)
}

// AssetEntryBalance returns addr's balance of symbol given its already
// fetched Assets sub-record (see GetAccountSubRecord), for read-only
// introspection callers such as the CLI and HTTP API.
func AssetEntryBalance(subRecord []byte, symbol [4]byte) (uint64, error) {
	entries, err := decodeAssetEntries(subRecord)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		var sym [4]byte
		copy(sym[:], e[0:4])
		if sym == symbol {
			bal, _, err := UnpackUint64(e, 5)
			return bal, err
		}
	}
	return 0, nil
}

func findAssetEntryType(subRecord []byte, symbol [4]byte) (byte, bool, error) {
	entries, err := decodeAssetEntries(subRecord)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		var sym [4]byte
		copy(sym[:], e[0:4])
		if sym == symbol {
			return e[4], true, nil
		}
	}
	return 0, false, nil
}

func decodeAssetEntries(subRecord []byte) ([][]byte, error) {
	if len(subRecord) == 0 {
		return nil, nil
	}
	if len(subRecord) < InstanceIDLength+8 {
		return nil, fmt.Errorf("%w: malformed assets sub-record", ErrValidation)
	}
	dataLen, _, err := readLen8(subRecord, InstanceIDLength)
	if err != nil {
		return nil, err
	}
	start := InstanceIDLength + 8
	if start+int(dataLen) > len(subRecord) {
		return nil, fmt.Errorf("%w: assets sub-record data truncated", ErrValidation)
	}
	return ParseArray(subRecord[start : start+int(dataLen)])
}

// adjustBalance implements update_balance: locate the (symbol, typ) entry
// in addr's Assets sub-record, apply delta, remove the entry at zero,
// insert a fresh one when delta is positive and none existed, and fail on
// an attempted negative balance.
func (a *AssetsApp) adjustBalance(ctx *ExecutionContext, instanceID uint32, addr Address, symbol [4]byte, typ byte, delta int64) error {
	all, subRecord, subIdx, err := GetAccountSubRecord(ctx, addr, instanceID, true)
	if err != nil {
		return err
	}
	entries, err := decodeAssetEntries(subRecord)
	if err != nil {
		return err
	}

	entryIdx := -1
	var oldBalance uint64
	for i, e := range entries {
		var sym [4]byte
		copy(sym[:], e[0:4])
		if sym == symbol {
			entryIdx = i
			bal, _, err := UnpackUint64(e, 5)
			if err != nil {
				return err
			}
			oldBalance = bal
			break
		}
	}

	newBalanceSigned := int64(oldBalance) + delta
	if newBalanceSigned < 0 {
		return fmt.Errorf("%w: asset balance would go negative", ErrInsufficientBalance)
	}
	newBalance := uint64(newBalanceSigned)

	switch {
	case newBalance == 0 && entryIdx >= 0:
		entries = append(entries[:entryIdx], entries[entryIdx+1:]...)
	case entryIdx >= 0:
		entries[entryIdx] = encodeAssetEntry(symbol, typ, newBalance)
	case newBalance > 0:
		entries = append(entries, encodeAssetEntry(symbol, typ, newBalance))
	}

	entriesBytes, err := ArrayToBytes(entries)
	if err != nil {
		return err
	}
	newSubRecord := append(append(InstanceIDBytes(instanceID), writeLen8(uint64(len(entriesBytes)))...), entriesBytes...)
	all = SetToArray(all, subIdx, newSubRecord)
	return WriteAccountSubRecords(ctx, addr, all, true)
}

func encodeAssetEntry(symbol [4]byte, typ byte, balance uint64) []byte {
	out := append([]byte{}, symbol[:]...)
	out = append(out, typ)
	out = append(out, PackUint64(balance)...)
	return out
}
