package core

// account.go — shared helpers for reading and rewriting an account's
// sub-record array and, specifically, its MCM sub-record. The runtime uses
// the MCM helpers directly to pre-charge and refund the gas reserve without
// metering; the MCM application reuses the same helpers for create_tag and
// transfer. Grounded on the reference mip12 MAM class's account_storage
// helpers (get_account_app_data / set_account_app_data).

import (
	"encoding/binary"
	"fmt"
)

// MCMInstanceID is the fixed, permanent instance id of the native-coin app.
const MCMInstanceID uint32 = 0

// ReadAccountSubRecords decodes the full sub-record array stored at addr.
func ReadAccountSubRecords(ctx *ExecutionContext, addr Address, updateGas bool) ([][]byte, error) {
	raw, err := ctx.ReadAccountStorage(addr.Bytes(), updateGas)
	if err != nil {
		return nil, err
	}
	return ParseArray(raw)
}

// WriteAccountSubRecords re-encodes and writes subRecords back to addr's
// account storage, keyed correctly by the account address (never by the
// encoded value itself — the corrected account-storage write invariant).
func WriteAccountSubRecords(ctx *ExecutionContext, addr Address, subRecords [][]byte, updateGas bool) error {
	encoded, err := AccountArrayToBytes(subRecords)
	if err != nil {
		return err
	}
	return ctx.WriteAccountStorage(addr.Bytes(), encoded, updateGas)
}

// GetAccountSubRecord returns the decoded sub-record array for addr along
// with the specific sub-record (and its index) belonging to instanceID, or
// (nil, -1) if that application has never written to this account.
func GetAccountSubRecord(ctx *ExecutionContext, addr Address, instanceID uint32, updateGas bool) (all [][]byte, subRecord []byte, index int, err error) {
	all, err = ReadAccountSubRecords(ctx, addr, updateGas)
	if err != nil {
		return nil, nil, -1, err
	}
	subRecord, index = GetAppDataFromArray(instanceID, all)
	return all, subRecord, index, nil
}

// EncodeMCMSubRecord builds an MCM sub-record: instance_id(4) | data_len(8) |
// balance(8).
func EncodeMCMSubRecord(balance uint64) []byte {
	out := make([]byte, InstanceIDLength+8+8)
	binary.BigEndian.PutUint32(out[0:4], MCMInstanceID)
	binary.BigEndian.PutUint64(out[4:12], 8)
	binary.BigEndian.PutUint64(out[12:20], balance)
	return out
}

// DecodeMCMSubRecord extracts the balance field from an MCM sub-record.
func DecodeMCMSubRecord(subRecord []byte) (uint64, error) {
	if len(subRecord) < InstanceIDLength+8+8 {
		return 0, fmt.Errorf("%w: malformed MCM sub-record", ErrValidation)
	}
	return binary.BigEndian.Uint64(subRecord[12:20]), nil
}

// GetMCMBalance reads addr's MCM balance, or 0 if the account has never
// been funded.
func GetMCMBalance(ctx *ExecutionContext, addr Address, updateGas bool) (uint64, error) {
	_, subRecord, index, err := GetAccountSubRecord(ctx, addr, MCMInstanceID, updateGas)
	if err != nil {
		return 0, err
	}
	if index < 0 {
		return 0, nil
	}
	return DecodeMCMSubRecord(subRecord)
}

// SetMCMBalance overwrites addr's MCM sub-record with balance, inserting one
// if none existed yet.
func SetMCMBalance(ctx *ExecutionContext, addr Address, balance uint64, updateGas bool) error {
	all, _, index, err := GetAccountSubRecord(ctx, addr, MCMInstanceID, updateGas)
	if err != nil {
		return err
	}
	all = SetToArray(all, index, EncodeMCMSubRecord(balance))
	return WriteAccountSubRecords(ctx, addr, all, updateGas)
}

// AccountExists reports whether addr has ever been written to by any
// application (its sub-record array is non-empty).
func AccountExists(ctx *ExecutionContext, addr Address, updateGas bool) (bool, error) {
	all, err := ReadAccountSubRecords(ctx, addr, updateGas)
	if err != nil {
		return false, err
	}
	return len(all) > 0, nil
}
