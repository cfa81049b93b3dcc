package core

// app_mcm.go — the native-coin ledger application, instance id 0. Grounded
// on the teacher's coin.go (Coin.Mint/Transfer/BalanceOf structure and its
// logrus.Infof call-site logging) generalized from a standalone ledger
// wrapper into a selector-dispatched Application hosted by the runtime.

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	SelectorMCMCreateTag uint32 = 1
	SelectorMCMTransfer  uint32 = 2
)

// MinTagFunding is the minimum initial balance create_tag requires.
const MinTagFunding uint64 = 500

// MaxMemoLength bounds a single transfer's memo.
const MaxMemoLength = 64

// MCMApp is the native-coin application. Its own application storage is
// never used — balances live entirely in account sub-records — so
// MaxStorage is 0 and the runtime's storage-overflow check never fires for
// it, exactly as the component design calls for.
type MCMApp struct {
	instanceID uint32
}

// NewMCMApp constructs the MCM application template.
func NewMCMApp(instanceID uint32) Application { return &MCMApp{instanceID: instanceID} }

func (a *MCMApp) Type() ApplicationType { return AppTypeMCM }

func (a *MCMApp) MaxStorage() uint64 { return 0 }

func (a *MCMApp) Execute(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, selector uint32, params []byte) error {
	switch selector {
	case SelectorMCMCreateTag:
		return a.createTag(ctx, caller, params)
	case SelectorMCMTransfer:
		return a.transfer(ctx, caller, params)
	default:
		return fmt.Errorf("%w: mcm selector %d", ErrUnknownSelector, selector)
	}
}

// createTag decodes new_address(12) | funding(8), requires funding ≥
// MinTagFunding, requires new_address currently empty, and moves funding
// from the caller to the freshly seeded account.
func (a *MCMApp) createTag(ctx *ExecutionContext, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	if len(params) != AddressLength+8 {
		return fmt.Errorf("%w: create_tag expects %d bytes, got %d", ErrValidation, AddressLength+8, len(params))
	}
	newAddr := AddressFromBytes(params[:AddressLength])
	funding := binary.BigEndian.Uint64(params[AddressLength : AddressLength+8])

	if funding < MinTagFunding {
		return fmt.Errorf("%w: funding %d below minimum %d", ErrValidation, funding, MinTagFunding)
	}
	exists, err := AccountExists(ctx, newAddr, true)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: address exists", ErrValidation)
	}

	callerBalance, err := GetMCMBalance(ctx, caller, true)
	if err != nil {
		return err
	}
	if callerBalance < funding {
		return fmt.Errorf("%w: caller balance %d below funding %d", ErrInsufficientBalance, callerBalance, funding)
	}
	if err := SetMCMBalance(ctx, caller, callerBalance-funding, true); err != nil {
		return err
	}
	if err := SetMCMBalance(ctx, newAddr, funding, true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"caller": caller.String(), "new_address": newAddr.String(), "funding": funding}).
		Info("mcm: create_tag")
	return nil
}

// transfer decodes an array of (amount(8) | destination(12) | memo_len(8) |
// memo), credits every destination (which must already exist), and debits
// the caller by the sum of all per-transfer amounts. The source
// implementation accumulated `total = 0` regardless of amount transferred;
// this corrects it to `total += amount` per transfer.
func (a *MCMApp) transfer(ctx *ExecutionContext, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	entries, err := ParseArray(params)
	if err != nil {
		return err
	}

	var total uint64
	for _, entry := range entries {
		if len(entry) < 8+AddressLength+8 {
			return fmt.Errorf("%w: malformed transfer entry", ErrValidation)
		}
		amount := binary.BigEndian.Uint64(entry[0:8])
		dest := AddressFromBytes(entry[8 : 8+AddressLength])
		memoLenOff := 8 + AddressLength
		memoLen := binary.BigEndian.Uint64(entry[memoLenOff : memoLenOff+8])
		if memoLen > MaxMemoLength {
			return fmt.Errorf("%w: memo length %d exceeds %d", ErrValidation, memoLen, MaxMemoLength)
		}
		if uint64(len(entry)) < uint64(memoLenOff+8)+memoLen {
			return fmt.Errorf("%w: memo truncated", ErrValidation)
		}

		exists, err := AccountExists(ctx, dest, true)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: destination %s does not exist", ErrValidation, dest)
		}

		destBalance, err := GetMCMBalance(ctx, dest, true)
		if err != nil {
			return err
		}
		if err := SetMCMBalance(ctx, dest, destBalance+amount, true); err != nil {
			return err
		}
		total += amount
	}

	callerBalance, err := GetMCMBalance(ctx, caller, true)
	if err != nil {
		return err
	}
	if callerBalance < total {
		return fmt.Errorf("%w: caller balance %d below transfer total %d", ErrInsufficientBalance, callerBalance, total)
	}
	if err := SetMCMBalance(ctx, caller, callerBalance-total, true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"caller": caller.String(), "total": total, "count": len(entries)}).
		Info("mcm: transfer")
	return nil
}
