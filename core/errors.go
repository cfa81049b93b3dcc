package core

import "errors"

// Sentinel error kinds every application and the runtime wrap with context
// via fmt.Errorf("%w: ...", ErrX) so callers can branch with errors.Is
// instead of matching strings, mirroring the wrapped-sentinel idiom used
// throughout the teacher's ledger.go/coin.go.
var (
	// ErrOutOfGas is raised when total_gas exceeds max_gas mid-call.
	ErrOutOfGas = errors.New("out of gas")

	// ErrInsufficientBalance covers MCM, Assets and AMM reserve underflows.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrValidation covers malformed parameters, length limits and range
	// checks (fee_bps > 10000, decimals > 18, memo > 64 bytes, array > 255
	// elements, funding < 500, duplicate address/symbol, and similar).
	ErrValidation = errors.New("validation failed")

	// ErrUnknownApplication is returned when app_id is not registered.
	ErrUnknownApplication = errors.New("unknown application")

	// ErrUnknownSelector is returned when a selector has no matching branch.
	ErrUnknownSelector = errors.New("unknown selector")

	// ErrNotImplemented covers selectors explicitly stubbed out by the spec.
	ErrNotImplemented = errors.New("not implemented")

	// ErrBadDebt signals a pool's actual token balance fell below its
	// recorded reserve — a state that must never be allowed to commit.
	ErrBadDebt = errors.New("bad debt")

	// ErrStorageOverflow signals an application's committed storage would
	// exceed its configured max_storage.
	ErrStorageOverflow = errors.New("application storage overflow")

	// ErrSingletonRuntime guards against constructing a second Runtime.
	ErrSingletonRuntime = errors.New("a MAM runtime instance already exists")
)
