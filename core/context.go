package core

// context.go — the ExecutionContext every application mutates through
// during a call: a gas counter plus write-through buffers over the two
// KVStores. Grounded on the reference mip12 ExecutionContext class and on
// the teacher's ledger.go Snapshot/commit pattern for the ordered,
// deterministic buffer flush.

import (
	"fmt"
	"sort"
)

// Gas schedule constants, named per spec rather than the teacher's
// opcode-keyed gasTable (MAM doesn't run a VM loop, it dispatches selectors).
const (
	GasSimpleOp          uint64 = 1
	GasReadStorage       uint64 = 10
	GasWriteStorageBase  uint64 = 100
	GasWriteStoragePerByte uint64 = 10

	// GasPrice is the nMCM charged per unit of gas consumed.
	GasPrice uint64 = 3
)

// ExecutionContext buffers reads/writes to application and account storage
// for the duration of a single call and tracks total gas consumed. Created
// fresh by the Runtime for every Call; never reused across calls.
type ExecutionContext struct {
	appStore     *KVStore
	accountStore *KVStore

	appBuffer     map[string][]byte
	accountBuffer map[string][]byte

	maxGas   *uint64 // nil means unbounded (dry-run estimation mode)
	totalGas uint64

	noOp bool
}

// NewExecutionContext returns a metered context bound to the two stores.
// maxGas is nil when the caller wants an unbounded budget (no-op contexts,
// and dry-run calls exploring gas cost with no upper bound).
func NewExecutionContext(appStore, accountStore *KVStore, maxGas *uint64) *ExecutionContext {
	return &ExecutionContext{
		appStore:      appStore,
		accountStore:  accountStore,
		appBuffer:     make(map[string][]byte),
		accountBuffer: make(map[string][]byte),
		maxGas:        maxGas,
	}
}

// NoOpContext returns a context that performs reads/writes against the
// given stores but never charges or checks gas — used by Runtime.NoOpContext
// for read-only introspection (CLI/HTTP balance queries) outside of any
// call, and by tests that need to seed or inspect state directly.
func NoOpContext(appStore, accountStore *KVStore) *ExecutionContext {
	ctx := NewExecutionContext(appStore, accountStore, nil)
	ctx.noOp = true
	return ctx
}

// TotalGasUsed returns the gas consumed so far. Calling it on a no-op
// context is a programming error — the whole point of no-op mode is that
// gas accounting is meaningless there.
func (c *ExecutionContext) TotalGasUsed() (uint64, error) {
	if c.noOp {
		return 0, fmt.Errorf("%w: total_gas_used is undefined on a no-op context", ErrValidation)
	}
	return c.totalGas, nil
}

// Op charges multi units of simple-operation gas (default 1 when multi==0)
// and checks the budget.
func (c *ExecutionContext) Op(multi uint64) error {
	if c.noOp {
		return nil
	}
	if multi == 0 {
		multi = GasSimpleOp
	}
	return c.charge(multi)
}

func (c *ExecutionContext) charge(amount uint64) error {
	c.totalGas += amount
	if c.maxGas != nil && c.totalGas > *c.maxGas {
		return fmt.Errorf("%w: total_gas %d exceeds max_gas %d", ErrOutOfGas, c.totalGas, *c.maxGas)
	}
	return nil
}

// ReadAppStorage reads application storage key k, consulting the buffer
// before the underlying store, charging GAS_READ_STORAGE unless updateGas
// is false.
func (c *ExecutionContext) ReadAppStorage(k []byte, updateGas bool) ([]byte, error) {
	return c.read(c.appBuffer, c.appStore, k, updateGas)
}

// WriteAppStorage buffers a write to application storage key k, charging
// the write-storage gas schedule unless updateGas is false.
func (c *ExecutionContext) WriteAppStorage(k, v []byte, updateGas bool) error {
	return c.write(c.appBuffer, k, v, updateGas)
}

// ReadAccountStorage reads account storage key k (normally an Address's
// bytes), consulting the buffer before the underlying store.
func (c *ExecutionContext) ReadAccountStorage(k []byte, updateGas bool) ([]byte, error) {
	return c.read(c.accountBuffer, c.accountStore, k, updateGas)
}

// WriteAccountStorage buffers a write to account storage key k. Per the
// corrected account-storage invariant, k must be the account's address
// bytes, never the value being written.
func (c *ExecutionContext) WriteAccountStorage(k, v []byte, updateGas bool) error {
	return c.write(c.accountBuffer, k, v, updateGas)
}

func (c *ExecutionContext) read(buffer map[string][]byte, store *KVStore, k []byte, updateGas bool) ([]byte, error) {
	if !c.noOp && updateGas {
		if err := c.charge(GasReadStorage); err != nil {
			return nil, err
		}
	}
	if v, ok := buffer[string(k)]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	return store.Read(k), nil
}

func (c *ExecutionContext) write(buffer map[string][]byte, k, v []byte, updateGas bool) error {
	if !c.noOp && updateGas {
		cost := GasWriteStorageBase + GasWriteStoragePerByte*uint64(len(v))
		if err := c.charge(cost); err != nil {
			return err
		}
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	key := make([]byte, len(k))
	copy(key, k)
	buffer[string(key)] = cp
	return nil
}

// DiscardFailedCallWrites drops every buffered write of the call, the
// caller's own account record (gas reserve bookkeeping and any application
// writes to it) included. Used by the runtime on a failed committed call
// before it debits gas from the caller's stored balance: per the
// failed-call-atomicity invariant, nothing from the call may be observed
// afterward except that debit.
func (c *ExecutionContext) DiscardFailedCallWrites(caller Address) {
	c.appBuffer = make(map[string][]byte)
	c.accountBuffer = make(map[string][]byte)
}

// Persists flushes every buffered write into its underlying store, in
// ascending key order for a deterministic, replayable commit sequence.
// Called by the runtime for every non-dry-run call; on a failed call the
// buffer holds only the gas debit by then (see DiscardFailedCallWrites).
func (c *ExecutionContext) Persists() {
	flush(c.appStore, c.appBuffer)
	flush(c.accountStore, c.accountBuffer)
}

func flush(store *KVStore, buffer map[string][]byte) {
	keys := make([]string, 0, len(buffer))
	for k := range buffer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		store.Write([]byte(k), buffer[k])
	}
}

// PendingAppStorageValue returns the application-storage value at k that
// the runtime would see if it persisted right now (the buffered write if
// any, else the stored value) — used for the post-call max_storage
// enforcement, which checks this value's length; see runtime.go.
func (c *ExecutionContext) PendingAppStorageValue(k []byte) []byte {
	if v, ok := c.appBuffer[string(k)]; ok {
		return v
	}
	return c.appStore.Read(k)
}
