package core

// runtime.go — the MAM runtime: application template registry, instance
// allocation, and the call dispatch protocol. Grounded on the teacher's
// ContractRegistry singleton-and-registry shape in contracts.go (sync.Once
// guard, byAddr-style lookup table, Invoke as the single routed entry
// point) generalized from "route to a deployed WASM contract" to "route to
// one of five built-in application instances by id".

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	runtimeOnce sync.Once
	runtimeSet  bool
	runtimeMu   sync.Mutex
)

// Runtime is the single MAM instance in a process: it owns the two KV
// stores, the fixed application-template catalogue, and every created
// instance. Applications receive it as an immutable handle so they can call
// into other instances (AMM/Marketplace re-entering Assets) without any
// process-global state.
type Runtime struct {
	mu sync.Mutex

	appStore     *KVStore
	accountStore *KVStore

	templates map[ApplicationType]func(instanceID uint32) Application
	instances map[uint32]*AppInstance
	nextID    uint32

	bnum func() uint64

	log *logrus.Logger
}

// NewRuntime constructs the process's single Runtime. A second call fails
// with ErrSingletonRuntime, mirroring the teacher's contractOnce guard
// against re-initializing the contract registry.
func NewRuntime(appStore, accountStore *KVStore, bnum func() uint64, log *logrus.Logger) (*Runtime, error) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeSet {
		return nil, ErrSingletonRuntime
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	rt := &Runtime{
		appStore:     appStore,
		accountStore: accountStore,
		templates:    make(map[ApplicationType]func(instanceID uint32) Application),
		instances:    make(map[uint32]*AppInstance),
		nextID:       1,
		bnum:         bnum,
		log:          log,
	}
	runtimeOnce.Do(func() { runtimeSet = true })
	return rt, nil
}

// resetSingletonForTesting clears the package-level singleton guard so unit
// tests can construct independent Runtimes. Not exported.
func resetSingletonForTesting() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeSet = false
	runtimeOnce = sync.Once{}
}

// Bnum returns the current external block height as the runtime's
// applications see it.
func (rt *Runtime) Bnum() uint64 {
	if rt.bnum == nil {
		return 0
	}
	return rt.bnum()
}

// AddAppTemplate registers a factory for appType. Registering the same type
// twice is rejected.
func (rt *Runtime) AddAppTemplate(appType ApplicationType, factory func(instanceID uint32) Application) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.templates[appType]; exists {
		return fmt.Errorf("%w: template %s already registered", ErrValidation, appType)
	}
	rt.templates[appType] = factory
	return nil
}

// CreateInstance allocates the next instance id for appType and instantiates
// it. Instance id 0 is reserved for MCM and assigned only by BootstrapMCM;
// CreateInstance always allocates from 1 upward and never returns 0.
func (rt *Runtime) CreateInstance(appType ApplicationType) (uint32, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	factory, ok := rt.templates[appType]
	if !ok {
		return 0, fmt.Errorf("%w: no template registered for %s", ErrValidation, appType)
	}
	id := rt.nextID
	rt.nextID++
	rt.instances[id] = &AppInstance{InstanceID: id, App: factory(id)}
	return id, nil
}

// BootstrapMCM installs the MCM application at the permanently reserved
// instance id 0. Must be called exactly once, before any CreateInstance
// call, typically right after NewRuntime.
func (rt *Runtime) BootstrapMCM(factory func(instanceID uint32) Application) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.instances[MCMInstanceID]; exists {
		return fmt.Errorf("%w: MCM already bootstrapped", ErrValidation)
	}
	rt.instances[MCMInstanceID] = &AppInstance{InstanceID: MCMInstanceID, App: factory(MCMInstanceID)}
	return nil
}

// Instance looks up a created application instance by id.
func (rt *Runtime) Instance(appID uint32) (*AppInstance, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	inst, ok := rt.instances[appID]
	return inst, ok
}

// AccountStorage exposes read-only introspection of raw account storage.
func (rt *Runtime) AccountStorage(addr Address) []byte {
	return rt.accountStore.Read(addr.Bytes())
}

// AppStorage exposes read-only introspection of raw application storage for
// instance appID.
func (rt *Runtime) AppStorage(appID uint32) []byte {
	return rt.appStore.Read(InstanceIDBytes(appID))
}

// NoOpContext returns a fresh, ungated read/write context over the
// runtime's stores for callers (CLI commands, the HTTP API) that need to
// inspect or seed state outside the metered call path.
func (rt *Runtime) NoOpContext() *ExecutionContext {
	return NoOpContext(rt.appStore, rt.accountStore)
}

// Call is the sole entry point into the runtime: it implements the full
// dry-run/commit dispatch protocol described by the component design —
// pre-charge, dispatch, storage-limit enforcement, reconciliation, and
// commit-or-discard.
func (rt *Runtime) Call(dryRun bool, caller Address, maxGas *uint64, appID uint32, selector uint32, params []byte) (gasUsed uint64, gasCost uint64, callErr error) {
	callID := uuid.New().String()
	entry := rt.log.WithFields(logrus.Fields{
		"call_id":  callID,
		"app_id":   appID,
		"selector": selector,
		"dry_run":  dryRun,
	})
	entry.Info("mam: call start")

	inst, ok := rt.Instance(appID)
	if !ok {
		err := fmt.Errorf("%w: app id %d", ErrUnknownApplication, appID)
		entry.WithError(err).Warn("mam: call rejected")
		return 0, 0, err
	}
	if !dryRun && maxGas == nil {
		err := fmt.Errorf("%w: max_gas is required for a committed call", ErrValidation)
		entry.WithError(err).Warn("mam: call rejected")
		return 0, 0, err
	}

	ctx := NewExecutionContext(rt.appStore, rt.accountStore, maxGas)

	var reserved uint64
	if !dryRun {
		reserved = *maxGas * GasPrice
		balance, err := GetMCMBalance(ctx, caller, false)
		if err != nil {
			return 0, 0, err
		}
		if balance < reserved {
			err := fmt.Errorf("%w: caller balance %d below reserve %d", ErrInsufficientBalance, balance, reserved)
			entry.WithError(err).Warn("mam: call rejected")
			return 0, 0, err
		}
		if err := SetMCMBalance(ctx, caller, balance-reserved, false); err != nil {
			return 0, 0, err
		}
	}

	callErr = runGuarded(func() error {
		return inst.App.Execute(rt, ctx, appID, caller, selector, params)
	})

	if !dryRun {
		if callErr != nil {
			ctx.totalGas = *maxGas
		}

		balance, err := GetMCMBalance(ctx, caller, false)
		if err != nil {
			return 0, 0, err
		}
		if err := SetMCMBalance(ctx, caller, balance+reserved, false); err != nil {
			return 0, 0, err
		}
	}

	if callErr == nil {
		if max := inst.App.MaxStorage(); max > 0 {
			stored := ctx.PendingAppStorageValue(InstanceIDBytes(appID))
			if uint64(len(stored)) > max {
				callErr = fmt.Errorf("%w: instance %d storage %d exceeds max %d", ErrStorageOverflow, appID, len(stored), max)
				if !dryRun {
					ctx.totalGas = *maxGas
				}
			}
		}
	}

	used, gasErr := ctx.TotalGasUsed()
	if gasErr != nil {
		return 0, 0, gasErr
	}
	gasUsed = used
	gasCost = used * GasPrice

	if !dryRun {
		if callErr != nil {
			// a failed committed call leaves no trace besides the gas debit:
			// drop every buffered write, then debit the caller's stored balance.
			ctx.DiscardFailedCallWrites(caller)
		}
		balance, err := GetMCMBalance(ctx, caller, false)
		if err != nil {
			return 0, 0, err
		}
		debit := gasCost
		if debit > balance {
			debit = balance
		}
		if err := SetMCMBalance(ctx, caller, balance-debit, false); err != nil {
			return 0, 0, err
		}
		ctx.Persists()
	}

	if callErr != nil {
		entry.WithFields(logrus.Fields{"gas_used": gasUsed, "gas_cost": gasCost}).WithError(callErr).Warn("mam: call failed")
	} else {
		entry.WithFields(logrus.Fields{"gas_used": gasUsed, "gas_cost": gasCost}).Info("mam: call finished")
	}
	return gasUsed, gasCost, callErr
}

// runGuarded converts a panic raised by application code into an error,
// mirroring the "guarded block" the dispatch protocol calls for around
// app.execute.
func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: application panic: %v", ErrValidation, r)
		}
	}()
	return fn()
}
