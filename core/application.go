package core

// application.go — the application catalogue represented as a closed sum
// type, per the dispatch design called for over runtime subclassing: a
// fixed ApplicationType tag plus one Application implementation per type,
// registered once into the Runtime's template table. Grounded on the
// teacher's ContractRegistry/Invoke pattern in contracts.go, adapted from
// "load arbitrary deployed bytecode" to "dispatch to one of five built-ins".

import "fmt"

// ApplicationType tags one of the five built-in application templates.
type ApplicationType uint8

const (
	AppTypeMCM ApplicationType = iota
	AppTypeAssets
	AppTypeAMM
	AppTypeMarketplace
	AppTypeChat
)

func (t ApplicationType) String() string {
	switch t {
	case AppTypeMCM:
		return "mcm"
	case AppTypeAssets:
		return "assets"
	case AppTypeAMM:
		return "amm"
	case AppTypeMarketplace:
		return "marketplace"
	case AppTypeChat:
		return "chat"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Application is the common behavior every built-in template implements.
// Execute receives an immutable Runtime handle (to reach other application
// instances and the current block number) and the shared ExecutionContext
// for the in-flight call — it must never construct its own context.
type Application interface {
	// Type reports which of the five built-ins this is.
	Type() ApplicationType

	// MaxStorage is the byte ceiling the runtime enforces against this
	// instance's application-storage record after a successful call. Zero
	// means unconstrained (MCM's case: the limit only ever applies to
	// application storage, and MCM keeps no application-storage record).
	MaxStorage() uint64

	// Execute dispatches selector against params for instanceID, acting on
	// behalf of caller, through ctx. A non-nil error aborts the whole call;
	// the runtime discards ctx's buffered writes and charges punitive gas.
	Execute(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, selector uint32, params []byte) error
}

// AppInstance binds a live Application to the instance id the runtime
// assigned it at creation time.
type AppInstance struct {
	InstanceID uint32
	App        Application
}
