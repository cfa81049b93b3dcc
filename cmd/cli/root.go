// Package cli wires the mam command line tool: one cobra sub-command group
// per fixed application, sharing a single process-local Runtime persisted to
// disk between invocations. Grounded on the teacher's coin.go middleware
// pattern (sync.Once bootstrap, godotenv + logrus setup, Register* exported
// hooks) generalized from one coin manager to the five MAM applications.
package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

// Fixed instance ids every mam CLI process allocates, in registration order:
// MCM is reserved at 0; the rest are created in this order on every run so
// a fresh process always reconstructs the same catalogue.
const (
	AssetsInstanceID      uint32 = 1
	AMMInstanceID         uint32 = 2
	MarketplaceInstanceID uint32 = 3
	ChatInstanceID        uint32 = 4
)

var (
	rt          *core.Runtime
	appStore    *core.KVStore
	acctStore   *core.KVStore
	bootOnce    sync.Once
	bootErr     error
	appSnap     string
	acctSnap    string
	currentBnum uint64
)

func rootEnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func bootstrapMiddleware(cmd *cobra.Command, _ []string) error {
	bootOnce.Do(func() {
		_ = godotenv.Load()

		lvl := rootEnvOr("LOG_LEVEL", "info")
		lv, e := logrus.ParseLevel(lvl)
		if e != nil {
			bootErr = e
			return
		}
		logrus.SetLevel(lv)

		appSnap = rootEnvOr("MAM_APP_SNAPSHOT", "./mam-app.snap")
		acctSnap = rootEnvOr("MAM_ACCOUNT_SNAPSHOT", "./mam-account.snap")

		appStore = core.NewKVStore()
		acctStore = core.NewKVStore()
		if e = appStore.LoadSnapshot(appSnap); e != nil {
			bootErr = e
			return
		}
		if e = acctStore.LoadSnapshot(acctSnap); e != nil {
			bootErr = e
			return
		}

		rt, e = core.NewRuntime(appStore, acctStore, func() uint64 { return currentBnum }, logrus.StandardLogger())
		if e != nil {
			bootErr = e
			return
		}
		if e = rt.BootstrapMCM(core.NewMCMApp); e != nil {
			bootErr = e
			return
		}
		if e = rt.AddAppTemplate(core.AppTypeAssets, core.NewAssetsApp); e != nil {
			bootErr = e
			return
		}
		if _, e = rt.CreateInstance(core.AppTypeAssets); e != nil {
			bootErr = e
			return
		}
		if e = rt.AddAppTemplate(core.AppTypeAMM, core.NewAMMApp); e != nil {
			bootErr = e
			return
		}
		if _, e = rt.CreateInstance(core.AppTypeAMM); e != nil {
			bootErr = e
			return
		}
		if e = rt.AddAppTemplate(core.AppTypeMarketplace, core.NewMarketplaceApp); e != nil {
			bootErr = e
			return
		}
		if _, e = rt.CreateInstance(core.AppTypeMarketplace); e != nil {
			bootErr = e
			return
		}
		if e = rt.AddAppTemplate(core.AppTypeChat, core.NewChatApp); e != nil {
			bootErr = e
			return
		}
		if _, e = rt.CreateInstance(core.AppTypeChat); e != nil {
			bootErr = e
			return
		}
	})
	return bootErr
}

// persistRuntime snapshots both stores after a committed call mutates them.
func persistRuntime() error {
	if err := appStore.SaveSnapshot(appSnap); err != nil {
		return fmt.Errorf("save app snapshot: %w", err)
	}
	if err := acctStore.SaveSnapshot(acctSnap); err != nil {
		return fmt.Errorf("save account snapshot: %w", err)
	}
	return nil
}

func rootDecodeAddr(h string) (core.Address, error) {
	var a core.Address
	b, err := decodeHex(h)
	if err != nil || len(b) != core.AddressLength {
		return a, fmt.Errorf("invalid address %q: want %d hex bytes", h, core.AddressLength)
	}
	copy(a[:], b)
	return a, nil
}

// RootCmd is the top-level mam command.
var RootCmd = &cobra.Command{
	Use:               "mam",
	Short:             "Mochimo Application Machine command line tool",
	PersistentPreRunE: bootstrapMiddleware,
}

// RegisterRoutes attaches every application's command group to root.
func RegisterRoutes(root *cobra.Command) {
	root.AddCommand(MCMCmd, AssetsCmd, AMMCmd, MarketplaceCmd, ChatCmd)
}

func init() {
	RootCmd.PersistentFlags().Uint64Var(&currentBnum, "bnum", 1, "current block height presented to applications")
}
