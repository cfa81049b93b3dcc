// Command mamserver exposes the Mochimo Application Machine over HTTP.
// Grounded on the teacher's APINode in core/api_node.go (net/http mux,
// JSON request/response helpers, one handler per concern) ported onto
// go-chi/chi for URL-parameter routing, and on dexserver/main.go for the
// process bootstrap shape (load config, init state, listen).
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	pkgconfig "mochimo-mam/cmd/config"
	"mochimo-mam/core"
)

type server struct {
	mu        sync.Mutex
	rt        *core.Runtime
	appStore  *core.KVStore
	acctStore *core.KVStore
	appSnap   string
	acctSnap  string
	bnum      uint64
	log       *logrus.Logger
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newServer() (*server, error) {
	log := logrus.StandardLogger()

	appStore := core.NewKVStore()
	acctStore := core.NewKVStore()
	appSnap := envOr("MAM_APP_SNAPSHOT", "./mam-app.snap")
	acctSnap := envOr("MAM_ACCOUNT_SNAPSHOT", "./mam-account.snap")
	if err := appStore.LoadSnapshot(appSnap); err != nil {
		return nil, err
	}
	if err := acctStore.LoadSnapshot(acctSnap); err != nil {
		return nil, err
	}

	s := &server{appStore: appStore, acctStore: acctStore, appSnap: appSnap, acctSnap: acctSnap, bnum: 1, log: log}

	rt, err := core.NewRuntime(appStore, acctStore, func() uint64 { return s.bnum }, log)
	if err != nil {
		return nil, err
	}
	if err := rt.BootstrapMCM(core.NewMCMApp); err != nil {
		return nil, err
	}
	for _, step := range []struct {
		typ     core.ApplicationType
		factory func(uint32) core.Application
	}{
		{core.AppTypeAssets, core.NewAssetsApp},
		{core.AppTypeAMM, core.NewAMMApp},
		{core.AppTypeMarketplace, core.NewMarketplaceApp},
		{core.AppTypeChat, core.NewChatApp},
	} {
		if err := rt.AddAppTemplate(step.typ, step.factory); err != nil {
			return nil, err
		}
		if _, err := rt.CreateInstance(step.typ); err != nil {
			return nil, err
		}
	}
	s.rt = rt
	return s, nil
}

func (s *server) persist() error {
	if err := s.appStore.SaveSnapshot(s.appSnap); err != nil {
		return err
	}
	return s.acctStore.SaveSnapshot(s.acctSnap)
}

type callRequest struct {
	Caller    string  `json:"caller"`
	AppID     uint32  `json:"app_id"`
	Selector  uint32  `json:"selector"`
	ParamsHex string  `json:"params_hex"`
	MaxGas    *uint64 `json:"max_gas,omitempty"`
	Bnum      uint64  `json:"bnum,omitempty"`
}

type callResponse struct {
	GasUsed uint64 `json:"gas_used"`
	GasCost uint64 `json:"gas_cost"`
	Error   string `json:"error,omitempty"`
}

var errInvalidAddress = fmt.Errorf("invalid address: want hex-encoded %d bytes", core.AddressLength)

func decodeAddr(h string) (core.Address, error) {
	var a core.Address
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != core.AddressLength {
		return a, errInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleExecute(dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		defer r.Body.Close()
		var req callRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		caller, err := decodeAddr(req.Caller)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params, err := hex.DecodeString(req.ParamsHex)
		if err != nil {
			http.Error(w, "invalid params_hex", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if req.Bnum != 0 {
			s.bnum = req.Bnum
		}
		gasUsed, gasCost, callErr := s.rt.Call(dryRun, caller, req.MaxGas, req.AppID, req.Selector, params)

		resp := callResponse{GasUsed: gasUsed, GasCost: gasCost}
		status := http.StatusOK
		if callErr != nil {
			resp.Error = callErr.Error()
			status = http.StatusUnprocessableEntity
		} else if !dryRun {
			if err := s.persist(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, status, resp)
	}
}

func (s *server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := decodeAddr(chi.URLParam(r, "addr"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	raw := s.rt.AccountStorage(addr)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"storage_hex": hex.EncodeToString(raw)})
}

func (s *server) handleApp(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid app id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	raw := s.rt.AppStorage(uint32(id))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"storage_hex": hex.EncodeToString(raw)})
}

func main() {
	pkgconfig.LoadConfig(envOr("MAM_ENV", ""))
	cfg := pkgconfig.AppConfig

	s, err := newServer()
	if err != nil {
		logrus.Fatalf("mamserver init: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Post("/v1/call", s.handleExecute(false))
	r.Post("/v1/dry-run", s.handleExecute(true))
	r.Get("/v1/accounts/{addr}", s.handleAccount)
	r.Get("/v1/apps/{id}", s.handleApp)

	addr := cfg.API.ListenAddr
	if addr == "" {
		addr = ":8585"
	}
	s.log.Printf("mamserver listening on %s", addr)
	s.log.Fatal(http.ListenAndServe(addr, r))
}
