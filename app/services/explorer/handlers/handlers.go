// Package handlers manages the different versions of the explorer's API.
package handlers

import (
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"go.uber.org/zap"

	v1 "github.com/bowlofstew/credo-core-node/app/services/explorer/handlers/v1"
	"github.com/bowlofstew/credo-core-node/business/web/mid"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/nameservice"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// APIMuxConfig contains all the mandatory systems required by handlers.
type APIMuxConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	Store    *store.Store
	Names    *nameservice.NameService
}

// APIMux constructs a http.Handler with all application routes defined.
func APIMux(cfg APIMuxConfig) http.Handler {
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
		mid.Panics(),
	)

	v1.Routes(app, v1.Config{
		Log:   cfg.Log,
		Store: cfg.Store,
		Names: cfg.Names,
	})

	return app
}

// DebugStandardLibraryMux registers all the debug routes from the standard
// library into a new mux bypassing the use of the DefaultServerMux.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux registers all the debug standard library routes and then the
// liveness/readiness checks for this service.
func DebugMux(build string, s *store.Store) http.Handler {
	mux := DebugStandardLibraryMux()

	mux.HandleFunc("/debug/liveness", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Build string `json:"build"`
			Host  string `json:"host"`
		}{Build: build}
		status.Host, _ = os.Hostname()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/debug/readiness", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := s.Head(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(struct {
				Status string `json:"status"`
			}{Status: err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
		}{Status: "OK"})
	})

	return mux
}
