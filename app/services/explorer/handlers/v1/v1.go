// Package v1 contains the full set of handler functions and routes
// supported by the explorer's v1 web api.
package v1

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bowlofstew/credo-core-node/app/services/explorer/handlers/v1/explorergrp"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/nameservice"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	Store *store.Store
	Names *nameservice.NameService
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	eg := explorergrp.Handlers{Store: cfg.Store, Names: cfg.Names}

	app.Handle(http.MethodGet, version, "/blocks/list", eg.QueryBlocks)
	app.Handle(http.MethodGet, version, "/blocks/list/:hash", eg.QueryBlock)
	app.Handle(http.MethodGet, version, "/miners/list", eg.QueryMiners)
	app.Handle(http.MethodGet, version, "/miners/list/:address", eg.QueryMiner)
	app.Handle(http.MethodGet, version, "/mempool/list", eg.QueryMempool)
}
