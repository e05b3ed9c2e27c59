// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bowlofstew/credo-core-node/app/services/node/handlers/v1/private"
	"github.com/bowlofstew/credo-core-node/app/services/node/handlers/v1/public"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/node"
	"github.com/bowlofstew/credo-core-node/foundation/events"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

const tempGroup = "node_api/v1/temp"
const connGroup = "node_api/v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	Evts *events.Events
}

// PublicRoutes binds the routes reachable from outside the cluster:
// submitting pending transactions and votes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:  cfg.Log,
		Node: cfg.Node,
		Evts: cfg.Evts,
	}

	app.Handle(http.MethodPost, tempGroup, "/pending_transactions", pbl.PendingTransaction)
	app.Handle(http.MethodPost, tempGroup, "/votes", pbl.Vote)
	app.Handle(http.MethodGet, tempGroup, "/miners/:address", pbl.Miner)
	if cfg.Evts != nil {
		app.Handle(http.MethodGet, tempGroup, "/events", pbl.Events)
	}
}

// PrivateRoutes binds the node-to-node routes: the peer handshake.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:  cfg.Log,
		Node: cfg.Node,
	}

	app.Handle(http.MethodPost, connGroup, "/connections", prv.Connections)
}
