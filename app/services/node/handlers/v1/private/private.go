// Package private maintains the group of handlers reserved for node to
// node traffic: the peer handshake that seeds the known-peer set.
package private

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bowlofstew/credo-core-node/business/web/errs"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/node"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/peer"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// Handlers groups the node-to-node endpoints for this node.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
}

var errSelfConnection = errors.New("handshake carries this node's own session id")

// Connections handles a peer handshake: the caller identifies itself by
// host and session id, and this node replies with its own status and
// known-peer set, out of core scope but documented because it is how the
// miner set first learns about new participants.
func (h Handlers) Connections(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var hs peer.Handshake
	if err := web.Decode(r, &hs); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	status, ok, err := h.Node.Handshake(hs)
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}
	if !ok {
		return errs.NewTrusted(errSelfConnection, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}
