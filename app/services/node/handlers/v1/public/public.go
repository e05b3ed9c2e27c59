// Package public holds the handlers reachable from outside the cluster:
// submitting pending transactions and votes into this node.
package public

import (
	"context"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/codec"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/mempool"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/node"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/vote"
	"github.com/bowlofstew/credo-core-node/business/web/errs"
	"github.com/bowlofstew/credo-core-node/foundation/events"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// Handlers groups the public endpoints for this node.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	Evts *events.Events
	WS   websocket.Upgrader
}

// envelope is the wire shape both ingress endpoints share: a claimed hash
// plus the hex-encoded RLP body it should hash to.
type envelope struct {
	Hash string `json:"hash" validate:"required,len=64,hexadecimal"`
	Body string `json:"body" validate:"required,hexadecimal"`
}

var errHashMismatch = errors.New("claimed hash does not match the decoded body")

// PendingTransaction accepts a single signed transaction and admits it
// into the mempool. A malformed envelope is rejected with 400; the
// mempool itself treats a duplicate as idempotent success.
func (h Handlers) PendingTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var env envelope
	if err := web.Decode(r, &env); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	data, err := hex.DecodeString(env.Body)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	t, err := tx.Decode(data)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	hash, err := t.Hash()
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	if hex.EncodeToString(hash[:]) != env.Hash {
		return errs.NewTrusted(errHashMismatch, http.StatusBadRequest)
	}

	if err := h.Node.SubmitTx(t); err != nil {
		if err == mempool.ErrInvalidSignature {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return errs.NewTrusted(err, http.StatusConflict)
	}

	return web.Respond(ctx, w, nil, http.StatusOK)
}

// Miner returns the stake amount and participation rate this node has on
// record for the account named by the "address" path parameter. An unknown
// address is reported as 404.
func (h Handlers) Miner(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := crypto.ParseAddress(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	m, err := h.Node.Store().GetMiner(addr)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	info := minerInfo{
		Address:           m.Address.String(),
		StakeAmount:       m.StakeAmount.String(),
		ParticipationRate: m.ParticipationRate.String(),
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// Vote accepts a single signed vote and hands it to the node's voting
// state machine, including the equivocation check. A signer mismatch, or
// a vote from a miner this node has never registered, is reported as 403.
func (h Handlers) Vote(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var env envelope
	if err := web.Decode(r, &env); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	data, err := hex.DecodeString(env.Body)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	var v store.Vote
	if err := codec.Decode(data, &v); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	hash, err := v.Hash()
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	if hex.EncodeToString(hash[:]) != env.Hash {
		return errs.NewTrusted(errHashMismatch, http.StatusBadRequest)
	}

	if err := h.Node.SubmitVote(v); err != nil {
		if err == vote.ErrUnknownMiner {
			return errs.NewTrusted(err, http.StatusForbidden)
		}
		return errs.NewTrusted(err, http.StatusForbidden)
	}

	return web.Respond(ctx, w, nil, http.StatusOK)
}

// Events upgrades the connection to a websocket and streams this node's
// round and commit events to the caller until it disconnects. Events are
// broadcast at most once per registered receiver; nothing is buffered
// before Acquire or replayed after Release.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return nil
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}
