// Package explorergrp maintains the group of handlers for read-only
// inspection of a node's store: confirmed blocks, registered miners, and
// the current mempool.
package explorergrp

import (
	"context"
	"net/http"
	"sort"

	"github.com/bowlofstew/credo-core-node/business/web/errs"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/nameservice"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// Handlers manages the set of explorer endpoints. Store is opened
// read-only so an explorer can run alongside the node process that owns
// the database file. Names is optional; when nil, miner addresses are
// reported without a label.
type Handlers struct {
	Store *store.Store
	Names *nameservice.NameService
}

func (h Handlers) name(addr crypto.Address) string {
	if h.Names == nil {
		return ""
	}
	return h.Names.Lookup(addr)
}

// QueryBlocks returns every confirmed block, newest first.
func (h Handlers) QueryBlocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks, err := h.Store.ListBlocks(store.DefaultListLimit)
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Header.Number > blocks[j].Header.Number
	})

	out := make([]block, len(blocks))
	for i, b := range blocks {
		out[i] = toBlock(b)
	}

	return web.Respond(ctx, w, out, http.StatusOK)
}

// QueryBlock returns the confirmed block named by the "hash" path
// parameter.
func (h Handlers) QueryBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := parseHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	b, err := h.Store.GetBlock(hash)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlock(b), http.StatusOK)
}

// QueryMiners returns every registered miner and its current stake and
// participation rate.
func (h Handlers) QueryMiners(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	miners, err := h.Store.ListMiners()
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}

	out := make([]miner, len(miners))
	for i, m := range miners {
		out[i] = miner{
			Address:           m.Address.String(),
			Name:              h.name(m.Address),
			StakeAmount:       m.StakeAmount.String(),
			ParticipationRate: m.ParticipationRate.String(),
		}
	}

	return web.Respond(ctx, w, out, http.StatusOK)
}

// QueryMiner returns the miner registered at the "address" path parameter.
func (h Handlers) QueryMiner(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := crypto.ParseAddress(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	m, err := h.Store.GetMiner(addr)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, miner{
		Address:           m.Address.String(),
		Name:              h.name(m.Address),
		StakeAmount:       m.StakeAmount.String(),
		ParticipationRate: m.ParticipationRate.String(),
	}, http.StatusOK)
}

// QueryMempool returns every transaction currently pending admission into
// a block.
func (h Handlers) QueryMempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending, err := h.Store.ListPendingTxs(store.DefaultListLimit)
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}

	out := make([]pendingTx, len(pending))
	for i, t := range pending {
		hash, err := t.Hash()
		if err != nil {
			return errs.NewTrusted(err, http.StatusInternalServerError)
		}
		txType, err := t.Type()
		if err != nil {
			return errs.NewTrusted(err, http.StatusInternalServerError)
		}
		out[i] = pendingTx{
			Hash:   hexString(hash),
			To:     t.To.String(),
			Value:  t.Value.String(),
			Fee:    t.Fee.String(),
			TxType: txType,
		}
	}

	return web.Respond(ctx, w, out, http.StatusOK)
}
