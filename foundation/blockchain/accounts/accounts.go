// Package accounts is a pure-function view over the confirmed chain: given
// an address, it derives the nonce and balance that address would have at
// any block, by replaying every transaction in every preceding block. It
// owns no mutable state of its own; the Store's blocks table is the only
// source of truth.
package accounts

import (
	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/genesis"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

// State is a snapshot of one address's nonce and balance at a given block,
// bundled together so a single validation pass only has to replay the
// chain once per sender.
type State struct {
	Address crypto.Address
	Nonce   uint64
	Balance decimal.Decimal
}

// View replays the confirmed chain on demand to answer nonce/balance
// queries. It holds a reference to Store and the genesis opening balances;
// it caches nothing across calls, trading recomputation for the guarantee
// that its answers are always consistent with whatever Store currently
// holds.
type View struct {
	store   *store.Store
	genesis genesis.Genesis
}

// New constructs a View over s, seeded with g's opening balances.
func New(s *store.Store, g genesis.Genesis) *View {
	return &View{store: s, genesis: g}
}

// AccountState replays the chain up to and including atBlock (or the
// current head, if atBlock is nil) and returns addr's nonce and balance.
func (v *View) AccountState(addr crypto.Address, atBlock *store.Block) (State, error) {
	chain, err := v.chainUpTo(atBlock)
	if err != nil {
		return State{}, err
	}

	state := State{
		Address: addr,
		Nonce:   0,
		Balance: v.genesis.BalanceOf(addr),
	}

	// chain is head-first; replay it oldest-first so nonces and balances
	// accumulate in chronological order.
	for i := len(chain) - 1; i >= 0; i-- {
		block := chain[i]
		if block.Header.Number == 0 {
			continue
		}

		body, err := v.store.GetBody(block.Hash, block.Header.TxRoot)
		if err != nil {
			return State{}, errors.Wrapf(err, "loading body for block %d", block.Header.Number)
		}

		for _, t := range body {
			if err := v.apply(&state, addr, t); err != nil {
				return State{}, err
			}
		}
	}

	return state, nil
}

// Nonce is a convenience wrapper over AccountState for callers that only
// need the nonce.
func (v *View) Nonce(addr crypto.Address, atBlock *store.Block) (uint64, error) {
	s, err := v.AccountState(addr, atBlock)
	if err != nil {
		return 0, err
	}
	return s.Nonce, nil
}

// Balance is a convenience wrapper over AccountState for callers that only
// need the balance.
func (v *View) Balance(addr crypto.Address, atBlock *store.Block) (decimal.Decimal, error) {
	s, err := v.AccountState(addr, atBlock)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return s.Balance, nil
}

func (v *View) chainUpTo(atBlock *store.Block) ([]store.Block, error) {
	var head store.Block
	if atBlock != nil {
		head = *atBlock
	} else {
		h, ok, err := v.store.Head()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		head = h
	}

	if head.Header.Number == 0 {
		return nil, nil
	}
	return v.store.ListPrecedingBlocks(head)
}

// apply folds a single confirmed transaction's effect on addr's nonce and
// balance: a sender has its nonce incremented and value+fee debited; a
// recipient (including a coinbase beneficiary) has value credited; a slash
// has no direct balance effect here (the Slasher mutates Miner.StakeAmount
// in the miners table, not an account balance).
func (v *View) apply(state *State, addr crypto.Address, t tx.Tx) error {
	txType, err := t.Type()
	if err != nil {
		return err
	}

	if txType == tx.TypeCoinbase {
		if t.To.Equal(addr) {
			state.Balance = state.Balance.Add(t.Value)
		}
		return nil
	}

	sender, err := t.Sender()
	if err != nil {
		return err
	}

	if sender.Equal(addr) {
		state.Nonce++
		state.Balance = state.Balance.Sub(t.Value).Sub(t.Fee)
	}
	if t.To.Equal(addr) {
		state.Balance = state.Balance.Add(t.Value)
	}

	return nil
}
