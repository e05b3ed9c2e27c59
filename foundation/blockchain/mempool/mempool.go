// Package mempool admits, validates, orders, and batches pending
// transactions on top of the Store's pending_transactions table. Unlike a
// cache kept purely in memory, every admitted transaction is durable the
// moment Admit returns, so mempool contents survive a restart.
package mempool

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/accounts"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

// Failure modes from §7's validation error kinds. AlreadyKnown is treated
// as idempotent success by Admit, not returned to the caller as an error.
var (
	ErrInvalidSignature    = errors.New("mempool: invalid signature")
	ErrNonceGap            = errors.New("mempool: nonce gap")
	ErrInsufficientBalance = errors.New("mempool: insufficient balance")
)

// Mempool is a thin validation and ordering layer over the Store's
// pending_transactions table.
type Mempool struct {
	store          *store.Store
	accounts       *accounts.View
	targetPerBlock int
}

// New constructs a Mempool backed by s, using view to check sender
// nonce/balance, and targeting targetPerBlock transactions per assembled
// block (TARGET_TXS_PER_BLOCK).
func New(s *store.Store, view *accounts.View, targetPerBlock int) *Mempool {
	return &Mempool{store: s, accounts: view, targetPerBlock: targetPerBlock}
}

// Admit validates and durably stores t. A duplicate hash is treated as
// success (idempotent); an invalid signature is rejected outright. Nonce
// gaps and insufficient balance are not rejected here — those are
// liveness conditions that may resolve as the mempool accepts more
// transactions, so the tx is kept and simply excluded from batches until
// valid_tx? holds.
func (m *Mempool) Admit(t tx.Tx) error {
	if err := t.ValidateSignature(); err != nil {
		return ErrInvalidSignature
	}

	hash, err := t.Hash()
	if err != nil {
		return ErrInvalidSignature
	}

	if _, err := t.Sender(); err != nil {
		return ErrInvalidSignature
	}

	if _, err := m.store.GetPendingTx(hash); err == nil {
		return nil // AlreadyKnown: idempotent success.
	}

	return m.store.WritePendingTx(hash, t)
}

// ValidTx reports whether t is currently eligible for inclusion in a
// block: its nonce must be exactly the sender's next nonce, and the
// sender's balance must strictly exceed the value being sent (fee
// sufficiency is checked again at block-apply time).
func (m *Mempool) ValidTx(t tx.Tx) (bool, error) {
	sender, err := t.Sender()
	if err != nil {
		return false, err
	}

	state, err := m.accounts.AccountState(sender, nil)
	if err != nil {
		return false, err
	}

	if t.Nonce != state.Nonce+1 {
		return false, ErrNonceGap
	}
	if !state.Balance.GreaterThan(t.Value) {
		return false, ErrInsufficientBalance
	}

	return true, nil
}

// Batch returns a snapshot of the mempool sorted by fee descending (ties
// broken by hash ascending for determinism across nodes), taking up to
// targetPerBlock transactions for which ValidTx holds. Transactions that
// fail ValidTx are skipped and remain in the mempool.
func (m *Mempool) Batch() ([]tx.Tx, error) {
	all, err := m.store.ListPendingTxs(store.DefaultListLimit)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		tx   tx.Tx
		hash [32]byte
	}

	candidates := make([]candidate, 0, len(all))
	for _, t := range all {
		hash, err := t.Hash()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{tx: t, hash: hash})
	}

	sort.Slice(candidates, func(i, j int) bool {
		cmp := candidates[i].tx.Fee.Cmp(candidates[j].tx.Fee)
		if cmp != 0 {
			return cmp > 0
		}
		return bytesLess(candidates[i].hash[:], candidates[j].hash[:])
	})

	var batch []tx.Tx
	for _, c := range candidates {
		if len(batch) >= m.targetPerBlock {
			break
		}
		ok, err := m.ValidTx(c.tx)
		if err != nil {
			// A sender-derivation or store failure is fatal; a nonce-gap or
			// balance sentinel just means this candidate is skipped.
			if !errors.Is(err, ErrNonceGap) && !errors.Is(err, ErrInsufficientBalance) {
				return nil, err
			}
			continue
		}
		if ok {
			batch = append(batch, c.tx)
		}
	}

	return batch, nil
}

// Unmined reports whether t's hash appears in no block up to head, i.e. it
// still genuinely belongs in the mempool rather than having already been
// confirmed.
func (m *Mempool) Unmined(t tx.Tx) (bool, error) {
	hash, err := t.Hash()
	if err != nil {
		return false, err
	}

	head, ok, err := m.store.Head()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	chain, err := m.store.ListPrecedingBlocks(head)
	if err != nil {
		return false, err
	}

	for _, block := range chain {
		body, err := m.store.GetBody(block.Hash, block.Header.TxRoot)
		if err != nil {
			return false, err
		}
		for _, bt := range body {
			bh, err := bt.Hash()
			if err != nil {
				return false, err
			}
			if bh == hash {
				return false, nil
			}
		}
	}

	return true, nil
}

// Evict removes t from the mempool table, called once the block
// containing it has been committed.
func (m *Mempool) Evict(t tx.Tx) error {
	hash, err := t.Hash()
	if err != nil {
		return err
	}
	return m.store.DeletePendingTx(hash)
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
