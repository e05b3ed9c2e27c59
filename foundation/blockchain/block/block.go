// Package block assembles candidate blocks (pending blocks) out of a
// mempool batch: it links to the current head, computes the transaction
// trie root, mints the proposer's coinbase payment, and calls out to an
// external world-state function for the state root. It does not decide
// which pending block wins a vote; that is the vote package's job.
package block

import (
	"crypto/ecdsa"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/trie"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

// ErrEmptyBatch is returned by Assemble when handed no transactions; a
// block is never assembled for an empty mempool, there is nothing for the
// proposer to collect a coinbase fee from.
var ErrEmptyBatch = errors.New("block: cannot assemble from an empty batch")

// StateRootFunc computes the world-state root that would result from
// applying txs. The state trie computation itself is an external
// collaborator; this package only calls out to it and propagates its
// error.
type StateRootFunc func(txs []tx.Tx) ([32]byte, error)

// coinbaseFee is the fixed fee attached to the proposer's own coinbase
// transaction (§4.9): it does not compete for block space against the fee
// market, so it is exempt from the usual "sender balance covers fee" check
// applied to ordinary transactions.
var coinbaseFee = decimal.MustParse("1.0")

// Assemble builds a PendingBlockHeader on top of s's current head: it
// appends exactly one coinbase transaction paying the sum of batch's fees
// to proposer, computes the tx_root over the resulting ordering via an
// in-memory trie, calls stateRoot for the state_root, and returns the
// assembled header together with its body still attached. Callers must
// call Persist before the header is visible to anyone else.
func Assemble(s *store.Store, batch []tx.Tx, proposer crypto.Address, proposerKey *ecdsa.PrivateKey, stateRoot StateRootFunc) (store.PendingBlockHeader, error) {
	if len(batch) == 0 {
		return store.PendingBlockHeader{}, ErrEmptyBatch
	}

	coinbase, err := mintCoinbase(batch, proposer, proposerKey)
	if err != nil {
		return store.PendingBlockHeader{}, errors.Wrap(err, "minting coinbase")
	}

	body := make([]tx.Tx, 0, len(batch)+1)
	body = append(body, batch...)
	body = append(body, coinbase)

	number, prevHash, err := nextLinkage(s)
	if err != nil {
		return store.PendingBlockHeader{}, err
	}

	encoded := make([][]byte, len(body))
	for i, t := range body {
		data, err := t.Encode()
		if err != nil {
			return store.PendingBlockHeader{}, errors.Wrapf(err, "encoding tx %d", i)
		}
		encoded[i] = data
	}
	txRoot, nodes := trie.BuildIndexed(encoded)

	stateRootHash, err := stateRoot(body)
	if err != nil {
		return store.PendingBlockHeader{}, errors.Wrap(err, "computing state root")
	}

	header := store.Header{
		Number:    number,
		PrevHash:  prevHash,
		StateRoot: stateRootHash,
		TxRoot:    txRoot,
		Proposer:  proposer,
		Timestamp: uint64(time.Now().Unix()),
	}
	hash, err := header.Hash()
	if err != nil {
		return store.PendingBlockHeader{}, errors.Wrap(err, "hashing header")
	}

	pending := store.PendingBlockHeader{
		Header: header,
		Hash:   hash,
		Body:   body,
	}

	if err := s.PersistBody(hash, nodes); err != nil {
		return store.PendingBlockHeader{}, errors.Wrap(err, "persisting body trie")
	}

	return pending, nil
}

// Persist writes pending's header row to the pending_blocks table. The
// Store itself strips Body before encoding, since a pending block's
// transactions live only in the trie namespace PersistBody already wrote
// to during Assemble.
func Persist(s *store.Store, pending store.PendingBlockHeader) error {
	return s.WritePendingBlockHeader(pending)
}

// nextLinkage finds the current head and returns the number and prev_hash
// a newly assembled block should carry: one past the head's number,
// linked to the head's hash, or the genesis sentinel (number 1, zero
// prev_hash) if no block has been confirmed yet.
func nextLinkage(s *store.Store) (uint64, [32]byte, error) {
	head, ok, err := s.Head()
	if err != nil {
		return 0, [32]byte{}, errors.Wrap(err, "reading head")
	}
	if !ok {
		return 1, [32]byte{}, nil
	}
	return head.Header.Number + 1, head.Hash, nil
}

// mintCoinbase builds and signs the proposer's fee-collection transaction:
// exactly one per block, value equal to the sum of batch's fees, tagged
// tx_type=coinbase, placed last in the body by the caller.
func mintCoinbase(batch []tx.Tx, proposer crypto.Address, proposerKey *ecdsa.PrivateKey) (tx.Tx, error) {
	total := decimal.Zero()
	for _, t := range batch {
		total = total.Add(t.Fee)
	}

	data, err := json.Marshal(struct {
		TxType string `json:"tx_type"`
	}{tx.TypeCoinbase})
	if err != nil {
		return tx.Tx{}, err
	}

	coinbase := tx.New(0, proposer, total, coinbaseFee, data)
	return coinbase.Sign(proposerKey)
}

// ValidateCoinbase checks §4.9's validator rule: body's last transaction
// must be a coinbase tagged tx whose value equals the sum of every other
// (non-coinbase) transaction's fee in the same body.
func ValidateCoinbase(body []tx.Tx) error {
	if len(body) == 0 {
		return errors.New("block: empty body has no coinbase")
	}

	last := body[len(body)-1]
	lastType, err := last.Type()
	if err != nil {
		return errors.Wrap(err, "reading coinbase type")
	}
	if lastType != tx.TypeCoinbase {
		return errors.New("block: last transaction is not a coinbase")
	}

	total := decimal.Zero()
	for _, t := range body[:len(body)-1] {
		txType, err := t.Type()
		if err != nil {
			return errors.Wrap(err, "reading tx type")
		}
		if txType == tx.TypeCoinbase {
			return errors.New("block: more than one coinbase transaction")
		}
		total = total.Add(t.Fee)
	}

	if last.Value.Cmp(total) != 0 {
		return errors.New("block: coinbase value does not equal sum of fees")
	}

	return nil
}
