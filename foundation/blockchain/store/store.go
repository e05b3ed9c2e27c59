// Package store is the persistence boundary for the node: six typed
// key/value tables (pending_transactions, pending_blocks, blocks, votes,
// miners, slashes) plus a namespace of Merkle-Patricia tries, one per
// pending block, holding that block's transaction body. It is backed by a
// single embedded bbolt database file so every write that returns ok is
// already durable on disk.
package store

import (
	"encoding/hex"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/codec"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/trie"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

var (
	bucketPendingTransactions = []byte("pending_transactions")
	bucketPendingBlocks       = []byte("pending_blocks")
	bucketBlocks              = []byte("blocks")
	bucketVotes               = []byte("votes")
	bucketMiners              = []byte("miners")
	bucketTrieRoot            = []byte("pending_block_tries")
	bucketSlashes             = []byte("slashes")
)

// ErrNotFound is returned when a get/delete targets a key absent from its
// table.
var ErrNotFound = errors.New("store: not found")

// DefaultListLimit is the @default_pending_transaction_query_limit from the
// source this was distilled from; it bounds every unqualified `list` call.
const DefaultListLimit = 2000

// Header is the common envelope shared by a pending and a confirmed block:
// enough to link it into the chain and to recompute its hash. Proposer and
// Timestamp are informational only — set by block.Assemble, surfaced to
// callers inspecting a block, but deliberately excluded from Hash so the
// block's identity depends only on its content and its position in the
// chain, not on when or by whom it was assembled.
type Header struct {
	Number      uint64
	PrevHash    [32]byte
	StateRoot   [32]byte
	ReceiptRoot [32]byte
	TxRoot      [32]byte
	Proposer    crypto.Address
	Timestamp   uint64
}

// Hash returns H(rlp([prev_hash, number, state_root, receipt_root,
// tx_root])), the block's identity.
func (h Header) Hash() ([32]byte, error) {
	return codec.Hash(struct {
		PrevHash    [32]byte
		Number      uint64
		StateRoot   [32]byte
		ReceiptRoot [32]byte
		TxRoot      [32]byte
	}{h.PrevHash, h.Number, h.StateRoot, h.ReceiptRoot, h.TxRoot})
}

// pendingBlockHeaderWire is what actually gets persisted for a
// PendingBlockHeader row: the in-memory Body never touches the header
// table, so it has no place in the wire encoding.
type pendingBlockHeaderWire struct {
	Header Header
	Hash   [32]byte
}

// PendingBlockHeader is the row stored in the pending_blocks table. Body is
// populated only while the block is still in-memory, freshly assembled; it
// is never itself persisted in this row — block.Assemble writes it into
// the trie namespace via PersistBody, and a header read back from this
// table has an empty Body.
type PendingBlockHeader struct {
	Header Header
	Hash   [32]byte
	Body   []tx.Tx
}

// Block is a confirmed PendingBlock: immutable once written, carrying the
// round at which it reached supermajority.
type Block struct {
	Header      Header
	Hash        [32]byte
	VotingRound uint32
}

// Vote is a signed ballot cast by a registered miner for a candidate block
// at a given height and round.
type Vote struct {
	MinerAddress crypto.Address
	BlockNumber  uint64
	BlockHash    [32]byte
	VotingRound  uint32
	V            uint8
	R            [32]byte
	S            [32]byte
}

func (v Vote) unsigned() any {
	return struct {
		MinerAddress crypto.Address
		BlockNumber  uint64
		BlockHash    [32]byte
		VotingRound  uint32
	}{v.MinerAddress, v.BlockNumber, v.BlockHash, v.VotingRound}
}

// SigningHash is what gets signed and later used to recover the voter.
func (v Vote) SigningHash() ([32]byte, error) {
	return codec.Hash(v.unsigned())
}

// Hash is the vote's own identity, used for deduplication.
func (v Vote) Hash() ([32]byte, error) {
	return codec.Hash(v)
}

// Miner is a registered stake-weighted voter. Amounts round-trip through
// their canonical decimal string so storage never depends on Decimal's
// internal representation.
type Miner struct {
	Address           crypto.Address
	StakeAmount       decimal.Decimal
	InsertedAtUnix    uint64
	ParticipationRate decimal.Decimal
}

// InsertedAt returns InsertedAtUnix as a time.Time for callers that need
// duration arithmetic (e.g. the vote manager's warm-up check).
func (m Miner) InsertedAt() time.Time {
	return time.Unix(int64(m.InsertedAtUnix), 0).UTC()
}

// =============================================================================

// Store wraps a single bbolt database file and exposes the six typed
// tables plus the pending-block trie namespace.
type Store struct {
	db *bolt.DB
}

// Open creates (if needed) and opens the bbolt file at path, ensuring every
// table bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}

	err = db.Update(func(btx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPendingTransactions, bucketPendingBlocks, bucketBlocks, bucketVotes, bucketMiners, bucketTrieRoot, bucketSlashes} {
			if _, err := btx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "create bucket %s", b)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens the bbolt file at path for read-only access, allowing
// a second process (an explorer or CLI, never the owning node) to inspect
// the same file a running node holds open for writes.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "opening store read-only")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// pending_transactions[hash -> Tx]

// WritePendingTx admits tx into the mempool table, keyed by its hash.
func (s *Store) WritePendingTx(hash [32]byte, t tx.Tx) error {
	data, err := t.Encode()
	if err != nil {
		return errors.Wrap(err, "encoding tx")
	}
	return s.put(bucketPendingTransactions, hash[:], data)
}

// GetPendingTx returns the mempool entry for hash.
func (s *Store) GetPendingTx(hash [32]byte) (tx.Tx, error) {
	data, err := s.get(bucketPendingTransactions, hash[:])
	if err != nil {
		return tx.Tx{}, err
	}
	return tx.Decode(data)
}

// DeletePendingTx removes hash from the mempool table, typically once a
// block containing it has been committed.
func (s *Store) DeletePendingTx(hash [32]byte) error {
	return s.delete(bucketPendingTransactions, hash[:])
}

// ListPendingTxs returns up to limit mempool transactions; limit <= 0 means
// DefaultListLimit.
func (s *Store) ListPendingTxs(limit int) ([]tx.Tx, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []tx.Tx
	err := s.db.View(func(btx *bolt.Tx) error {
		c := btx.Bucket(bucketPendingTransactions).Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			t, err := tx.Decode(v)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

// =============================================================================
// pending_blocks[hash -> PendingBlockHeader]

// WritePendingBlockHeader writes only the header row; Body is moved into
// the trie namespace by PersistBody, not carried here.
func (s *Store) WritePendingBlockHeader(h PendingBlockHeader) error {
	data, err := codec.Encode(pendingBlockHeaderWire{Header: h.Header, Hash: h.Hash})
	if err != nil {
		return err
	}
	return s.put(bucketPendingBlocks, h.Hash[:], data)
}

// GetPendingBlockHeader returns the pending block header keyed by hash. Its
// Body is left empty; fetch it separately via GetBody.
func (s *Store) GetPendingBlockHeader(hash [32]byte) (PendingBlockHeader, error) {
	data, err := s.get(bucketPendingBlocks, hash[:])
	if err != nil {
		return PendingBlockHeader{}, err
	}
	var w pendingBlockHeaderWire
	if err := codec.Decode(data, &w); err != nil {
		return PendingBlockHeader{}, err
	}
	return PendingBlockHeader{Header: w.Header, Hash: w.Hash}, nil
}

// DeletePendingBlockHeader removes a pending block header, used by the
// garbage collector once its height is below the last irreversible block.
func (s *Store) DeletePendingBlockHeader(hash [32]byte) error {
	return s.delete(bucketPendingBlocks, hash[:])
}

// ListPendingBlockHeaders returns up to limit pending block headers at the
// given height, used by the vote manager to pick round>0 candidates.
func (s *Store) ListPendingBlockHeaders(number uint64, limit int) ([]PendingBlockHeader, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []PendingBlockHeader
	err := s.db.View(func(btx *bolt.Tx) error {
		c := btx.Bucket(bucketPendingBlocks).Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			var w pendingBlockHeaderWire
			if err := codec.Decode(v, &w); err != nil {
				return err
			}
			if w.Header.Number == number {
				out = append(out, PendingBlockHeader{Header: w.Header, Hash: w.Hash})
			}
		}
		return nil
	})
	return out, err
}

// =============================================================================
// blocks[hash -> Block]

// WriteBlock persists a confirmed block. Once written a block is never
// mutated or deleted.
func (s *Store) WriteBlock(b Block) error {
	data, err := codec.Encode(b)
	if err != nil {
		return err
	}
	return s.put(bucketBlocks, b.Hash[:], data)
}

// GetBlock returns the confirmed block with the given hash.
func (s *Store) GetBlock(hash [32]byte) (Block, error) {
	data, err := s.get(bucketBlocks, hash[:])
	if err != nil {
		return Block{}, err
	}
	var b Block
	if err := codec.Decode(data, &b); err != nil {
		return Block{}, err
	}
	return b, nil
}

// ListBlocks returns up to limit confirmed blocks, in no particular order;
// callers that need height order should sort the result.
func (s *Store) ListBlocks(limit int) ([]Block, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []Block
	err := s.db.View(func(btx *bolt.Tx) error {
		c := btx.Bucket(bucketBlocks).Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			var b Block
			if err := codec.Decode(v, &b); err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

// Head returns the confirmed block with the highest Number, or ok=false if
// the chain is still at genesis.
func (s *Store) Head() (Block, bool, error) {
	blocks, err := s.ListBlocks(DefaultListLimit)
	if err != nil {
		return Block{}, false, err
	}

	var head Block
	var found bool
	for _, b := range blocks {
		if !found || b.Header.Number > head.Header.Number {
			head = b
			found = true
		}
	}
	return head, found, nil
}

// ListPrecedingBlocks walks prev_hash starting at block back to the block
// whose prev_hash is the zero hash (genesis, which is never itself a
// stored row), returning the chain in descending-height order (block
// first, the oldest confirmed block last).
func (s *Store) ListPrecedingBlocks(block Block) ([]Block, error) {
	var zero [32]byte
	chain := []Block{block}
	cur := block
	for cur.Header.PrevHash != zero {
		prev, err := s.GetBlock(cur.Header.PrevHash)
		if err != nil {
			return nil, errors.Wrap(err, "walking prev_hash")
		}
		chain = append(chain, prev)
		cur = prev
	}
	return chain, nil
}

// =============================================================================
// votes[hash -> Vote]

// WriteVote persists a vote, keyed by its own content hash.
func (s *Store) WriteVote(hash [32]byte, v Vote) error {
	data, err := codec.Encode(v)
	if err != nil {
		return err
	}
	return s.put(bucketVotes, hash[:], data)
}

// GetVote returns the vote with the given hash.
func (s *Store) GetVote(hash [32]byte) (Vote, error) {
	data, err := s.get(bucketVotes, hash[:])
	if err != nil {
		return Vote{}, err
	}
	var v Vote
	if err := codec.Decode(data, &v); err != nil {
		return Vote{}, err
	}
	return v, nil
}

// ListVotesForRound returns every persisted vote for the given (height,
// round), in the byte order of their vote-hash keys.
//
// bbolt's cursor walks keys in byte-sorted order, not insertion order; the
// vote hash keys used here have no relation to arrival time, so this alone
// does not reconstruct insertion order. Callers that need it (the vote
// manager) keep their own per-height append log in memory and use this only
// to recover state after a restart.
func (s *Store) ListVotesForRound(blockNumber uint64, round uint32) ([]Vote, error) {
	var out []Vote
	err := s.db.View(func(btx *bolt.Tx) error {
		c := btx.Bucket(bucketVotes).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var vote Vote
			if err := codec.Decode(v, &vote); err != nil {
				return err
			}
			if vote.BlockNumber == blockNumber && vote.VotingRound == round {
				out = append(out, vote)
			}
		}
		return nil
	})
	return out, err
}

// =============================================================================
// miners[address -> Miner]

// WriteMiner persists a miner's registration or updated stake/participation.
func (s *Store) WriteMiner(m Miner) error {
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	return s.put(bucketMiners, m.Address[:], data)
}

// GetMiner returns the miner registered at addr.
func (s *Store) GetMiner(addr crypto.Address) (Miner, error) {
	data, err := s.get(bucketMiners, addr[:])
	if err != nil {
		return Miner{}, err
	}
	var m Miner
	if err := codec.Decode(data, &m); err != nil {
		return Miner{}, err
	}
	return m, nil
}

// ListMiners returns every registered miner.
func (s *Store) ListMiners() ([]Miner, error) {
	var out []Miner
	err := s.db.View(func(btx *bolt.Tx) error {
		c := btx.Bucket(bucketMiners).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m Miner
			if err := codec.Decode(v, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// =============================================================================
// slashes[key -> SlashRecord]

// SlashRecord marks that an equivocation proof against Offender at
// (BlockNumber, VotingRound) has already been applied, so the slasher can
// treat applying a slash as idempotent per (offender, height, round).
type SlashRecord struct {
	Offender    crypto.Address
	BlockNumber uint64
	VotingRound uint32
}

func (r SlashRecord) key() ([32]byte, error) {
	return codec.Hash(r)
}

// WriteSlash records that r has been applied.
func (s *Store) WriteSlash(r SlashRecord) error {
	key, err := r.key()
	if err != nil {
		return err
	}
	return s.put(bucketSlashes, key[:], []byte{1})
}

// HasSlash reports whether r has already been applied.
func (s *Store) HasSlash(r SlashRecord) (bool, error) {
	key, err := r.key()
	if err != nil {
		return false, err
	}
	_, err = s.get(bucketSlashes, key[:])
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// pending_blocks/<block_hash> trie namespace

// trieStore adapts a bolt sub-bucket scoped to one block hash into a
// trie.NodeStore.
type trieStore struct {
	db        *bolt.DB
	namespace []byte
}

func (t trieStore) Get(hash [32]byte) ([]byte, bool) {
	var data []byte
	_ = t.db.View(func(btx *bolt.Tx) error {
		root := btx.Bucket(bucketTrieRoot)
		b := root.Bucket(t.namespace)
		if b == nil {
			return nil
		}
		if v := b.Get(hash[:]); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, data != nil
}

func (t trieStore) Put(hash [32]byte, data []byte) {
	_ = t.db.Update(func(btx *bolt.Tx) error {
		b, err := btx.Bucket(bucketTrieRoot).CreateBucketIfNotExists(t.namespace)
		if err != nil {
			return err
		}
		return b.Put(hash[:], data)
	})
}

// PersistBody writes every trie node for a pending block's body into the
// namespace keyed by that block's hash, making the body durably fetchable
// by root via GetBody.
func (s *Store) PersistBody(blockHash [32]byte, nodes map[[32]byte][]byte) error {
	ns := []byte(hex.EncodeToString(blockHash[:]))
	return s.db.Update(func(btx *bolt.Tx) error {
		b, err := btx.Bucket(bucketTrieRoot).CreateBucketIfNotExists(ns)
		if err != nil {
			return err
		}
		for h, data := range nodes {
			if err := b.Put(h[:], data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBody reconstructs the ordered transaction list for blockHash out of
// its trie namespace, given the block's tx_root.
func (s *Store) GetBody(blockHash [32]byte, txRoot [32]byte) ([]tx.Tx, error) {
	ns := []byte(hex.EncodeToString(blockHash[:]))
	items, err := trie.Items(trieStore{db: s.db, namespace: ns}, txRoot)
	if err != nil {
		if err == trie.ErrNodeMissing {
			return nil, errors.Wrap(err, "pending block body pruned")
		}
		return nil, err
	}

	out := make([]tx.Tx, 0, len(items))
	for _, data := range items {
		t, err := tx.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteBody drops the trie namespace for blockHash entirely, used by the
// garbage collector once a pending block falls behind the last
// irreversible block.
func (s *Store) DeleteBody(blockHash [32]byte) error {
	ns := []byte(hex.EncodeToString(blockHash[:]))
	return s.db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(bucketTrieRoot)
		if b.Bucket(ns) == nil {
			return nil
		}
		return b.DeleteBucket(ns)
	})
}

// =============================================================================

func (s *Store) put(bucket, key, value []byte) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(bucket).Put(key, value)
	})
}

func (s *Store) get(bucket, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(btx *bolt.Tx) error {
		v := btx.Bucket(bucket).Get(key)
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(bucket).Delete(key)
	})
}
