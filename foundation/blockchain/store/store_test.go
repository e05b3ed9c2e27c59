package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/trie"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

func open(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPendingTxWriteGetDelete(t *testing.T) {
	s := open(t)

	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	txn := tx.New(1, to, decimal.MustParse("10"), decimal.MustParse("1"), nil)
	hash, err := txn.Hash()
	require.NoError(t, err)

	require.NoError(t, s.WritePendingTx(hash, txn))

	got, err := s.GetPendingTx(hash)
	require.NoError(t, err)
	require.Equal(t, txn.Nonce, got.Nonce)

	require.NoError(t, s.DeletePendingTx(hash))
	_, err = s.GetPendingTx(hash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPendingTxsRespectsLimit(t *testing.T) {
	s := open(t)

	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	for i := uint64(0); i < 5; i++ {
		txn := tx.New(i, to, decimal.MustParse("1"), decimal.MustParse("1"), nil)
		hash, err := txn.Hash()
		require.NoError(t, err)
		require.NoError(t, s.WritePendingTx(hash, txn))
	}

	got, err := s.ListPendingTxs(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestBlockHeadAndPrecedingChain(t *testing.T) {
	s := open(t)

	genesisHash := [32]byte{}
	b1 := store.Block{Header: store.Header{Number: 1, PrevHash: genesisHash}, Hash: [32]byte{1}}
	b2 := store.Block{Header: store.Header{Number: 2, PrevHash: b1.Hash}, Hash: [32]byte{2}}

	require.NoError(t, s.WriteBlock(b1))
	require.NoError(t, s.WriteBlock(b2))

	head, ok, err := s.Head()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), head.Header.Number)

	chain, err := s.ListPrecedingBlocks(head)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, uint64(2), chain[0].Header.Number)
	require.Equal(t, uint64(1), chain[1].Header.Number)
}

func TestMinerRoundTrip(t *testing.T) {
	s := open(t)

	addr, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000BB")
	m := store.Miner{
		Address:           addr,
		StakeAmount:       decimal.MustParse("100"),
		InsertedAtUnix:    1700000000,
		ParticipationRate: decimal.MustParse("1.0"),
	}
	require.NoError(t, s.WriteMiner(m))

	got, err := s.GetMiner(addr)
	require.NoError(t, err)
	require.Equal(t, 0, got.StakeAmount.Cmp(decimal.MustParse("100")))
	require.Equal(t, m.InsertedAtUnix, got.InsertedAtUnix)

	all, err := s.ListMiners()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestVoteSigningHashAndPersist(t *testing.T) {
	s := open(t)

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	addr := crypto.PublicKeyToAddress(&priv.PublicKey)
	v := store.Vote{MinerAddress: addr, BlockNumber: 10, BlockHash: [32]byte{9}, VotingRound: 0}

	signingHash, err := v.SigningHash()
	require.NoError(t, err)

	sig, err := crypto.Sign(signingHash, priv)
	require.NoError(t, err)
	v.V, v.R, v.S = sig.V, sig.R, sig.S

	hash, err := v.Hash()
	require.NoError(t, err)
	require.NoError(t, s.WriteVote(hash, v))

	got, err := s.GetVote(hash)
	require.NoError(t, err)
	require.Equal(t, v.BlockHash, got.BlockHash)

	votes, err := s.ListVotesForRound(10, 0)
	require.NoError(t, err)
	require.Len(t, votes, 1)
}

func TestPendingBodyPersistAndFetch(t *testing.T) {
	s := open(t)

	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	txA := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil)
	txB := tx.New(2, to, decimal.MustParse("2"), decimal.MustParse("1"), nil)

	encA, err := txA.Encode()
	require.NoError(t, err)
	encB, err := txB.Encode()
	require.NoError(t, err)

	root, nodes := trie.BuildIndexed([][]byte{encA, encB})

	blockHash := [32]byte{7}
	require.NoError(t, s.PersistBody(blockHash, nodes))

	body, err := s.GetBody(blockHash, root)
	require.NoError(t, err)
	require.Len(t, body, 2)
	require.Equal(t, uint64(1), body[0].Nonce)
	require.Equal(t, uint64(2), body[1].Nonce)

	require.NoError(t, s.DeleteBody(blockHash))
	_, err = s.GetBody(blockHash, root)
	require.Error(t, err)
}

func TestSlashRecordIdempotency(t *testing.T) {
	s := open(t)

	addr, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000CC")
	rec := store.SlashRecord{Offender: addr, BlockNumber: 7, VotingRound: 2}

	has, err := s.HasSlash(rec)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, s.WriteSlash(rec))

	has, err = s.HasSlash(rec)
	require.NoError(t, err)
	require.True(t, has)
}
