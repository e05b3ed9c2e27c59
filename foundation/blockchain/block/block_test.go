package block_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/block"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func noopStateRoot(txs []tx.Tx) ([32]byte, error) {
	return [32]byte{}, nil
}

func TestAssembleRejectsEmptyBatch(t *testing.T) {
	s := openStore(t)
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	proposer := crypto.PublicKeyToAddress(&priv.PublicKey)

	_, err = block.Assemble(s, nil, proposer, priv, noopStateRoot)
	require.ErrorIs(t, err, block.ErrEmptyBatch)
}

func TestAssembleAppendsCoinbaseWithFeeSum(t *testing.T) {
	s := openStore(t)

	proposerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	proposer := crypto.PublicKeyToAddress(&proposerKey.PublicKey)

	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	senderKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	txA, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1.1"), nil).Sign(senderKey)
	require.NoError(t, err)
	txB, err := tx.New(2, to, decimal.MustParse("1"), decimal.MustParse("0.9"), nil).Sign(senderKey)
	require.NoError(t, err)

	pending, err := block.Assemble(s, []tx.Tx{txA, txB}, proposer, proposerKey, noopStateRoot)
	require.NoError(t, err)
	require.Len(t, pending.Body, 3)

	coinbase := pending.Body[2]
	coinbaseType, err := coinbase.Type()
	require.NoError(t, err)
	require.Equal(t, tx.TypeCoinbase, coinbaseType)
	require.Equal(t, 0, coinbase.Value.Cmp(decimal.MustParse("2.0")))
	require.True(t, coinbase.To.Equal(proposer))

	require.NoError(t, block.ValidateCoinbase(pending.Body))

	require.True(t, pending.Header.Proposer.Equal(proposer))
	require.NotZero(t, pending.Header.Timestamp)
}

func TestAssembleLinksToHeadAndAdvancesNumber(t *testing.T) {
	s := openStore(t)
	proposerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	proposer := crypto.PublicKeyToAddress(&proposerKey.PublicKey)

	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	senderKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	txn, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(senderKey)
	require.NoError(t, err)

	first, err := block.Assemble(s, []tx.Tx{txn}, proposer, proposerKey, noopStateRoot)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Header.Number)
	require.Equal(t, [32]byte{}, first.Header.PrevHash)

	require.NoError(t, s.WriteBlock(store.Block{Header: first.Header, Hash: first.Hash}))

	txn2, err := tx.New(2, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(senderKey)
	require.NoError(t, err)
	second, err := block.Assemble(s, []tx.Tx{txn2}, proposer, proposerKey, noopStateRoot)
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Header.Number)
	require.Equal(t, first.Hash, second.Header.PrevHash)
}

func TestValidateCoinbaseRejectsMismatchedValue(t *testing.T) {
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	senderKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	proposerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	proposer := crypto.PublicKeyToAddress(&proposerKey.PublicKey)

	txA, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(senderKey)
	require.NoError(t, err)

	badCoinbase, err := tx.New(0, proposer, decimal.MustParse("999"), decimal.MustParse("1"), []byte(`{"tx_type":"coinbase"}`)).Sign(proposerKey)
	require.NoError(t, err)

	err = block.ValidateCoinbase([]tx.Tx{txA, badCoinbase})
	require.Error(t, err)
}
