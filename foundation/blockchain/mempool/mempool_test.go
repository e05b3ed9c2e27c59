package mempool_test

import (
	"crypto/ecdsa"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/accounts"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/genesis"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/mempool"
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

func newSender(t *testing.T, g *genesis.Genesis, balance string) (crypto.Address, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := crypto.PublicKeyToAddress(&priv.PublicKey)
	if g.Balances == nil {
		g.Balances = map[string]decimal.Decimal{}
	}
	g.Balances[addr.String()] = decimal.MustParse(balance)
	return addr, priv
}

func TestAdmitRejectsUnsignedTx(t *testing.T) {
	s := openStore(t)
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	view := accounts.New(s, genesis.Genesis{})
	mp := mempool.New(s, view, 2)

	txn := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil)
	err := mp.Admit(txn)
	require.ErrorIs(t, err, mempool.ErrInvalidSignature)
}

func TestAdmitIsIdempotent(t *testing.T) {
	s := openStore(t)
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	txn := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil)
	signed, err := txn.Sign(priv)
	require.NoError(t, err)

	view := accounts.New(s, genesis.Genesis{})
	mp := mempool.New(s, view, 2)

	require.NoError(t, mp.Admit(signed))
	require.NoError(t, mp.Admit(signed))

	all, err := s.ListPendingTxs(store.DefaultListLimit)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestValidTxNonceGapAndInsufficientBalance(t *testing.T) {
	s := openStore(t)
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&priv.PublicKey)

	g := genesis.Genesis{Balances: map[string]decimal.Decimal{
		sender.String(): decimal.MustParse("10"),
	}}
	view := accounts.New(s, g)
	mp := mempool.New(s, view, 2)

	gapTx, err := tx.New(2, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(priv)
	require.NoError(t, err)
	ok, err := mp.ValidTx(gapTx)
	require.False(t, ok)
	require.ErrorIs(t, err, mempool.ErrNonceGap)

	tooMuchTx, err := tx.New(1, to, decimal.MustParse("100"), decimal.MustParse("1"), nil).Sign(priv)
	require.NoError(t, err)
	ok, err = mp.ValidTx(tooMuchTx)
	require.False(t, ok)
	require.ErrorIs(t, err, mempool.ErrInsufficientBalance)

	okTx, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(priv)
	require.NoError(t, err)
	ok, err = mp.ValidTx(okTx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBatchOrdersByFeeDescendingAndCapsAtTarget(t *testing.T) {
	s := openStore(t)
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")

	var g genesis.Genesis
	_, p1 := newSender(t, &g, "1000")
	_, p2 := newSender(t, &g, "1000")
	_, p3 := newSender(t, &g, "1000")

	view := accounts.New(s, g)
	mp := mempool.New(s, view, 2)

	low, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(p1)
	require.NoError(t, err)
	high, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("5"), nil).Sign(p2)
	require.NoError(t, err)
	mid, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("3"), nil).Sign(p3)
	require.NoError(t, err)

	require.NoError(t, mp.Admit(low))
	require.NoError(t, mp.Admit(high))
	require.NoError(t, mp.Admit(mid))

	batch, err := mp.Batch()
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, 0, batch[0].Fee.Cmp(decimal.MustParse("5")))
	require.Equal(t, 0, batch[1].Fee.Cmp(decimal.MustParse("3")))
}

func TestBatchSkipsInvalidButKeepsThemInMempool(t *testing.T) {
	s := openStore(t)
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")

	var g genesis.Genesis
	_, p1 := newSender(t, &g, "1000")
	_, p2 := newSender(t, &g, "1000")

	view := accounts.New(s, g)
	mp := mempool.New(s, view, 5)

	valid, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("5"), nil).Sign(p1)
	require.NoError(t, err)
	gapped, err := tx.New(3, to, decimal.MustParse("1"), decimal.MustParse("9"), nil).Sign(p2)
	require.NoError(t, err)

	require.NoError(t, mp.Admit(valid))
	require.NoError(t, mp.Admit(gapped))

	batch, err := mp.Batch()
	require.NoError(t, err)
	require.Len(t, batch, 1)

	all, err := s.ListPendingTxs(store.DefaultListLimit)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestUnminedReportsTrueForFreshTx(t *testing.T) {
	s := openStore(t)
	to, _ := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	signed, err := tx.New(1, to, decimal.MustParse("1"), decimal.MustParse("1"), nil).Sign(priv)
	require.NoError(t, err)

	view := accounts.New(s, genesis.Genesis{})
	mp := mempool.New(s, view, 2)

	unmined, err := mp.Unmined(signed)
	require.NoError(t, err)
	require.True(t, unmined)
}
