package vote_test

import (
	"context"
	"crypto/ecdsa"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/vote"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() config.Consensus {
	return config.Consensus{
		VoteCollectionTimeout:        20 * time.Millisecond,
		Intervals:                    2,
		QuorumSize:                   1,
		EarlyVoteCountingThreshold:   2,
		WarmUp:                       48 * time.Hour,
		MinParticipationRate:         "0.0001",
		MaxParticipationRate:         "1.0",
		SlashPenaltyPercentage:       "0.20",
		SupermajorityNumerator:       2,
		SupermajorityDenominator:     3,
		TargetTxsPerBlock:            2,
		PendingTransactionQueryLimit: 2000,
		ParticipationDelta:           "0.01",
	}
}

func registerMiner(t *testing.T, s *store.Store, stake string) (crypto.Address, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := crypto.PublicKeyToAddress(&priv.PublicKey)

	m := store.Miner{
		Address:           addr,
		StakeAmount:       decimal.MustParse(stake),
		ParticipationRate: decimal.MustParse("1.0"),
	}
	require.NoError(t, s.WriteMiner(m))
	return addr, priv
}

func TestCurrentRoundResumesFromPersistedVotes(t *testing.T) {
	s := openStore(t)
	selfPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	self := crypto.PublicKeyToAddress(&selfPriv.PublicKey)

	mgr, err := vote.NewManager(s, testConfig(), self, selfPriv)
	require.NoError(t, err)

	round, err := mgr.CurrentRound(10)
	require.NoError(t, err)
	require.Equal(t, uint32(0), round)

	_, err = mgr.CastVote(10, 0, [32]byte{1})
	require.NoError(t, err)

	round, err = mgr.CurrentRound(10)
	require.NoError(t, err)
	require.Equal(t, uint32(1), round)
}

func TestCastVoteGuardsAgainstDoubleVoting(t *testing.T) {
	s := openStore(t)
	selfPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	self := crypto.PublicKeyToAddress(&selfPriv.PublicKey)

	mgr, err := vote.NewManager(s, testConfig(), self, selfPriv)
	require.NoError(t, err)

	_, err = mgr.CastVote(5, 0, [32]byte{9})
	require.NoError(t, err)

	_, err = mgr.CastVote(5, 0, [32]byte{9})
	require.ErrorIs(t, err, vote.ErrAlreadyVoted)
}

func TestValidateVoteRejectsUnregisteredMiner(t *testing.T) {
	s := openStore(t)
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := crypto.PublicKeyToAddress(&priv.PublicKey)

	mgr, err := vote.NewManager(s, testConfig(), addr, priv)
	require.NoError(t, err)

	v := store.Vote{MinerAddress: addr, BlockNumber: 1, BlockHash: [32]byte{1}, VotingRound: 0}
	signingHash, err := v.SigningHash()
	require.NoError(t, err)
	sig, err := crypto.Sign(signingHash, priv)
	require.NoError(t, err)
	v.V, v.R, v.S = sig.V, sig.R, sig.S

	err = mgr.ValidateVote(v)
	require.ErrorIs(t, err, vote.ErrUnknownMiner)
}

func TestTallySupermajorityWinner(t *testing.T) {
	s := openStore(t)
	a1, _ := registerMiner(t, s, "100")
	a2, _ := registerMiner(t, s, "100")
	a3, _ := registerMiner(t, s, "100")

	mgr, err := vote.NewManager(s, testConfig(), a1, nil)
	require.NoError(t, err)

	hashA := [32]byte{0xAA}
	hashB := [32]byte{0xBB}

	votes := []store.Vote{
		{MinerAddress: a1, BlockHash: hashA},
		{MinerAddress: a2, BlockHash: hashA},
		{MinerAddress: a3, BlockHash: hashB},
	}

	winner, ok, err := mgr.Tally(votes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hashA, winner)
}

func TestTallyNoWinnerBelowThreshold(t *testing.T) {
	s := openStore(t)
	a1, _ := registerMiner(t, s, "100")
	a2, _ := registerMiner(t, s, "100")
	a3, _ := registerMiner(t, s, "100")

	mgr, err := vote.NewManager(s, testConfig(), a1, nil)
	require.NoError(t, err)

	hashA := [32]byte{0xAA}
	hashB := [32]byte{0xBB}
	hashC := [32]byte{0xCC}

	votes := []store.Vote{
		{MinerAddress: a1, BlockHash: hashA},
		{MinerAddress: a2, BlockHash: hashB},
		{MinerAddress: a3, BlockHash: hashC},
	}

	_, ok, err := mgr.Tally(votes)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidateVoteRejectsWarmingUpMinerWhenEnabled(t *testing.T) {
	s := openStore(t)
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := crypto.PublicKeyToAddress(&priv.PublicKey)

	require.NoError(t, s.WriteMiner(store.Miner{
		Address:           addr,
		StakeAmount:       decimal.MustParse("100"),
		InsertedAtUnix:    uint64(time.Now().Unix()),
		ParticipationRate: decimal.MustParse("1.0"),
	}))

	v := store.Vote{MinerAddress: addr, BlockNumber: 1, BlockHash: [32]byte{1}, VotingRound: 0}
	signingHash, err := v.SigningHash()
	require.NoError(t, err)
	sig, err := crypto.Sign(signingHash, priv)
	require.NoError(t, err)
	v.V, v.R, v.S = sig.V, sig.R, sig.S

	mgr, err := vote.NewManager(s, testConfig(), addr, priv)
	require.NoError(t, err)

	require.NoError(t, mgr.ValidateVote(v), "warm-up is disabled by default")

	mgr.SetWarmUpEnabled(true)
	err = mgr.ValidateVote(v)
	require.Error(t, err, "a just-registered miner's vote must be rejected once warm-up is enabled")
}

func TestTallyNoWinnerBelowQuorum(t *testing.T) {
	s := openStore(t)
	a1, _ := registerMiner(t, s, "100")

	cfg := testConfig()
	cfg.QuorumSize = 2

	mgr, err := vote.NewManager(s, cfg, a1, nil)
	require.NoError(t, err)

	hashA := [32]byte{0xAA}
	votes := []store.Vote{{MinerAddress: a1, BlockHash: hashA}}

	_, ok, err := mgr.Tally(votes)
	require.NoError(t, err)
	require.False(t, ok, "single voter's unanimous ballot must not win below QuorumSize")
}

func TestCommitWritesBlockAndClearsLog(t *testing.T) {
	s := openStore(t)
	self, selfPriv := registerMiner(t, s, "100")

	mgr, err := vote.NewManager(s, testConfig(), self, selfPriv)
	require.NoError(t, err)

	pending := store.PendingBlockHeader{
		Header: store.Header{Number: 3},
		Hash:   [32]byte{0x42},
	}
	require.NoError(t, s.WritePendingBlockHeader(pending))

	_, err = mgr.CastVote(3, 0, pending.Hash)
	require.NoError(t, err)

	block, err := mgr.Commit(3, 0, pending.Hash)
	require.NoError(t, err)
	require.Equal(t, pending.Hash, block.Hash)
	require.Equal(t, uint32(0), block.VotingRound)
	require.False(t, mgr.AlreadyVoted(3, 0))

	round, err := mgr.CurrentRound(3)
	require.NoError(t, err)
	require.Equal(t, uint32(1), round)
}

func TestUpdateParticipationAdjustsRates(t *testing.T) {
	s := openStore(t)
	voter, _ := registerMiner(t, s, "100")
	abstainer, _ := registerMiner(t, s, "100")

	mgr, err := vote.NewManager(s, testConfig(), voter, nil)
	require.NoError(t, err)

	votes := []store.Vote{{MinerAddress: voter, BlockHash: [32]byte{1}}}
	require.NoError(t, mgr.UpdateParticipation(votes))

	got, err := s.GetMiner(voter)
	require.NoError(t, err)
	require.Equal(t, 0, got.ParticipationRate.Cmp(decimal.MustParse("1.0")))

	gotAbstainer, err := s.GetMiner(abstainer)
	require.NoError(t, err)
	require.Equal(t, 0, gotAbstainer.ParticipationRate.Cmp(decimal.MustParse("0.99")))
}

func TestCollectReturnsOnDeadlineWithNoVotes(t *testing.T) {
	s := openStore(t)
	selfPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	self := crypto.PublicKeyToAddress(&selfPriv.PublicKey)

	cfg := testConfig()
	mgr, err := vote.NewManager(s, cfg, self, selfPriv)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	votes, err := mgr.Collect(ctx, 1, 0)
	require.NoError(t, err)
	require.Empty(t, votes)
}
