package participation_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/participation"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
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
		MinParticipationRate: "0.0001",
		MaxParticipationRate: "1.0",
		ParticipationDelta:   "0.01",
	}
}

func registerMiner(t *testing.T, s *store.Store, rate string) crypto.Address {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := crypto.PublicKeyToAddress(&priv.PublicKey)
	require.NoError(t, s.WriteMiner(store.Miner{
		Address:           addr,
		StakeAmount:       decimal.MustParse("10"),
		ParticipationRate: decimal.MustParse(rate),
	}))
	return addr
}

func TestApplyRoundOutcomeRaisesVotersAndLowersAbstainers(t *testing.T) {
	s := openStore(t)
	voter := registerMiner(t, s, "0.5")
	abstainer := registerMiner(t, s, "0.5")

	tracker, err := participation.New(s, testConfig())
	require.NoError(t, err)

	require.NoError(t, tracker.ApplyRoundOutcome(map[crypto.Address]bool{voter: true}))

	gotVoter, err := s.GetMiner(voter)
	require.NoError(t, err)
	require.Equal(t, 0, gotVoter.ParticipationRate.Cmp(decimal.MustParse("0.51")))

	gotAbstainer, err := s.GetMiner(abstainer)
	require.NoError(t, err)
	require.Equal(t, 0, gotAbstainer.ParticipationRate.Cmp(decimal.MustParse("0.49")))
}

func TestClipAtBounds(t *testing.T) {
	s := openStore(t)
	atMax := registerMiner(t, s, "1.0")
	atMin := registerMiner(t, s, "0.0001")

	tracker, err := participation.New(s, testConfig())
	require.NoError(t, err)

	require.NoError(t, tracker.ApplyRoundOutcome(map[crypto.Address]bool{atMax: true}))
	got, err := s.GetMiner(atMax)
	require.NoError(t, err)
	require.Equal(t, 0, got.ParticipationRate.Cmp(decimal.MustParse("1.0")))

	require.NoError(t, tracker.ApplyRoundOutcome(map[crypto.Address]bool{}))
	gotMin, err := s.GetMiner(atMin)
	require.NoError(t, err)
	require.Equal(t, 0, gotMin.ParticipationRate.Cmp(decimal.MustParse("0.0001")))
}

func TestDecaySweepSkipsActiveMiners(t *testing.T) {
	s := openStore(t)
	active := registerMiner(t, s, "0.5")
	idle := registerMiner(t, s, "0.5")

	tracker, err := participation.New(s, testConfig())
	require.NoError(t, err)

	require.NoError(t, tracker.DecaySweep(map[crypto.Address]bool{active: true}))

	gotActive, err := s.GetMiner(active)
	require.NoError(t, err)
	require.Equal(t, 0, gotActive.ParticipationRate.Cmp(decimal.MustParse("0.5")))

	gotIdle, err := s.GetMiner(idle)
	require.NoError(t, err)
	require.Equal(t, 0, gotIdle.ParticipationRate.Cmp(decimal.MustParse("0.49")))
}
