package public_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.uber.org/zap"

	v1 "github.com/bowlofstew/credo-core-node/app/services/node/handlers/v1"
	"github.com/bowlofstew/credo-core-node/business/web/mid"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/codec"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/node"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

func writeGenesis(t *testing.T, miner crypto.Address, stake string, balances map[crypto.Address]string) string {
	t.Helper()

	balanceJSON := make(map[string]string, len(balances))
	for addr, amt := range balances {
		balanceJSON[addr.String()] = amt
	}

	doc := struct {
		Date     time.Time         `json:"date"`
		ChainID  uint16            `json:"chain_id"`
		Miners   []any             `json:"miners"`
		Balances map[string]string `json:"balances"`
	}{
		Date:    time.Now(),
		ChainID: 1,
		Miners: []any{
			map[string]any{
				"address":            miner.String(),
				"stake_amount":       stake,
				"participation_rate": "1.0",
			},
		},
		Balances: balanceJSON,
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func setupNode(t *testing.T, funded crypto.Address, fundedBalance string) *node.Node {
	t.Helper()

	selfPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	self := crypto.PublicKeyToAddress(&selfPriv.PublicKey)

	genesisPath := writeGenesis(t, self, "100", map[crypto.Address]string{funded: fundedBalance})

	n, err := node.New(node.Config{
		Self:        self,
		SelfKey:     selfPriv,
		DBPath:      filepath.Join(t.TempDir(), "node.db"),
		GenesisPath: genesisPath,
		Consensus: config.Consensus{
			VoteCollectionTimeout:      20 * time.Millisecond,
			Intervals:                  2,
			QuorumSize:                 1,
			EarlyVoteCountingThreshold: 1,
			MinParticipationRate:       "0.0001",
			MaxParticipationRate:       "1.0",
			SlashPenaltyPercentage:     "0.20",
			TargetTxsPerBlock:          5,
			ParticipationDelta:         "0.01",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { n.Shutdown() })

	return n
}

func testApp(n *node.Node) *web.App {
	log := zap.NewNop().Sugar()
	app := web.NewApp(make(chan os.Signal, 1), mid.Errors(log))
	v1.PublicRoutes(app, v1.Config{Log: log, Node: n})
	return app
}

func TestPendingTransactionAdmitsSignedTx(t *testing.T) {
	senderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&senderPriv.PublicKey)

	n := setupNode(t, sender, "50")
	app := testApp(n)

	to, err := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)

	signed, err := tx.New(1, to, decimal.MustParse("5"), decimal.MustParse("1"), nil).Sign(senderPriv)
	require.NoError(t, err)

	hash, err := signed.Hash()
	require.NoError(t, err)
	body, err := signed.Encode()
	require.NoError(t, err)

	reqBody, err := json.Marshal(map[string]string{
		"hash": hex.EncodeToString(hash[:]),
		"body": hex.EncodeToString(body),
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/node_api/v1/temp/pending_transactions", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	pending, err := n.Store().GetPendingTx(hash)
	require.NoError(t, err)
	require.True(t, pending.To.Equal(to))
}

func TestPendingTransactionRejectsHashMismatch(t *testing.T) {
	senderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&senderPriv.PublicKey)

	n := setupNode(t, sender, "50")
	app := testApp(n)

	to, err := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)

	signed, err := tx.New(1, to, decimal.MustParse("5"), decimal.MustParse("1"), nil).Sign(senderPriv)
	require.NoError(t, err)

	body, err := signed.Encode()
	require.NoError(t, err)

	reqBody, err := json.Marshal(map[string]string{
		"hash": hex.EncodeToString(make([]byte, 32)),
		"body": hex.EncodeToString(body),
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/node_api/v1/temp/pending_transactions", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPendingTransactionRejectsMissingBody(t *testing.T) {
	senderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&senderPriv.PublicKey)

	n := setupNode(t, sender, "50")
	app := testApp(n)

	reqBody, err := json.Marshal(map[string]string{
		"hash": hex.EncodeToString(make([]byte, 32)),
		"body": "",
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/node_api/v1/temp/pending_transactions", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMinerReturnsStakeForRegisteredAccount(t *testing.T) {
	senderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&senderPriv.PublicKey)

	n := setupNode(t, sender, "50")
	app := testApp(n)

	self := n.Self()
	r := httptest.NewRequest(http.MethodGet, "/node_api/v1/temp/miners/"+self.String(), nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var info struct {
		Address           string `json:"address"`
		StakeAmount       string `json:"stake_amount"`
		ParticipationRate string `json:"participation_rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, decimal.MustParse("100").String(), info.StakeAmount)
}

func TestMinerReturnsNotFoundForUnknownAccount(t *testing.T) {
	senderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&senderPriv.PublicKey)

	n := setupNode(t, sender, "50")
	app := testApp(n)

	unknown, err := crypto.ParseAddress("0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/node_api/v1/temp/miners/"+unknown.String(), nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoteRejectsUnregisteredMiner(t *testing.T) {
	senderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sender := crypto.PublicKeyToAddress(&senderPriv.PublicKey)

	n := setupNode(t, sender, "50")
	app := testApp(n)

	offenderPriv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	offender := crypto.PublicKeyToAddress(&offenderPriv.PublicKey)

	v := store.Vote{MinerAddress: offender, BlockNumber: 1, VotingRound: 0}
	signingHash, err := v.SigningHash()
	require.NoError(t, err)
	sig, err := crypto.Sign(signingHash, offenderPriv)
	require.NoError(t, err)
	v.V, v.R, v.S = sig.V, sig.R, sig.S

	hash, err := v.Hash()
	require.NoError(t, err)
	body, err := codec.Encode(v)
	require.NoError(t, err)

	reqBody, err := json.Marshal(map[string]string{
		"hash": hex.EncodeToString(hash[:]),
		"body": hex.EncodeToString(body),
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/node_api/v1/temp/votes", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
}
