// Package node is the core API for the blockchain: it wires the store,
// mempool, accounts view, vote manager, slasher, and participation tracker
// together and implements the per-height round loop that turns a batch of
// mempool transactions into a committed block.
package node

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/accounts"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/block"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/genesis"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/mempool"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/participation"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/peer"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/slasher"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/vote"
)

// EventHandler defines a function that is called when events occur in the
// processing of rounds, votes, and committed blocks.
type EventHandler func(v string, args ...any)

// Worker represents the behavior required of whatever package drives this
// Node's round loop and network ingress on a schedule. It is not set at
// construction; the worker's own Run function assigns itself here once it
// starts, the same way the round driver learns how to ask the node to shut
// down cleanly.
type Worker interface {
	Shutdown()
	SignalRunRound()
	SignalShareTx(t tx.Tx)
}

// ErrNoTransactions is returned by RunRound when the mempool has nothing
// eligible to batch; callers should simply wait for the next tick rather
// than treat this as a fatal error.
var ErrNoTransactions = errors.New("node: no eligible transactions to batch")

// Config carries everything New needs to bring up a Node.
type Config struct {
	Self        crypto.Address
	SelfKey     *ecdsa.PrivateKey
	Host        string
	DBPath      string
	GenesisPath string
	KnownPeers  []string
	Consensus   config.Consensus
	EvHandler   EventHandler
}

// Node manages the blockchain's persistent state and consensus components
// for a single participant.
type Node struct {
	self      crypto.Address
	selfKey   *ecdsa.PrivateKey
	host      string
	sessionID peer.SessionID
	evHandler EventHandler
	cfg       config.Consensus

	mu sync.Mutex

	genesis       genesis.Genesis
	store         *store.Store
	accounts      *accounts.View
	mempool       *mempool.Mempool
	votes         *vote.Manager
	participation *participation.Tracker
	peers         *peer.Set

	Worker Worker
}

// New constructs a Node: it loads the genesis file, opens the store,
// registers any genesis miners not already known, and builds the
// consensus components on top.
func New(cfg Config) (*Node, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	g, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading genesis")
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}

	for _, seed := range g.Miners {
		if _, err := s.GetMiner(seed.Address); err == store.ErrNotFound {
			m := store.Miner{
				Address:           seed.Address,
				StakeAmount:       seed.StakeAmount,
				ParticipationRate: seed.ParticipationRate,
			}
			if err := s.WriteMiner(m); err != nil {
				s.Close()
				return nil, errors.Wrapf(err, "seeding genesis miner %s", seed.Address)
			}
			continue
		} else if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "checking genesis miner %s", seed.Address)
		}
	}

	view := accounts.New(s, g)
	mp := mempool.New(s, view, cfg.Consensus.TargetTxsPerBlock)

	votes, err := vote.NewManager(s, cfg.Consensus, cfg.Self, cfg.SelfKey)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "building vote manager")
	}

	tracker, err := participation.New(s, cfg.Consensus)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "building participation tracker")
	}

	peers := peer.NewSet()
	peers.Bootstrap(cfg.KnownPeers)

	n := Node{
		self:          cfg.Self,
		selfKey:       cfg.SelfKey,
		host:          cfg.Host,
		sessionID:     peer.NewSessionID(),
		evHandler:     ev,
		cfg:           cfg.Consensus,
		genesis:       g,
		store:         s,
		accounts:      view,
		mempool:       mp,
		votes:         votes,
		participation: tracker,
		peers:         peers,
	}

	// The Worker is not set here; whatever package drives the round loop
	// assigns itself once it starts.

	return &n, nil
}

// Shutdown stops the round driver (if one is attached) and closes the
// store, in that order, so no write lands after the database is closed.
func (n *Node) Shutdown() error {
	if n.Worker != nil {
		n.Worker.Shutdown()
	}
	return n.store.Close()
}

// Self returns this node's own miner address.
func (n *Node) Self() crypto.Address {
	return n.self
}

// Store exposes the underlying Store for collaborators (the HTTP layer,
// peer gossip) that need direct read access beyond what Node itself
// exposes.
func (n *Node) Store() *store.Store {
	return n.store
}

// SessionID returns this node's process-scoped session identity, used by
// tests and by a caller that wants to detect its own reflection.
func (n *Node) SessionID() peer.SessionID {
	return n.sessionID
}

// Peers exposes this node's known-peer set for the HTTP layer's
// `/node_api/v1/connections` handler.
func (n *Node) Peers() *peer.Set {
	return n.peers
}

// Handshake processes an inbound connection request: it rejects a
// self-connection (matching session id), otherwise registers the caller
// as a known peer and returns this node's current status.
func (n *Node) Handshake(hs peer.Handshake) (peer.Status, bool, error) {
	if hs.SessionID == n.sessionID {
		return peer.Status{}, false, nil
	}
	n.peers.Add(peer.New(hs.Host))

	head, _, err := n.store.Head()
	if err != nil {
		return peer.Status{}, false, errors.Wrap(err, "reading head for handshake status")
	}

	status := peer.Status{
		SessionID:         n.sessionID,
		LatestBlockHash:   hex.EncodeToString(head.Hash[:]),
		LatestBlockNumber: head.Header.Number,
		KnownPeers:        n.peers.Copy(n.host),
	}
	return status, true, nil
}

// SubmitTx admits t into the mempool. Called both by locally originated
// transactions (the slasher's own emitted proofs) and by transactions
// received over the wire from a peer.
func (n *Node) SubmitTx(t tx.Tx) error {
	if err := n.mempool.Admit(t); err != nil {
		return err
	}
	if n.Worker != nil {
		n.Worker.SignalShareTx(t)
	}
	return nil
}

// SubmitVote records an externally received vote and checks it against
// this height and round's known votes for equivocation, emitting and
// admitting a slash transaction into the mempool if proof is found.
func (n *Node) SubmitVote(v store.Vote) error {
	if err := n.votes.Record(v); err != nil {
		return err
	}
	n.evHandler("vote recorded: height %d round %d miner %s", v.BlockNumber, v.VotingRound, v.MinerAddress)

	existing, err := n.store.ListVotesForRound(v.BlockNumber, v.VotingRound)
	if err != nil {
		return errors.Wrap(err, "listing votes for equivocation check")
	}

	proof, err := slasher.Detect(v, existing)
	if err == slasher.ErrNoEquivocation {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "detecting equivocation")
	}

	slashTx, err := slasher.Emit(proof, n.accounts, n.self, n.selfKey)
	if err != nil {
		return errors.Wrap(err, "emitting slash transaction")
	}
	n.evHandler("equivocation detected: miner %s height %d round %d", v.MinerAddress, v.BlockNumber, v.VotingRound)

	return n.SubmitTx(slashTx)
}

// RunRound assembles a candidate block from the mempool and drives the
// voting state machine at height through as many rounds as it takes to
// reach a supermajority winner, committing the result before returning.
// It escalates rounds cooperatively: each round's wait is bounded by
// vote.Manager's own collection window, so a caller running this inside a
// worker loop can still observe ctx cancellation between rounds.
func (n *Node) RunRound(ctx context.Context) (store.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	batch, err := n.mempool.Batch()
	if err != nil {
		return store.Block{}, errors.Wrap(err, "batching mempool")
	}
	if len(batch) == 0 {
		return store.Block{}, ErrNoTransactions
	}

	own, err := block.Assemble(n.store, batch, n.self, n.selfKey, n.stateRoot)
	if err != nil {
		return store.Block{}, errors.Wrap(err, "assembling candidate block")
	}
	if err := block.Persist(n.store, own); err != nil {
		return store.Block{}, errors.Wrap(err, "persisting candidate block")
	}
	height := own.Header.Number

	round, err := n.votes.CurrentRound(height)
	if err != nil {
		return store.Block{}, errors.Wrap(err, "reading current round")
	}

	for {
		select {
		case <-ctx.Done():
			return store.Block{}, ctx.Err()
		default:
		}

		var ownPtr *store.PendingBlockHeader
		if round == 0 {
			ownPtr = &own
		}

		candidate, err := n.votes.SelectCandidate(height, round, ownPtr)
		if err != nil {
			return store.Block{}, errors.Wrapf(err, "selecting candidate for round %d", round)
		}

		if !n.votes.AlreadyVoted(height, round) {
			if _, err := n.votes.CastVote(height, round, candidate.Hash); err != nil {
				return store.Block{}, errors.Wrapf(err, "casting vote for round %d", round)
			}
		}

		collected, err := n.votes.Collect(ctx, height, round)
		if err != nil {
			return store.Block{}, errors.Wrapf(err, "collecting votes for round %d", round)
		}

		if err := n.votes.UpdateParticipation(collected); err != nil {
			return store.Block{}, errors.Wrapf(err, "updating participation for round %d", round)
		}

		winner, ok, err := n.votes.Tally(collected)
		if err != nil {
			return store.Block{}, errors.Wrapf(err, "tallying round %d", round)
		}
		if ok {
			committed, err := n.votes.Commit(height, round, winner)
			if err != nil {
				return store.Block{}, errors.Wrap(err, "committing block")
			}
			n.evHandler("committed block %d at round %d", committed.Header.Number, round)
			if err := n.applyCommitted(committed); err != nil {
				return store.Block{}, errors.Wrap(err, "applying committed block")
			}
			return committed, nil
		}

		n.evHandler("round %d at height %d escalating", round, height)
		round++
	}
}

// applyCommitted evicts every non-coinbase transaction in the committed
// block's body from the mempool and applies any slash transaction it
// carries to the offender's stake.
func (n *Node) applyCommitted(b store.Block) error {
	body, err := n.store.GetBody(b.Hash, b.Header.TxRoot)
	if err != nil {
		return errors.Wrap(err, "loading committed body")
	}

	for _, t := range body {
		txType, err := t.Type()
		if err != nil {
			return errors.Wrap(err, "reading committed tx type")
		}

		switch txType {
		case tx.TypeCoinbase:
			// Never submitted to the mempool; nothing to evict.
		case tx.TypeSlash:
			if err := slasher.Apply(n.store, n.cfg, t); err != nil {
				return errors.Wrap(err, "applying slash")
			}
			if err := n.mempool.Evict(t); err != nil {
				return errors.Wrap(err, "evicting slash tx")
			}
		default:
			if err := n.mempool.Evict(t); err != nil {
				return errors.Wrap(err, "evicting tx")
			}
		}
	}

	return nil
}

// DecaySweep runs the participation tracker's periodic decay pass over
// every miner not present in active; the worker's decay loop calls it on
// its own cadence for miners untouched by any round this period.
func (n *Node) DecaySweep(active map[crypto.Address]bool) error {
	return n.participation.DecaySweep(active)
}

// stateRoot is the state-root collaborator Assemble calls out to. Real
// world-state tracking (account balances, miner stakes) lives entirely in
// the store and accounts view rather than a separate Merkle trie, so this
// implementation hashes the concatenation of every transaction's hash
// into one Keccak256 digest and reports that; it exists to give
// every assembled header a deterministic, reproducible state_root rather
// than to model a second state trie.
func (n *Node) stateRoot(txs []tx.Tx) ([32]byte, error) {
	hashes := make([][]byte, len(txs))
	for i, t := range txs {
		h, err := t.Hash()
		if err != nil {
			return [32]byte{}, err
		}
		hashes[i] = h[:]
	}
	root := crypto.Keccak256(hashes...)
	return root, nil
}
