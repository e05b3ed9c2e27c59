// Package vote implements the stake-weighted voting state machine that
// turns a height's known pending blocks into a single committed Block: for
// each round it selects a candidate, casts and collects ballots, tallies
// them by stake, and either commits a supermajority winner or escalates to
// the next round. It holds the in-memory, per-height vote log that is the
// tie-break authority for winner selection, since the Store's bbolt
// cursor order does not preserve insertion order.
package vote

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/participation"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
)

// Consensus-kind errors (§7).
var (
	ErrNoCandidateBlock = errors.New("vote: no known pending block to vote for")
	ErrNoWinner         = errors.New("vote: no candidate reached supermajority")
	ErrAlreadyVoted     = errors.New("vote: already voted this round")
	ErrUnknownMiner     = errors.New("vote: signer is not a registered miner")
)

// pollInterval is how often Collect re-checks the Store for new votes
// while waiting out a round's collection window.
const pollInterval = 25 * time.Millisecond

// Manager runs the voting state machine for one node. It is safe for
// concurrent use; the only mutable state it owns directly is the
// per-height vote log, protected by mu, a single mutex shared by the logs
// of every height.
type Manager struct {
	store         *store.Store
	cfg           config.Consensus
	self          crypto.Address
	key           *ecdsa.PrivateKey
	participation *participation.Tracker

	// warmUpEnabled gates the optional new-miner warm-up check described
	// in §4.7 as "present but disabled in source".
	warmUpEnabled bool

	mu  sync.Mutex
	log map[uint64][]store.Vote
}

// NewManager constructs a Manager for the node whose registered miner
// address is self, signing with key.
func NewManager(s *store.Store, cfg config.Consensus, self crypto.Address, key *ecdsa.PrivateKey) (*Manager, error) {
	tracker, err := participation.New(s, cfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:         s,
		cfg:           cfg,
		self:          self,
		key:           key,
		participation: tracker,
		log:           make(map[uint64][]store.Vote),
	}, nil
}

// SetWarmUpEnabled toggles the optional new-miner warm-up rejection. It
// defaults to off, matching the teacher's own "present but disabled"
// behavior for this check.
func (m *Manager) SetWarmUpEnabled(enabled bool) {
	m.warmUpEnabled = enabled
}

// CurrentRound implements get_current_voting_round(h): the round after the
// highest round any persisted vote exists for at height h, or 0 if none.
// It consults the Store rather than the in-memory log, so a restarted
// node resumes at the correct round.
func (m *Manager) CurrentRound(height uint64) (uint32, error) {
	var max int64 = -1
	for round := uint32(0); ; round++ {
		votes, err := m.store.ListVotesForRound(height, round)
		if err != nil {
			return 0, errors.Wrapf(err, "listing votes for round %d", round)
		}
		if len(votes) == 0 {
			break
		}
		max = int64(round)
	}
	if max < 0 {
		return 0, nil
	}
	return uint32(max) + 1, nil
}

// SelectCandidate picks the pending block this node will vote for at
// (height, round). Round 0 always votes for the node's own freshly
// assembled block. Round > 0 picks uniformly at random among every
// pending block this node knows of at that height.
//
// The spec's own source carries a TODO to weight this choice by prior
// rounds' votes instead of choosing uniformly; that weighting scheme is
// left unspecified, so this is implemented as an open question resolved
// in favor of the simpler uniform choice documented here.
func (m *Manager) SelectCandidate(height uint64, round uint32, own *store.PendingBlockHeader) (store.PendingBlockHeader, error) {
	if round == 0 {
		if own == nil {
			return store.PendingBlockHeader{}, ErrNoCandidateBlock
		}
		return *own, nil
	}

	known, err := m.store.ListPendingBlockHeaders(height, store.DefaultListLimit)
	if err != nil {
		return store.PendingBlockHeader{}, errors.Wrap(err, "listing known pending blocks")
	}
	if len(known) == 0 {
		return store.PendingBlockHeader{}, ErrNoCandidateBlock
	}

	return known[rand.Intn(len(known))], nil
}

// AlreadyVoted reports whether this node has already cast a vote for
// (height, round), guarding CastVote from double-voting a round.
func (m *Manager) AlreadyVoted(height uint64, round uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.log[height] {
		if v.VotingRound == round && v.MinerAddress.Equal(m.self) {
			return true
		}
	}
	return false
}

// CastVote signs and persists a ballot for candidate at (height, round),
// refusing if this node has already voted that round.
func (m *Manager) CastVote(height uint64, round uint32, candidateHash [32]byte) (store.Vote, error) {
	if m.AlreadyVoted(height, round) {
		return store.Vote{}, ErrAlreadyVoted
	}

	v := store.Vote{
		MinerAddress: m.self,
		BlockNumber:  height,
		BlockHash:    candidateHash,
		VotingRound:  round,
	}

	signingHash, err := v.SigningHash()
	if err != nil {
		return store.Vote{}, errors.Wrap(err, "computing vote signing hash")
	}

	sig, err := crypto.Sign(signingHash, m.key)
	if err != nil {
		return store.Vote{}, errors.Wrap(err, "signing vote")
	}
	v.V, v.R, v.S = sig.V, sig.R, sig.S

	hash, err := v.Hash()
	if err != nil {
		return store.Vote{}, errors.Wrap(err, "hashing vote")
	}
	if err := m.store.WriteVote(hash, v); err != nil {
		return store.Vote{}, errors.Wrap(err, "persisting vote")
	}

	m.recordLocally(height, v)

	return v, nil
}

// Record stores an externally-received vote (propagated by the network
// collaborator) into the per-height log, after validating it. It is the
// entry point peer-delivered votes go through on their way into tallying.
func (m *Manager) Record(v store.Vote) error {
	if err := m.ValidateVote(v); err != nil {
		return err
	}

	hash, err := v.Hash()
	if err != nil {
		return errors.Wrap(err, "hashing vote")
	}
	if err := m.store.WriteVote(hash, v); err != nil {
		return errors.Wrap(err, "persisting vote")
	}

	m.recordLocally(v.BlockNumber, v)
	return nil
}

func (m *Manager) recordLocally(height uint64, v store.Vote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[height] = append(m.log[height], v)
}

// ValidateVote recovers the signer from (v, r, s) and checks it matches
// the claimed miner address and is a currently registered miner. The
// warm-up check is applied only when SetWarmUpEnabled(true) was called.
func (m *Manager) ValidateVote(v store.Vote) error {
	signingHash, err := v.SigningHash()
	if err != nil {
		return errors.Wrap(err, "computing vote signing hash")
	}

	signer, err := crypto.Recover(signingHash, crypto.Signature{V: v.V, R: v.R, S: v.S})
	if err != nil {
		return errors.Wrap(err, "recovering vote signer")
	}
	if !signer.Equal(v.MinerAddress) {
		return errors.New("vote: recovered signer does not match claimed miner address")
	}

	miner, err := m.store.GetMiner(v.MinerAddress)
	if err != nil {
		return ErrUnknownMiner
	}

	if m.warmUpEnabled && time.Since(miner.InsertedAt()) <= m.cfg.WarmUp {
		return errors.New("vote: miner has not completed its warm-up period")
	}

	return nil
}

// Collect blocks until the round's collection window elapses, or until
// EarlyVoteCountingThreshold valid votes have accumulated for (height,
// round), whichever comes first. It returns every valid vote seen for the
// round, in the log's insertion order.
func (m *Manager) Collect(ctx context.Context, height uint64, round uint32) ([]store.Vote, error) {
	deadline := time.Now().Add(time.Duration(m.cfg.Intervals) * m.cfg.VoteCollectionTimeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		valid := m.validVotesLocked(height, round)
		if len(valid) >= m.cfg.EarlyVoteCountingThreshold {
			return valid, nil
		}
		if time.Now().After(deadline) {
			return valid, nil
		}

		select {
		case <-ctx.Done():
			return valid, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) validVotesLocked(height uint64, round uint32) []store.Vote {
	m.mu.Lock()
	entries := append([]store.Vote(nil), m.log[height]...)
	m.mu.Unlock()

	var valid []store.Vote
	for _, v := range entries {
		if v.VotingRound != round {
			continue
		}
		if err := m.ValidateVote(v); err != nil {
			continue
		}
		valid = append(valid, v)
	}
	return valid
}

// Tally groups votes by candidate block hash, weighting each by its
// miner's current stake, and reports the winner: the first candidate (by
// insertion order, ties broken by lexicographically smaller block hash
// hex) whose stake-weighted sum reaches the configured supermajority of
// the total stake of distinct voters in votes. ok is false if no
// candidate qualifies, or if votes did not carry at least QuorumSize
// distinct voters, in which case the round should escalate.
func (m *Manager) Tally(votes []store.Vote) (winner [32]byte, ok bool, err error) {
	stakeOf := make(map[crypto.Address]decimal.Decimal)
	sumByHash := make(map[[32]byte]decimal.Decimal)
	firstIndex := make(map[[32]byte]int)

	for i, v := range votes {
		stake, cached := stakeOf[v.MinerAddress]
		if !cached {
			miner, merr := m.store.GetMiner(v.MinerAddress)
			if merr != nil {
				continue
			}
			stake = miner.StakeAmount
			stakeOf[v.MinerAddress] = stake
		}

		if _, seen := sumByHash[v.BlockHash]; !seen {
			firstIndex[v.BlockHash] = i
			sumByHash[v.BlockHash] = decimal.Zero()
		}
		sumByHash[v.BlockHash] = sumByHash[v.BlockHash].Add(stake)
	}

	if len(stakeOf) < m.cfg.QuorumSize {
		return [32]byte{}, false, nil
	}

	total := decimal.Zero()
	for _, s := range stakeOf {
		total = total.Add(s)
	}
	if total.IsZero() {
		return [32]byte{}, false, nil
	}

	var (
		bestHash  [32]byte
		bestIndex = -1
		found     bool
	)
	for hash, sum := range sumByHash {
		if !m.qualifiesSupermajority(sum, total) {
			continue
		}
		idx := firstIndex[hash]
		switch {
		case !found:
			bestHash, bestIndex, found = hash, idx, true
		case idx < bestIndex:
			bestHash, bestIndex = hash, idx
		case idx == bestIndex && hex.EncodeToString(hash[:]) < hex.EncodeToString(bestHash[:]):
			bestHash = hash
		}
	}

	return bestHash, found, nil
}

// qualifiesSupermajority reports whether sum/total >= the configured
// supermajority fraction num/den, computed without division so the
// comparison is exact: sum*den >= total*num.
func (m *Manager) qualifiesSupermajority(sum, total decimal.Decimal) bool {
	num, den := m.cfg.SupermajorityNumerator, m.cfg.SupermajorityDenominator
	if den == 0 {
		num, den = 2, 3
	}
	return sum.MulFrac(den, 1).GreaterOrEqual(total.MulFrac(num, 1))
}

// Commit persists winner as a confirmed Block at the given round and
// clears the in-memory vote log for height, since the round is now
// decided.
func (m *Manager) Commit(height uint64, round uint32, winnerHash [32]byte) (store.Block, error) {
	pending, err := m.store.GetPendingBlockHeader(winnerHash)
	if err != nil {
		return store.Block{}, errors.Wrap(err, "loading winning pending block")
	}

	block := store.Block{
		Header:      pending.Header,
		Hash:        pending.Hash,
		VotingRound: round,
	}
	if err := m.store.WriteBlock(block); err != nil {
		return store.Block{}, errors.Wrap(err, "writing committed block")
	}

	m.mu.Lock()
	delete(m.log, height)
	m.mu.Unlock()

	return block, nil
}

// UpdateParticipation applies the per-tally participation adjustment
// (§4.7) by delegating to the participation package: every registered
// miner's rate moves by ±delta depending on whether they cast a valid
// vote this round, clipped to [MinParticipationRate, MaxParticipationRate].
func (m *Manager) UpdateParticipation(votes []store.Vote) error {
	voted := make(map[crypto.Address]bool, len(votes))
	for _, v := range votes {
		voted[v.MinerAddress] = true
	}
	return m.participation.ApplyRoundOutcome(voted)
}
