// Package slasher detects equivocation — a registered miner signing two
// different candidate blocks at the same (height, round) — turns a proof
// of it into a slash transaction, and applies proven slashes to a miner's
// stake when they appear in a committed block.
package slasher

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/accounts"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

// ErrNoEquivocation is returned by Detect when no conflicting vote exists.
var ErrNoEquivocation = errors.New("slasher: no conflicting vote found")

// slashFee is the fee attached to an emitted slash transaction. Unlike a
// coinbase, a slash tx is not fee-funded by anyone's balance; it exists to
// carry a proof on-chain, so its fee is zero.
var slashFee = decimal.MustParse("0")

// Proof pairs two votes that prove the same miner signed two different
// candidate blocks at the same (height, round).
type Proof struct {
	A store.Vote
	B store.Vote
}

// proofWire is the JSON shape carried inside a slash transaction's Data.
// BlockNumber and VotingRound identify the equivocation itself — the
// offending votes' own (block_number, voting_round) — not the block the
// slash transaction is eventually confirmed in, so idempotency can be
// keyed on the equivocation rather than on whichever committed block
// happens to carry the proof.
type proofWire struct {
	TxType      string `json:"tx_type"`
	A           string `json:"vote_a"`
	B           string `json:"vote_b"`
	BlockNumber uint64 `json:"block_number"`
	VotingRound uint32 `json:"voting_round"`
}

// Detect searches existing for a vote that proves v's signer equivocated:
// same miner, same block_number and voting_round, a different block_hash.
// Both votes are re-verified before the pair is accepted as proof.
func Detect(v store.Vote, existing []store.Vote) (Proof, error) {
	for _, other := range existing {
		if other.MinerAddress != v.MinerAddress {
			continue
		}
		if other.BlockNumber != v.BlockNumber || other.VotingRound != v.VotingRound {
			continue
		}
		if other.BlockHash == v.BlockHash {
			continue
		}

		if err := verifyVote(v); err != nil {
			continue
		}
		if err := verifyVote(other); err != nil {
			continue
		}

		return Proof{A: v, B: other}, nil
	}

	return Proof{}, ErrNoEquivocation
}

// verifyProof re-derives the equivocation named by proof from the votes
// table and checks it the same way Detect does: both vote hashes resolve
// to persisted votes, both signatures recover to offender, both share
// proof's (block_number, voting_round), and their block_hash values
// differ. Apply must not trust a slash tx's claims on their own — §4.8
// requires the slash to be applied only for a proof that verifies, not
// merely one that was well-formed enough to decode.
func verifyProof(s *store.Store, proof proofWire, offender crypto.Address) error {
	hashA, err := decodeVoteHash(proof.A)
	if err != nil {
		return errors.Wrap(err, "decoding vote A hash")
	}
	hashB, err := decodeVoteHash(proof.B)
	if err != nil {
		return errors.Wrap(err, "decoding vote B hash")
	}

	voteA, err := s.GetVote(hashA)
	if err != nil {
		return errors.Wrap(err, "loading vote A")
	}
	voteB, err := s.GetVote(hashB)
	if err != nil {
		return errors.Wrap(err, "loading vote B")
	}

	for _, v := range []store.Vote{voteA, voteB} {
		if v.MinerAddress != offender {
			return errors.New("slasher: vote signer does not match slash target")
		}
		if v.BlockNumber != proof.BlockNumber || v.VotingRound != proof.VotingRound {
			return errors.New("slasher: vote does not match proof's block_number/voting_round")
		}
		if err := verifyVote(v); err != nil {
			return err
		}
	}

	if voteA.BlockHash == voteB.BlockHash {
		return errors.New("slasher: proof votes do not conflict")
	}

	return nil
}

func decodeVoteHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return hash, err
	}
	if len(raw) != len(hash) {
		return hash, errors.New("slasher: vote hash has wrong length")
	}
	copy(hash[:], raw)
	return hash, nil
}

func verifyVote(v store.Vote) error {
	signingHash, err := v.SigningHash()
	if err != nil {
		return err
	}
	signer, err := crypto.Recover(signingHash, crypto.Signature{V: v.V, R: v.R, S: v.S})
	if err != nil {
		return err
	}
	if !signer.Equal(v.MinerAddress) {
		return errors.New("slasher: vote signer mismatch")
	}
	return nil
}

// Emit builds and signs a slash transaction carrying proof against
// proof.A.MinerAddress, ready to be pushed into the mempool by the
// caller. The transaction is signed and nonced as self's own next
// transaction — self is the reporting node, not the offender — so that
// mempool.ValidTx's nonce check (t.Nonce == sender's current nonce + 1)
// actually passes and the tx is eligible for batching rather than sitting
// in the mempool forever.
func Emit(proof Proof, view *accounts.View, self crypto.Address, nodeKey *ecdsa.PrivateKey) (tx.Tx, error) {
	encodedA, err := proof.A.Hash()
	if err != nil {
		return tx.Tx{}, errors.Wrap(err, "hashing vote A")
	}
	encodedB, err := proof.B.Hash()
	if err != nil {
		return tx.Tx{}, errors.Wrap(err, "hashing vote B")
	}

	data, err := json.Marshal(proofWire{
		TxType:      tx.TypeSlash,
		A:           hex.EncodeToString(encodedA[:]),
		B:           hex.EncodeToString(encodedB[:]),
		BlockNumber: proof.A.BlockNumber,
		VotingRound: proof.A.VotingRound,
	})
	if err != nil {
		return tx.Tx{}, err
	}

	state, err := view.AccountState(self, nil)
	if err != nil {
		return tx.Tx{}, errors.Wrap(err, "loading reporting node's account state")
	}

	slashTx := tx.New(state.Nonce+1, proof.A.MinerAddress, decimal.Zero(), slashFee, data)
	return slashTx.Sign(nodeKey)
}

// Apply applies t — a confirmed transaction tagged tx_type=slash — to the
// offender's registered stake, reducing it by cfg.SlashPenaltyPercentage.
// It is a no-op if this exact equivocation was already applied, per
// §4.8's idempotency requirement: idempotency is keyed on the offending
// votes' own (block_number, voting_round), carried inside t's proof data,
// not on whichever block the slash transaction itself happens to be
// confirmed in — the same proof landing in two different committed
// blocks (e.g. after a reorg) must still slash only once.
func Apply(s *store.Store, cfg config.Consensus, t tx.Tx) error {
	txType, err := t.Type()
	if err != nil {
		return errors.Wrap(err, "reading slash tx type")
	}
	if txType != tx.TypeSlash {
		return errors.New("slasher: not a slash transaction")
	}

	var proof proofWire
	if err := json.Unmarshal(t.Data, &proof); err != nil {
		return errors.Wrap(err, "decoding slash proof")
	}

	if err := verifyProof(s, proof, t.To); err != nil {
		return errors.Wrap(err, "slasher: proof does not verify")
	}

	record := store.SlashRecord{Offender: t.To, BlockNumber: proof.BlockNumber, VotingRound: proof.VotingRound}
	already, err := s.HasSlash(record)
	if err != nil {
		return errors.Wrap(err, "checking slash idempotency")
	}
	if already {
		return nil
	}

	miner, err := s.GetMiner(t.To)
	if err != nil {
		return errors.Wrap(err, "loading offending miner")
	}

	penaltyPct, err := decimal.Parse(cfg.SlashPenaltyPercentage)
	if err != nil {
		return errors.Wrap(err, "parsing slash penalty percentage")
	}
	retained := decimal.FromInt64(1).Sub(penaltyPct)
	miner.StakeAmount = miner.StakeAmount.Mul(retained)

	if err := s.WriteMiner(miner); err != nil {
		return errors.Wrap(err, "writing slashed stake")
	}
	return s.WriteSlash(record)
}
