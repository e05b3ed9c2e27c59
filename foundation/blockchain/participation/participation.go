// Package participation tracks each registered miner's rolling
// participation_rate: a monitoring signal, reserved for future use as a
// weighting input to candidate selection, that rises when a miner casts a
// valid vote in a round and decays when it doesn't. Two call sites feed
// it: the vote manager's per-tally update, and a periodic decay sweep for
// miners that go fully silent — no pending block, no vote, no round —
// and so would never otherwise be touched by a tally.
package participation

import (
	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/config"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
)

// Tracker applies the participation_rate adjustment rule against a
// Store's miners table.
type Tracker struct {
	store *store.Store

	min   decimal.Decimal
	max   decimal.Decimal
	delta decimal.Decimal
}

// New builds a Tracker whose bounds and step size come from cfg.
func New(s *store.Store, cfg config.Consensus) (*Tracker, error) {
	min, err := decimal.Parse(cfg.MinParticipationRate)
	if err != nil {
		return nil, errors.Wrap(err, "parsing min participation rate")
	}
	max, err := decimal.Parse(cfg.MaxParticipationRate)
	if err != nil {
		return nil, errors.Wrap(err, "parsing max participation rate")
	}
	delta, err := decimal.Parse(cfg.ParticipationDelta)
	if err != nil {
		return nil, errors.Wrap(err, "parsing participation delta")
	}

	return &Tracker{store: s, min: min, max: max, delta: delta}, nil
}

// Adjust returns miner with its participation_rate moved by +delta (voted)
// or -delta (abstained), clipped to [min, max]. It does not write to the
// Store; callers batch writes themselves.
func (t *Tracker) Adjust(miner store.Miner, voted bool) store.Miner {
	if voted {
		miner.ParticipationRate = clip(miner.ParticipationRate.Add(t.delta), t.min, t.max)
	} else {
		miner.ParticipationRate = clip(miner.ParticipationRate.Sub(t.delta), t.min, t.max)
	}
	return miner
}

// ApplyRoundOutcome updates every registered miner's participation_rate
// after a tally: voted maps the addresses that cast a valid vote this
// round to true; everyone else is treated as having abstained.
func (t *Tracker) ApplyRoundOutcome(voted map[crypto.Address]bool) error {
	miners, err := t.store.ListMiners()
	if err != nil {
		return errors.Wrap(err, "listing miners")
	}

	for _, miner := range miners {
		updated := t.Adjust(miner, voted[miner.Address])
		if err := t.store.WriteMiner(updated); err != nil {
			return errors.Wrapf(err, "writing participation update for %s", miner.Address)
		}
	}
	return nil
}

// DecaySweep decays every registered miner not present in active: the
// periodic pass (run by the worker's decay loop) for miners with no
// pending block, no cast vote, and no round in progress, which a
// per-tally update would never otherwise reach.
func (t *Tracker) DecaySweep(active map[crypto.Address]bool) error {
	miners, err := t.store.ListMiners()
	if err != nil {
		return errors.Wrap(err, "listing miners")
	}

	for _, miner := range miners {
		if active[miner.Address] {
			continue
		}
		updated := t.Adjust(miner, false)
		if err := t.store.WriteMiner(updated); err != nil {
			return errors.Wrapf(err, "writing decay for %s", miner.Address)
		}
	}
	return nil
}

func clip(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.Cmp(lo) < 0 {
		return lo
	}
	if v.Cmp(hi) > 0 {
		return hi
	}
	return v
}
