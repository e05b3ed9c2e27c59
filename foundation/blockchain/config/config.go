// Package config holds the tunable constants that govern consensus timing,
// supermajority thresholds, and resource bounds. Every value here has a
// sensible testnet default but can be overridden through the node's
// top-level NodeConfig (env vars or flags via ardanlabs/conf).
package config

import "time"

// Consensus carries every configurable constant referenced by the mempool,
// block assembler, vote manager, slasher, and participation tracker.
type Consensus struct {
	// VoteCollectionTimeout is how long a single voting interval waits
	// before the round either completes or escalates.
	VoteCollectionTimeout time.Duration `conf:"default:500ms"`

	// Intervals is the number of VoteCollectionTimeout windows a round
	// waits through before giving up and escalating.
	Intervals int `conf:"default:6"`

	// QuorumSize is the minimum number of distinct voters required before
	// a round's tally is considered meaningful.
	QuorumSize int `conf:"default:1"`

	// EarlyVoteCountingThreshold lets a round finish collection early once
	// this many valid votes for the round have arrived.
	EarlyVoteCountingThreshold int `conf:"default:50"`

	// WarmUp is how long a newly registered miner's votes are ignored, to
	// prevent a fresh deposit from swinging a round it has no history in.
	WarmUp time.Duration `conf:"default:48h"`

	// MinParticipationRate and MaxParticipationRate clip the per-miner
	// participation_rate after every adjustment.
	MinParticipationRate string `conf:"default:0.0001"`
	MaxParticipationRate string `conf:"default:1.0"`

	// SlashPenaltyPercentage is the fraction of stake removed on a proven
	// equivocation.
	SlashPenaltyPercentage string `conf:"default:0.20"`

	// SupermajorityNumerator and SupermajorityDenominator express the
	// vote-share a round's winning candidate must reach as an exact
	// fraction of total stake, avoiding any decimal rounding in the
	// comparison. The default of 2/3 is the two-thirds supermajority.
	SupermajorityNumerator   int64 `conf:"default:2"`
	SupermajorityDenominator int64 `conf:"default:3"`

	// TargetTxsPerBlock bounds how many mempool transactions the block
	// assembler pulls into one candidate block.
	TargetTxsPerBlock int `conf:"default:2"`

	// PendingTransactionQueryLimit bounds how many rows a single `list`
	// call against the mempool table returns.
	PendingTransactionQueryLimit int `conf:"default:2000"`

	// ParticipationDelta is how much participation_rate moves on each vote
	// (up on a valid vote cast, down on abstention), before clipping.
	ParticipationDelta string `conf:"default:0.01"`
}
