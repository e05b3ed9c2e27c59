package explorergrp

import (
	"encoding/hex"
	"errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
)

var errHashLength = errors.New("explorergrp: hash must be 32 bytes")

type header struct {
	Number      uint64 `json:"number"`
	PrevHash    string `json:"prev_hash"`
	StateRoot   string `json:"state_root"`
	ReceiptRoot string `json:"receipt_root"`
	TxRoot      string `json:"tx_root"`
	Proposer    string `json:"proposer"`
	Timestamp   uint64 `json:"timestamp"`
}

type block struct {
	Header      header `json:"header"`
	Hash        string `json:"hash"`
	VotingRound uint32 `json:"voting_round"`
}

func toBlock(b store.Block) block {
	return block{
		Header: header{
			Number:      b.Header.Number,
			PrevHash:    hexString(b.Header.PrevHash),
			StateRoot:   hexString(b.Header.StateRoot),
			ReceiptRoot: hexString(b.Header.ReceiptRoot),
			TxRoot:      hexString(b.Header.TxRoot),
			Proposer:    b.Header.Proposer.String(),
			Timestamp:   b.Header.Timestamp,
		},
		Hash:        hexString(b.Hash),
		VotingRound: b.VotingRound,
	}
}

type miner struct {
	Address           string `json:"address"`
	Name              string `json:"name,omitempty"`
	StakeAmount       string `json:"stake_amount"`
	ParticipationRate string `json:"participation_rate"`
}

type pendingTx struct {
	Hash   string `json:"hash"`
	To     string `json:"to"`
	Value  string `json:"value"`
	Fee    string `json:"fee"`
	TxType string `json:"tx_type"`
}

func hexString(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func parseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, errHashLength
	}
	copy(out[:], b)
	return out, nil
}
