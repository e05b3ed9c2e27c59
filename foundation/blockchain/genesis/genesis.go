// Package genesis loads the file that seeds a fresh node: the chain id, the
// registered miners and their starting stakes, and the initial account
// balances. Every node in the network must start from byte-identical
// genesis data or their confirmed chains will diverge from block 1.
package genesis

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
)

// MinerSeed is one entry of the genesis miner set: an address registered to
// vote from block 0, with its starting stake and participation rate.
type MinerSeed struct {
	Address           crypto.Address  `json:"address"`
	StakeAmount       decimal.Decimal `json:"stake_amount"`
	ParticipationRate decimal.Decimal `json:"participation_rate"`
}

// Genesis represents the genesis file: the agreed-upon starting state every
// node in the network loads before accepting its first transaction.
type Genesis struct {
	Date     time.Time                  `json:"date"`
	ChainID  uint16                     `json:"chain_id"`
	Miners   []MinerSeed                `json:"miners"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

// Load opens and parses the genesis file at path.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, errors.Wrap(err, "reading genesis file")
	}

	var g Genesis
	if err := json.Unmarshal(content, &g); err != nil {
		return Genesis{}, errors.Wrap(err, "unmarshal genesis file")
	}

	for i, m := range g.Miners {
		if m.ParticipationRate.IsZero() {
			g.Miners[i].ParticipationRate = decimal.MustParse("1.0")
		}
	}

	return g, nil
}

// BalanceOf returns the genesis balance for addr, or zero if addr was not
// seeded with an opening balance.
func (g Genesis) BalanceOf(addr crypto.Address) decimal.Decimal {
	if v, ok := g.Balances[addr.String()]; ok {
		return v
	}
	return decimal.Zero()
}
