package public

// minerInfo is the wire shape returned by the miner stake lookup: the
// stake amount and participation rate this node currently has on record
// for the address.
type minerInfo struct {
	Address           string `json:"address"`
	StakeAmount       string `json:"stake_amount"`
	ParticipationRate string `json:"participation_rate"`
}
