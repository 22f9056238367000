// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16            `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16            `json:"difficulty"`      // The number of leading zero bits required in a block hash at height zero.
	MiningReward  uint64            `json:"mining_reward"`   // Reward for mining a block.
	GasLimit      uint64            `json:"gas_limit"`       // Gas budget a single contract execution is allowed to spend.
	BlockInterval uint64            `json:"block_interval"`  // Target seconds between blocks, drives difficulty retargeting.
	Balances      map[string]uint64 `json:"balance_sheet"`   // The initial accounts and their balances.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
