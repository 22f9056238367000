// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"fmt"
	"strings"
	"sync"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
	"github.com/minervachain/minerva/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of transactions organized by account:nonce.
type Mempool struct {
	pool     map[string]database.SignedTx
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with the specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.SignedTx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A transaction with
// the same account and nonce replaces the one already pooled.
func (mp *Mempool) Upsert(tx database.SignedTx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[mapKey(tx)] = tx

	return len(mp.pool)
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx))
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.SignedTx)
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next block. Passing -1 returns the whole pool in
// the strategy's ordering.
func (mp *Mempool) PickBest(howMany int) []database.SignedTx {

	// Group the transactions by account.
	m := make(map[address.AccountID][]database.SignedTx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for key, tx := range mp.pool {
			account := accountFromMapKey(key)
			m[account] = append(m[account], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// =============================================================================

// mapKey is used to generate the map key.
func mapKey(tx database.SignedTx) string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}

// accountFromMapKey extracts the account information from the map key.
func accountFromMapKey(key string) address.AccountID {
	return address.AccountID(strings.Split(key, ":")[0])
}
