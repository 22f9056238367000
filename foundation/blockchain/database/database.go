// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining an in-memory ledger of accounts and
// contracts.
package database

import (
	"fmt"
	"sync"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/genesis"
)

// retargetWindow is the number of blocks between difficulty adjustments.
const retargetWindow = 10

// Serializer interface represents the behavior required to be implemented
// by any package providing support for storing and reading the blockchain.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator provides block by block access to the chain in storage.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the chain in storage and the ledger state derived from
// it. All access is behind one mutex, reads hand out copies.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	ledger      *Ledger

	// Expected difficulty for the next block and the timestamp the current
	// retarget window opened at.
	difficulty  uint16
	windowStart uint64

	serializer Serializer
}

// New constructs a new database, seeds the ledger from genesis and replays
// any blocks already in storage. A block in storage that doesn't validate
// or apply aborts startup, a corrupt store is the one fatal condition.
func New(genesis genesis.Genesis, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	ledger, err := newLedger(genesis)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis:    genesis,
		ledger:     ledger,
		difficulty: genesis.Difficulty,
		serializer: serializer,
	}

	iter := serializer.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		if err := db.commit(block, false, evHandler); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", block.Header.Number, err)
		}
	}

	return &db, nil
}

// Close closes the open blocks storage.
func (db *Database) Close() {
	db.serializer.Close()
}

// Reset wipes storage and re-initializes the database back to the genesis
// state. Used when a fork forces a resync from scratch.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.serializer.Reset(); err != nil {
		return err
	}

	ledger, err := newLedger(db.genesis)
	if err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.ledger = ledger
	db.difficulty = db.genesis.Difficulty
	db.windowStart = 0

	return nil
}

// =============================================================================

// ApplyBlock validates the block against the current chain state and, when
// every transaction applies cleanly, commits it: the block is serialized,
// the mutated ledger clone is swapped in and the block becomes the latest.
func (db *Database) ApplyBlock(block Block, evHandler func(v string, args ...any)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.commit(block, true, evHandler)
}

// commit runs the all-or-nothing block application. The caller holds the
// lock. Replay skips persisting since the block came from storage.
func (db *Database) commit(block Block, persist bool, evHandler func(v string, args ...any)) error {
	if err := block.ValidateBlock(db.latestBlock, db.difficulty, db.genesis.MiningReward, evHandler); err != nil {
		return err
	}

	// Every transaction is applied to a clone of the ledger. Any failure
	// discards the clone and the chain state is untouched.
	ledger := db.ledger.Clone()
	for _, tx := range block.Trans.Values() {
		vmErr, err := ledger.ApplyTx(db.genesis.GasLimit, tx)
		if err != nil {
			return fmt.Errorf("apply tx %s: %w", tx, err)
		}
		if vmErr != nil {
			evHandler("database: commit: blk[%d]: tx[%s]: contract execution failed: %s", block.Header.Number, tx, vmErr)
		}
	}

	if persist {
		if err := db.serializer.Write(NewBlockData(block)); err != nil {
			return err
		}
	}

	db.ledger = ledger
	db.latestBlock = block
	db.retarget(block)

	return nil
}

// retarget adjusts the expected difficulty at the end of each window. The
// adjustment is saturating and coarse, one bit either way, floored at 1.
func (db *Database) retarget(block Block) {
	if db.windowStart == 0 {
		db.windowStart = block.Header.TimeStamp
		return
	}

	if block.Header.Number%retargetWindow != 0 {
		return
	}

	elapsed := block.Header.TimeStamp - db.windowStart
	target := retargetWindow * db.genesis.BlockInterval

	switch {
	case elapsed < target/2:
		db.difficulty++
	case elapsed > target*2 && db.difficulty > 1:
		db.difficulty--
	}

	db.windowStart = block.Header.TimeStamp
}

// =============================================================================

// ValidateSubmission checks a transaction entering the mempool against the
// current ledger. Future nonces are allowed here, transactions queue in the
// mempool until their nonce comes up.
func (db *Database) ValidateSubmission(tx SignedTx) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.validateTx(tx, false)
}

// Account returns a copy of the specified account.
func (db *Database) Account(accountID address.AccountID) (Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.Account(accountID)
}

// Accounts makes a copy of the current accounts in the ledger.
func (db *Database) Accounts() map[address.AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.Accounts()
}

// Contract returns a copy of the specified contract, code and storage.
func (db *Database) Contract(contractID address.AccountID) (SmartContract, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger.Contract(contractID)
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Difficulty returns the difficulty the next block is expected to carry.
func (db *Database) Difficulty() uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.difficulty
}

// GetBlock searches the chain in storage to locate and return the block
// with the specified number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.serializer.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// ForEach returns an iterator to walk through all the blocks starting with
// block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.serializer.ForEach()}
}
