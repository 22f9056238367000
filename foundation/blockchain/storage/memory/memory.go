// Package memory implements the database.Serializer interface using an in
// memory map of blocks. It exists for tests and for running a node without
// persistence.
package memory

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// Memory represents the serialization implementation for keeping blocks in
// memory.
type Memory struct {
	mu     sync.RWMutex
	blocks map[uint64]database.BlockData
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	return &Memory{
		blocks: make(map[uint64]database.BlockData),
	}, nil
}

// Close in this implementation has nothing to do.
func (m *Memory) Close() error {
	return nil
}

// Write stores the block data in the map keyed by block number.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[blockData.Header.Number] = blockData

	return nil
}

// GetBlock returns the block data for the specified block number.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blockData, exists := m.blocks[num]
	if !exists {
		return database.BlockData{}, fs.ErrNotExist
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks starting with
// block number 1.
func (m *Memory) ForEach() database.Iterator {
	return &MemoryIterator{memory: m}
}

// Reset clears out the stored blocks.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = make(map[uint64]database.BlockData)

	return nil
}

// =============================================================================

// MemoryIterator represents the iteration implementation for walking
// through the blocks in memory.
type MemoryIterator struct {
	memory  *Memory
	current uint64
	eoc     bool
}

// Next retrieves the next block from the map.
func (mi *MemoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	mi.current++
	blockData, err := mi.memory.GetBlock(mi.current)
	if errors.Is(err, fs.ErrNotExist) {
		mi.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (mi *MemoryIterator) Done() bool {
	return mi.eoc
}
