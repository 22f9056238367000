// Package bolt implements the database.Serializer interface on top of a
// single bbolt file. All blocks live in one bucket keyed by block number.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io/fs"

	bbolt "go.etcd.io/bbolt"

	"github.com/minervachain/minerva/foundation/blockchain/database"
)

var bucketBlocks = []byte("blocks")

// Bolt represents the serialization implementation for reading and storing
// blocks in a bbolt database file.
type Bolt struct {
	db *bbolt.DB
}

// New opens or creates the bbolt file at the specified path.
func New(dbPath string) (*Bolt, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlocks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Close closes the underlying bbolt file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Write stores the block data under its block number.
func (b *Bolt) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(blockKey(blockData.Header.Number), data)
	})
}

// GetBlock returns the block data for the specified block number.
func (b *Bolt) GetBlock(num uint64) (database.BlockData, error) {
	var blockData database.BlockData

	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBlocks).Get(blockKey(num))
		if data == nil {
			return fs.ErrNotExist
		}
		return json.Unmarshal(data, &blockData)
	})
	if err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks starting with
// block number 1.
func (b *Bolt) ForEach() database.Iterator {
	return &BoltIterator{bolt: b}
}

// Reset drops and recreates the blocks bucket.
func (b *Bolt) Reset() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketBlocks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketBlocks)
		return err
	})
}

// blockKey converts a block number into a big endian key so the bucket
// iterates in chain order.
func blockKey(num uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, num)
	return key
}

// =============================================================================

// BoltIterator represents the iteration implementation for walking through
// the blocks in the bucket.
type BoltIterator struct {
	bolt    *Bolt
	current uint64
	eoc     bool
}

// Next retrieves the next block from the bucket.
func (bi *BoltIterator) Next() (database.BlockData, error) {
	if bi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	bi.current++
	blockData, err := bi.bolt.GetBlock(bi.current)
	if errors.Is(err, fs.ErrNotExist) {
		bi.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (bi *BoltIterator) Done() bool {
	return bi.eoc
}
