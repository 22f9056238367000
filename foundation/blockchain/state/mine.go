package state

import (
	"context"
	"errors"

	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Attempt to create a new block by solving the POW puzzle.
	// This can be cancelled.
	trans := s.mempool.PickBest(int(s.genesis.TransPerBlock))
	block, err := database.POW(ctx, database.POWArgs{
		BeneficiaryID: s.beneficiaryID,
		Difficulty:    s.db.Difficulty(),
		MiningReward:  s.genesis.MiningReward,
		PrevBlock:     s.db.LatestBlock(),
		Trans:         trans,
		EvHandler:     s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: commit to local state")

	if err := s.commitBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if it passes, commits it to the chain. Any in-flight mining operation is
// cancelled first and not allowed to restart until the state change here is
// complete.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: block[%s]", block.Hash())
	defer s.evHandler("state: ProcessProposedBlock: completed")

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. That goroutine will not return from its function until
	// done is called. That allows this function to complete its state
	// changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	if err := s.commitBlock(block); err != nil {
		if errors.Is(err, database.ErrChainForked) {
			s.resync()
		}
		return err
	}

	return nil
}

// ProcessPeerBlocks applies a batch of blocks received from a peer in chain
// order, aborting on the first failure. A full batch asks for the next one.
func (s *State) ProcessPeerBlocks(blocks []database.BlockData) error {
	s.evHandler("state: ProcessPeerBlocks: started: blocks[%d]", len(blocks))
	defer s.evHandler("state: ProcessPeerBlocks: completed")

	if len(blocks) == 0 {
		return nil
	}

	done := s.Worker.SignalCancelMining()
	defer done()

	for _, blockData := range blocks {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return err
		}

		if err := s.commitBlock(block); err != nil {
			return err
		}
	}

	// The peer filled the whole batch, there is probably more chain where
	// that came from.
	if len(blocks) == syncBatchSize {
		s.requestPeerBlocks()
	}

	return nil
}

// =============================================================================

// commitBlock runs the all-or-nothing block application and prunes the
// mempool of the transactions the block carried.
func (s *State) commitBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ApplyBlock(block, s.evHandler); err != nil {
		return err
	}

	for _, tx := range block.Trans.Values() {
		s.mempool.Delete(tx)
	}

	return nil
}

// resync throws away the local chain and asks the network for the whole
// thing again. Used when a fork is detected, first seen wins locally but a
// longer chain elsewhere means we start over.
func (s *State) resync() {
	s.evHandler("state: resync: started")
	defer s.evHandler("state: resync: completed")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Truncate()

	if err := s.db.Reset(); err != nil {
		s.evHandler("state: resync: ERROR: %s", err)
		return
	}

	if s.Network != nil {
		s.Network.RequestBlocks(1, syncBatchSize)
	}
}
