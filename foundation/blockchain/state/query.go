package state

import (
	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
	"github.com/minervachain/minerva/foundation/blockchain/genesis"
	"github.com/minervachain/minerva/foundation/blockchain/peer"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Host returns a copy of host information.
func (s *State) Host() string {
	return s.host
}

// BeneficiaryID returns the account the node mines for.
func (s *State) BeneficiaryID() address.AccountID {
	return s.beneficiaryID
}

// LatestBlock returns a copy of the current latest block.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// Difficulty returns the difficulty the next block must carry.
func (s *State) Difficulty() uint16 {
	return s.db.Difficulty()
}

// MempoolLength returns the current length of the mempool.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// Mempool returns a copy of the mempool in the selection order.
func (s *State) Mempool() []database.SignedTx {
	return s.mempool.PickBest(-1)
}

// Accounts returns a copy of the database accounts.
func (s *State) Accounts() map[address.AccountID]database.Account {
	return s.db.Accounts()
}

// Account returns a copy of the specified account.
func (s *State) Account(accountID address.AccountID) (database.Account, bool) {
	return s.db.Account(accountID)
}

// Contract returns a copy of the specified contract, code and storage.
func (s *State) Contract(contractID address.AccountID) (database.SmartContract, bool) {
	return s.db.Contract(contractID)
}

// QueryBlocksByNumber returns the set of blocks for the specified inclusive
// range. The run stops at the first gap, only contiguous blocks are
// returned.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	if from == QueryLatest {
		latest := s.db.LatestBlock().Header.Number
		from = latest
		to = latest
	}

	var blocks []database.Block
	for num := from; num <= to; num++ {
		block, err := s.db.GetBlock(num)
		if err != nil {
			break
		}
		blocks = append(blocks, block)
	}

	return blocks
}

// =============================================================================

// KnownExternalPeers retrieves a copy of the known peer list without this
// node.
func (s *State) KnownExternalPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to the known peer
// list. It reports whether the peer was unknown until now.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer from the known peer
// list.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}
