package state

import (
	"github.com/minervachain/minerva/foundation/blockchain/database"
	"github.com/minervachain/minerva/foundation/blockchain/peer"
)

// The methods in this file implement the network.Handler interface. Every
// inbound frame from a peer lands here.

// HandleTransaction processes a transaction shared by a peer.
func (s *State) HandleTransaction(tx database.SignedTx) error {
	return s.SubmitNodeTransaction(tx)
}

// HandleBlock processes a freshly minted block announced by a peer.
func (s *State) HandleBlock(blockData database.BlockData) error {
	block, err := database.ToBlock(blockData)
	if err != nil {
		return err
	}

	return s.ProcessProposedBlock(block)
}

// HandleBlocks processes a batch of blocks answering one of our catch-up
// requests.
func (s *State) HandleBlocks(blocks []database.BlockData) error {
	return s.ProcessPeerBlocks(blocks)
}

// BlocksRange returns the contiguous run of blocks for the inclusive range,
// stopping at the first gap.
func (s *State) BlocksRange(from uint64, to uint64) []database.BlockData {
	blocks := s.QueryBlocksByNumber(from, to)

	blocksData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blocksData[i] = database.NewBlockData(block)
	}

	return blocksData
}

// KnownHosts returns the hosts of the peers this node knows about.
func (s *State) KnownHosts() []string {
	peers := s.knownPeers.Copy(s.host)

	hosts := make([]string, 0, len(peers))
	for _, peer := range peers {
		hosts = append(hosts, peer.Host)
	}

	return hosts
}

// NewPeerHost records a host learned from the network. It is dialed on the
// next peer operation tick.
func (s *State) NewPeerHost(host string) {
	if s.AddKnownPeer(peer.New(host)) {
		s.evHandler("state: NewPeerHost: adding peer %s", host)
	}
}
