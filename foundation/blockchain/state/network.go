package state

import (
	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// All the network access of the worker goes through these methods so the
// worker package doesn't need to know the network exists. They are no-ops
// until the network server registers itself.

// SendBlockToPeers shares a freshly mined block with the network.
func (s *State) SendBlockToPeers(block database.Block) {
	if s.Network == nil {
		return
	}

	s.Network.BroadcastBlock(database.NewBlockData(block))
}

// SendTxToPeers shares a submitted transaction with the network.
func (s *State) SendTxToPeers(tx database.SignedTx) {
	if s.Network == nil {
		return
	}

	s.Network.BroadcastTransaction(tx)
}

// ConnectToPeers dials every known peer that isn't connected yet and asks
// the connected ones for the peers they know.
func (s *State) ConnectToPeers() {
	if s.Network == nil {
		return
	}

	peers := s.knownPeers.Copy(s.host)
	hosts := make([]string, 0, len(peers))
	for _, peer := range peers {
		hosts = append(hosts, peer.Host)
	}

	s.Network.ConnectPeers(hosts)
	s.Network.RequestPeers()
}

// ConnectedHosts returns the hosts with a live connection right now.
func (s *State) ConnectedHosts() []string {
	if s.Network == nil {
		return nil
	}

	return s.Network.ConnectedHosts()
}

// RequestPeerBlocks asks the network for the next batch of blocks beyond
// our latest.
func (s *State) RequestPeerBlocks() {
	s.requestPeerBlocks()
}

func (s *State) requestPeerBlocks() {
	if s.Network == nil {
		return
	}

	latest := s.db.LatestBlock().Header.Number
	s.Network.RequestBlocks(latest+1, latest+syncBatchSize)
}
