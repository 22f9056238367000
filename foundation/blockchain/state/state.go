// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"sync"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
	"github.com/minervachain/minerva/foundation/blockchain/genesis"
	"github.com/minervachain/minerva/foundation/blockchain/mempool"
	"github.com/minervachain/minerva/foundation/blockchain/peer"
)

// syncBatchSize is the number of blocks requested from peers per round when
// catching up with the chain.
const syncBatchSize = 100

// EventHandler defines a function that is called when events occur in the
// processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for mining, peer updates, and transaction
// sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.SignedTx)
}

// Network interface represents the behavior required to be implemented by
// any package providing support for talking to peer nodes.
type Network interface {
	BroadcastTransaction(tx database.SignedTx)
	BroadcastBlock(block database.BlockData)
	RequestBlocks(from uint64, to uint64)
	RequestPeers()
	ConnectPeers(hosts []string)
	ConnectedHosts() []string
}

// =============================================================================

// Config represents the configuration required to start the blockchain
// node.
type Config struct {
	BeneficiaryID  address.AccountID
	Host           string
	Genesis        genesis.Genesis
	Serializer     database.Serializer
	SelectStrategy string
	KnownPeers     *peer.PeerSet
	EvHandler      EventHandler
}

// State manages the blockchain database, the mempool and the coordination
// with the worker and the peer network.
type State struct {
	mu sync.Mutex

	beneficiaryID address.AccountID
	host          string
	evHandler     EventHandler

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	// The Worker and Network are not set here. The calls to worker.Run and
	// the network server startup assign themselves so the packages don't
	// import each other.
	Worker  Worker
	Network Network
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Genesis, cfg.Serializer, ev)
	if err != nil {
		return nil, err
	}

	mempool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		host:          cfg.Host,
		evHandler:     ev,

		knownPeers: cfg.KnownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool,
		db:         db,
	}

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database is properly closed.
	defer s.db.Close()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}
