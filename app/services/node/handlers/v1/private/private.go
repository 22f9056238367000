// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/minervachain/minerva/foundation/blockchain/peer"
	"github.com/minervachain/minerva/foundation/blockchain/state"
	"github.com/minervachain/minerva/foundation/nameservice"
	"github.com/minervachain/minerva/foundation/web"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.LatestBlock()

	status := peer.PeerStatus{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		KnownPeers:        h.State.KnownExternalPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Peers returns the set of known peers and the hosts with a live connection.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		KnownPeers []peer.Peer `json:"known_peers"`
		Connected  []string    `json:"connected"`
	}{
		KnownPeers: h.State.KnownExternalPeers(),
		Connected:  h.State.ConnectedHosts(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SignalMining signals the node to mine the next block with whatever is
// sitting in the mempool.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.Worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signalled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
