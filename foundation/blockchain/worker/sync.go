package worker

// Sync updates the peer list and catches the chain up with the network.
// This runs once before the operational goroutines start.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	// Dial the configured peers and ask them who they know.
	w.state.ConnectToPeers()

	// Ask for the blocks we are missing. The responses flow through the
	// network handler and are applied in order.
	w.state.RequestPeerBlocks()
}
