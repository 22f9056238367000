package state

import (
	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion
// into the mempool and shares it with the peer network.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) error {
	s.evHandler("state: SubmitWalletTransaction: started: tx[%s]", signedTx)
	defer s.evHandler("state: SubmitWalletTransaction: completed")

	if err := s.db.ValidateSubmission(signedTx); err != nil {
		return err
	}

	count := s.mempool.Upsert(signedTx)

	s.Worker.SignalShareTx(signedTx)
	if count >= int(s.genesis.TransPerBlock) {
		s.Worker.SignalStartMining()
	}

	return nil
}

// SubmitNodeTransaction accepts a transaction shared by a peer node for
// inclusion into the mempool.
func (s *State) SubmitNodeTransaction(signedTx database.SignedTx) error {
	s.evHandler("state: SubmitNodeTransaction: started: tx[%s]", signedTx)
	defer s.evHandler("state: SubmitNodeTransaction: completed")

	if err := s.db.ValidateSubmission(signedTx); err != nil {
		return err
	}

	count := s.mempool.Upsert(signedTx)

	if count >= int(s.genesis.TransPerBlock) {
		s.Worker.SignalStartMining()
	}

	return nil
}
