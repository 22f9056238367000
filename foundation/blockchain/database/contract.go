package database

import (
	"github.com/minervachain/minerva/foundation/blockchain/address"
)

// SmartContract represents deployed contract bytecode and the storage it
// has accumulated.
type SmartContract struct {
	ContractID address.AccountID `json:"contract_id"`
	OwnerID    address.AccountID `json:"owner_id"`
	Code       []byte            `json:"code"`
	Storage    map[string][]byte `json:"storage"`
}

// clone returns a deep copy of the contract so a caller can mutate storage
// without touching the ledger's copy.
func (sc SmartContract) clone() SmartContract {
	clone := sc
	clone.Storage = cloneStorage(sc.Storage)

	return clone
}

func cloneStorage(storage map[string][]byte) map[string][]byte {
	clone := make(map[string][]byte, len(storage))
	for k, v := range storage {
		data := make([]byte, len(v))
		copy(data, v)
		clone[k] = data
	}

	return clone
}
