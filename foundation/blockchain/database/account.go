package database

import (
	"github.com/minervachain/minerva/foundation/blockchain/address"
)

// Account represents information stored in the ledger for an individual
// account.
type Account struct {
	AccountID address.AccountID
	Nonce     uint64 // The nonce the account's next transaction must carry.
	Balance   uint64
}

// newAccount constructs a new account value for use inside the ledger.
func newAccount(accountID address.AccountID, balance uint64) Account {
	return Account{
		AccountID: accountID,
		Balance:   balance,
	}
}
