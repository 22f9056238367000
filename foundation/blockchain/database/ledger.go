package database

import (
	"fmt"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/genesis"
	"github.com/minervachain/minerva/foundation/blockchain/vm"
)

// Ledger holds the account balances, nonces and deployed contracts. It is
// mutated only through ApplyTx and is not safe for concurrent use, the
// database serializes access to it.
type Ledger struct {
	accounts  map[address.AccountID]Account
	contracts map[address.AccountID]SmartContract
}

// newLedger constructs a ledger seeded with the genesis balances.
func newLedger(genesis genesis.Genesis) (*Ledger, error) {
	ledger := Ledger{
		accounts:  make(map[address.AccountID]Account),
		contracts: make(map[address.AccountID]SmartContract),
	}

	for accountStr, balance := range genesis.Balances {
		accountID, err := address.ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}

		ledger.accounts[accountID] = newAccount(accountID, balance)
	}

	return &ledger, nil
}

// Clone makes a deep copy of the ledger. Block application mutates a clone
// and swaps it in only when every transaction applied.
func (l *Ledger) Clone() *Ledger {
	clone := Ledger{
		accounts:  make(map[address.AccountID]Account, len(l.accounts)),
		contracts: make(map[address.AccountID]SmartContract, len(l.contracts)),
	}

	for accountID, account := range l.accounts {
		clone.accounts[accountID] = account
	}
	for contractID, contract := range l.contracts {
		clone.contracts[contractID] = contract.clone()
	}

	return &clone
}

// Account returns a copy of the specified account.
func (l *Ledger) Account(accountID address.AccountID) (Account, bool) {
	account, exists := l.accounts[accountID]
	return account, exists
}

// Accounts returns a copy of the full account set.
func (l *Ledger) Accounts() map[address.AccountID]Account {
	accounts := make(map[address.AccountID]Account, len(l.accounts))
	for accountID, account := range l.accounts {
		accounts[accountID] = account
	}

	return accounts
}

// Contract returns a copy of the specified contract.
func (l *Ledger) Contract(contractID address.AccountID) (SmartContract, bool) {
	contract, exists := l.contracts[contractID]
	if !exists {
		return SmartContract{}, false
	}

	return contract.clone(), true
}

// =============================================================================

// ValidateTx checks a transaction against the current ledger state without
// mutating anything. It returns the first failure it finds. The nonce must
// be exactly the account's next nonce.
func (l *Ledger) ValidateTx(tx SignedTx) error {
	return l.validateTx(tx, true)
}

// validateTx runs the checks. With strict unset a nonce ahead of the
// account's next nonce is accepted, which is the mempool admission rule.
func (l *Ledger) validateTx(tx SignedTx, strict bool) error {
	if tx.IsReward() {
		return fmt.Errorf("%w: reward transactions can't be submitted", ErrInvalidSignature)
	}

	if err := tx.Validate(); err != nil {
		return err
	}

	switch tx.Type {
	case TxTransfer:
		if !tx.ToID.IsAccountID() {
			return ErrMissingRecipient
		}

	case TxContractCreate:
		if len(tx.Data) == 0 {
			return ErrEmptyPayload
		}

	case TxContractCall:
		if !tx.ToID.IsAccountID() {
			return ErrMissingContractAddress
		}
		if _, exists := l.contracts[tx.ToID]; !exists {
			return ErrContractNotFound
		}

	default:
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	account := l.accounts[tx.FromID]

	switch {
	case strict && tx.Nonce != account.Nonce:
		return fmt.Errorf("%w: got %d, exp %d", ErrInvalidNonce, tx.Nonce, account.Nonce)
	case !strict && tx.Nonce < account.Nonce:
		return fmt.Errorf("%w: got %d, already used", ErrInvalidNonce, tx.Nonce)
	}

	if account.Balance < tx.Value+tx.Fee {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, account.Balance, tx.Value+tx.Fee)
	}

	return nil
}

// ApplyTx applies the transaction to the ledger. A non nil err means the
// transaction is invalid against this state and nothing changed. A non nil
// vmErr means a contract execution failed, in that case the fee was still
// collected and the nonce still advanced but no contract effect took place.
// Fees reach the beneficiary only through the block's reward transaction,
// which carries the mining reward plus the fees of the block.
func (l *Ledger) ApplyTx(gasLimit uint64, tx SignedTx) (vmErr error, err error) {
	if tx.IsReward() {
		beneficiary := l.accounts[tx.ToID]
		beneficiary.AccountID = tx.ToID
		beneficiary.Balance += tx.Value
		l.accounts[tx.ToID] = beneficiary
		return nil, nil
	}

	if err := l.ValidateTx(tx); err != nil {
		return nil, err
	}

	from := l.accounts[tx.FromID]

	switch tx.Type {
	case TxTransfer:
		from.Balance -= tx.Value + tx.Fee
		from.Nonce++
		l.accounts[tx.FromID] = from

		to := l.accounts[tx.ToID]
		to.AccountID = tx.ToID
		to.Balance += tx.Value
		l.accounts[tx.ToID] = to
		return nil, nil

	case TxContractCreate:
		from.Balance -= tx.Fee
		from.Nonce++
		l.accounts[tx.FromID] = from

		contractID := address.NewContractID(tx.FromID, tx.Nonce)
		l.contracts[contractID] = SmartContract{
			ContractID: contractID,
			OwnerID:    tx.FromID,
			Code:       tx.Data,
			Storage:    make(map[string][]byte),
		}
		return nil, nil

	case TxContractCall:

		// The fee is collected and the nonce advanced regardless of how the
		// execution turns out.
		from.Balance -= tx.Fee
		from.Nonce++
		l.accounts[tx.FromID] = from

		contract := l.contracts[tx.ToID]

		// The machine runs against a copy of the contract storage so a failed
		// execution leaves the persisted storage untouched.
		machine := vm.New(contract.Code, gasLimit, cloneStorage(contract.Storage))
		if _, vmErr := machine.Run(); vmErr != nil {
			return vmErr, nil
		}

		contract.Storage = machine.Storage()
		l.contracts[tx.ToID] = contract

		if tx.Value > 0 {
			from = l.accounts[tx.FromID]
			from.Balance -= tx.Value
			l.accounts[tx.FromID] = from

			to := l.accounts[tx.ToID]
			to.AccountID = tx.ToID
			to.Balance += tx.Value
			l.accounts[tx.ToID] = to
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unknown transaction type %q", tx.Type)
}
