package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/signature"
)

// TxType identifies what a transaction does to the ledger. The set is
// closed, validation rejects anything else.
type TxType string

// Set of transaction types.
const (
	TxTransfer       TxType = "transfer"
	TxContractCreate TxType = "contract_create"
	TxContractCall   TxType = "contract_call"
)

// Set of transaction validation errors. Validation produces exactly one of
// these for a bad transaction.
var (
	ErrSenderMismatch         = errors.New("signing key does not belong to the from account")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrMissingRecipient       = errors.New("transfer requires a recipient")
	ErrEmptyPayload           = errors.New("contract creation requires bytecode")
	ErrMissingContractAddress = errors.New("contract call requires a contract address")
	ErrContractNotFound       = errors.New("contract not found")
)

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	Type      TxType            `json:"type"`      // What this transaction does to the ledger.
	FromID    address.AccountID `json:"from"`      // Account sending the transaction.
	ToID      address.AccountID `json:"to"`        // Recipient account or contract account.
	Value     uint64            `json:"value"`     // Monetary value moved by this transaction.
	Fee       uint64            `json:"fee"`       // Fee offered to the miner of the block.
	Data      []byte            `json:"data"`      // Contract bytecode for creation, unused otherwise.
	Nonce     uint64            `json:"nonce"`     // Sequence number, must be the account's next nonce.
	TimeStamp uint64            `json:"timestamp"` // The time the transaction was constructed.
}

// NewTx constructs a new unsigned transaction stamped with the current time.
func NewTx(typ TxType, fromID address.AccountID, toID address.AccountID, value uint64, fee uint64, data []byte, nonce uint64) Tx {
	return Tx{
		Type:      typ,
		FromID:    fromID,
		ToID:      toID,
		Value:     value,
		Fee:       fee,
		Data:      data,
		Nonce:     nonce,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}

// UniqueID returns a hash over the unsigned transaction that identifies it
// across the mempool, blocks and the network.
func (tx Tx) UniqueID() string {
	return signature.Hash(tx)
}

// IsReward reports whether this is the block reward transaction. Reward
// transactions carry no signature and only exist inside blocks.
func (tx Tx) IsReward() bool {
	return tx.FromID == address.CoinbaseID
}

// Sign uses the specified private key to sign the transaction. The key must
// belong to the from account.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if address.FromPublicKey(privateKey.PublicKey) != tx.FromID {
		return SignedTx{}, ErrSenderMismatch
	}

	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 29 or 30 with the minervaID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// NewRewardTx constructs the coinbase transaction paying the block reward
// plus the collected fees to the beneficiary. It carries no signature.
func NewRewardTx(beneficiaryID address.AccountID, value uint64) SignedTx {
	tx := Tx{
		Type:      TxTransfer,
		FromID:    address.CoinbaseID,
		ToID:      beneficiaryID,
		Value:     value,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}

	return SignedTx{Tx: tx}
}

// Validate verifies the signature is well formed and that the account it
// recovers to is the from account.
func (tx SignedTx) Validate() error {
	publicKey, err := signature.RecoverPublicKey(tx.Tx, tx.V, tx.R, tx.S)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if address.FromPublicKey(*publicKey) != tx.FromID {
		return fmt.Errorf("%w: recovered signer does not match from account", ErrInvalidSignature)
	}

	return nil
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}

// Hash implements the merkle Hashable interface for providing a hash of a
// transaction as recorded in a block. The leaf hashes the signed form
// including V, R, S so the merkle root commits to the signatures, not just
// the transaction ids.
func (tx SignedTx) Hash() ([]byte, error) {
	return signature.HashBytes(tx)
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions. Two transactions with the same unique id
// are the same.
func (tx SignedTx) Equals(otherTx SignedTx) bool {
	return tx.UniqueID() == otherTx.UniqueID()
}
