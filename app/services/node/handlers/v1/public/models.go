package public

import (
	"math/big"

	"github.com/minervachain/minerva/business/sys/validate"
	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// submitTx is the payload a wallet posts to submit a signed transaction.
// The field layout matches the wire form of a signed transaction.
type submitTx struct {
	Type      database.TxType   `json:"type" validate:"required,oneof=transfer contract_create contract_call"`
	FromID    address.AccountID `json:"from" validate:"required"`
	ToID      address.AccountID `json:"to"`
	Value     uint64            `json:"value"`
	Fee       uint64            `json:"fee"`
	Data      []byte            `json:"data"`
	Nonce     uint64            `json:"nonce"`
	TimeStamp uint64            `json:"timestamp" validate:"required"`
	V         *big.Int          `json:"v" validate:"required"`
	R         *big.Int          `json:"r" validate:"required"`
	S         *big.Int          `json:"s" validate:"required"`
}

// Validate checks the payload is complete before it reaches the state.
func (tx submitTx) Validate() error {
	return validate.Check(tx)
}

// toSignedTx converts the payload into a database signed transaction.
func (tx submitTx) toSignedTx() database.SignedTx {
	return database.SignedTx{
		Tx: database.Tx{
			Type:      tx.Type,
			FromID:    tx.FromID,
			ToID:      tx.ToID,
			Value:     tx.Value,
			Fee:       tx.Fee,
			Data:      tx.Data,
			Nonce:     tx.Nonce,
			TimeStamp: tx.TimeStamp,
		},
		V: tx.V,
		R: tx.R,
		S: tx.S,
	}
}

type tx struct {
	Type      database.TxType   `json:"type"`
	FromID    address.AccountID `json:"from"`
	FromName  string            `json:"from_name"`
	ToID      address.AccountID `json:"to"`
	ToName    string            `json:"to_name"`
	Nonce     uint64            `json:"nonce"`
	Value     uint64            `json:"value"`
	Fee       uint64            `json:"fee"`
	Data      []byte            `json:"data,omitempty"`
	TimeStamp uint64            `json:"timestamp"`
	Sig       string            `json:"sig"`
}

type info struct {
	Account address.AccountID `json:"account"`
	Name    string            `json:"name"`
	Balance uint64            `json:"balance"`
	Nonce   uint64            `json:"nonce"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type block struct {
	Hash          string            `json:"hash"`
	PrevBlockHash string            `json:"prev_block_hash"`
	BeneficiaryID address.AccountID `json:"beneficiary"`
	Difficulty    uint16            `json:"difficulty"`
	Number        uint64            `json:"number"`
	TimeStamp     uint64            `json:"timestamp"`
	Nonce         uint64            `json:"nonce"`
	TransRoot     string            `json:"trans_root"`
	Transactions  []tx              `json:"txs"`
}

type contractInfo struct {
	Contract  address.AccountID `json:"contract"`
	Owner     address.AccountID `json:"owner"`
	OwnerName string            `json:"owner_name"`
	CodeSize  int               `json:"code_size"`
	Storage   map[string]string `json:"storage"`
}
