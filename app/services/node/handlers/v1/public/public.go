// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v1 "github.com/minervachain/minerva/business/web/v1"
	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
	"github.com/minervachain/minerva/foundation/blockchain/state"
	"github.com/minervachain/minerva/foundation/blockchain/vm"
	"github.com/minervachain/minerva/foundation/events"
	"github.com/minervachain/minerva/foundation/nameservice"
	"github.com/minervachain/minerva/foundation/web"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx submitTx
	if err := web.Decode(r, &tx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}
	signedTx := tx.toSignedTx()

	h.Log.Infow("add user tran", "traceid", v.TraceID, "from:nonce", signedTx, "to", signedTx.ToID, "value", signedTx.Value, "fee", signedTx.Fee)
	if err := h.State.SubmitWalletTransaction(signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := web.Param(r, "account")

	mempool := h.State.Mempool()

	trans := []tx{}
	for _, tran := range mempool {
		if acct != "" && (acct != string(tran.FromID)) && (acct != string(tran.ToID)) {
			continue
		}

		trans = append(trans, tx{
			Type:      tran.Type,
			FromID:    tran.FromID,
			FromName:  h.NS.Lookup(tran.FromID),
			ToID:      tran.ToID,
			ToName:    h.NS.Lookup(tran.ToID),
			Nonce:     tran.Nonce,
			Value:     tran.Value,
			Fee:       tran.Fee,
			Data:      tran.Data,
			TimeStamp: tran.TimeStamp,
			Sig:       tran.SignatureString(),
		})
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the current balances for all accounts.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	var accounts map[address.AccountID]database.Account
	switch account {
	case "":
		accounts = h.State.Accounts()

	default:
		accountID, err := address.ToAccountID(account)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		act, exists := h.State.Account(accountID)
		if !exists {
			return v1.NewRequestError(errors.New("account not found"), http.StatusNotFound)
		}
		accounts = map[address.AccountID]database.Account{accountID: act}
	}

	acts := make([]info, 0, len(accounts))
	for accountID, act := range accounts {
		acts = append(acts, info{
			Account: accountID,
			Name:    h.NS.Lookup(accountID),
			Balance: act.Balance,
			Nonce:   act.Nonce,
		})
	}

	ai := actInfo{
		LatestBlock: h.State.LatestBlock().Hash(),
		Uncommitted: h.State.MempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// Contract returns the code size and decoded storage of a deployed contract.
func (h Handlers) Contract(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	contractID, err := address.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	contract, exists := h.State.Contract(contractID)
	if !exists {
		return v1.NewRequestError(database.ErrContractNotFound, http.StatusNotFound)
	}

	storage := make(map[string]string, len(contract.Storage))
	for key, data := range contract.Storage {
		value, _, err := vm.DecodeValue(data)
		if err != nil {
			storage[key] = fmt.Sprintf("%x", data)
			continue
		}
		storage[key] = value.String()
	}

	ci := contractInfo{
		Contract:  contract.ContractID,
		Owner:     contract.OwnerID,
		OwnerName: h.NS.Lookup(contract.OwnerID),
		CodeSize:  len(contract.Code),
		Storage:   storage,
	}

	return web.Respond(ctx, w, ci, http.StatusOK)
}

// BlocksByNumber returns the blocks for the specified to/from range.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if from > to {
		return v1.NewRequestError(errors.New("from greater than to"), http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocksByNumber(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		values := blk.Trans.Values()
		trans := make([]tx, len(values))
		for i, tran := range values {
			trans[i] = tx{
				Type:      tran.Type,
				FromID:    tran.FromID,
				FromName:  h.NS.Lookup(tran.FromID),
				ToID:      tran.ToID,
				ToName:    h.NS.Lookup(tran.ToID),
				Nonce:     tran.Nonce,
				Value:     tran.Value,
				Fee:       tran.Fee,
				Data:      tran.Data,
				TimeStamp: tran.TimeStamp,
				Sig:       tran.SignatureString(),
			}
		}

		blocks[j] = block{
			Hash:          blk.Hash(),
			PrevBlockHash: blk.Header.PrevBlockHash,
			BeneficiaryID: blk.Header.BeneficiaryID,
			Difficulty:    blk.Header.Difficulty,
			Number:        blk.Header.Number,
			TimeStamp:     blk.Header.TimeStamp,
			Nonce:         blk.Header.Nonce,
			TransRoot:     blk.Header.TransRoot,
			Transactions:  trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}
