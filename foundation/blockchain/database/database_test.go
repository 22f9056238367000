package database_test

import (
	"encoding/hex"
	"errors"
	"math/bits"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
	"github.com/minervachain/minerva/foundation/blockchain/genesis"
	"github.com/minervachain/minerva/foundation/blockchain/merkle"
	"github.com/minervachain/minerva/foundation/blockchain/signature"
	"github.com/minervachain/minerva/foundation/blockchain/storage/memory"
	"github.com/minervachain/minerva/foundation/blockchain/vm"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// Keys used across the tests. The account ids are derived at runtime.
const (
	athenaKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	hermesKey = "9f332e3700d8fc2fb1bdddb3d3b1ea98d75b2c4ebd85f45f0b1ed0a9ee5d4dba"
)

var noop = func(v string, args ...any) {}

// =============================================================================

func accountID(t *testing.T, hexKey string) address.AccountID {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("unable to parse private key: %v", err)
	}

	return address.FromPublicKey(pk.PublicKey)
}

func sign(t *testing.T, hexKey string, tx database.Tx) database.SignedTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("unable to parse private key: %v", err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("unable to sign transaction: %v", err)
	}

	return signedTx
}

func newDatabase(t *testing.T, gen genesis.Genesis) *database.Database {
	t.Helper()

	serializer, err := memory.New()
	if err != nil {
		t.Fatalf("unable to construct storage: %v", err)
	}

	db, err := database.New(gen, serializer, noop)
	if err != nil {
		t.Fatalf("unable to open database: %v", err)
	}

	return db
}

// isSolved mirrors the POW acceptance rule for the solver below.
func isSolved(difficulty uint16, hash string) bool {
	raw, err := hex.DecodeString(hash[2:])
	if err != nil || len(raw) != 32 {
		return false
	}

	var leading uint16
	for _, b := range raw {
		if b == 0 {
			leading += 8
			continue
		}
		leading += uint16(bits.LeadingZeros8(b))
		break
	}

	return leading >= difficulty
}

// solve mines a block with full control over the timestamp so consecutive
// blocks don't need wall clock time between them.
func solve(t *testing.T, beneficiaryID address.AccountID, difficulty uint16, reward uint64, prev database.Block, timeStamp uint64, txs []database.SignedTx) database.Block {
	t.Helper()

	var fees uint64
	for _, tx := range txs {
		fees += tx.Fee
	}

	trans := make([]database.SignedTx, 0, len(txs)+1)
	trans = append(trans, database.NewRewardTx(beneficiaryID, reward+fees))
	trans = append(trans, txs...)

	tree, err := merkle.NewTree(trans)
	if err != nil {
		t.Fatalf("unable to construct merkle tree: %v", err)
	}

	prevBlockHash := signature.ZeroHash
	if prev.Header.Number > 0 {
		prevBlockHash = prev.Hash()
	}

	block := database.Block{
		Header: database.BlockHeader{
			Version:       1,
			PrevBlockHash: prevBlockHash,
			TimeStamp:     timeStamp,
			BeneficiaryID: beneficiaryID,
			Difficulty:    difficulty,
			Number:        prev.Header.Number + 1,
			TransRoot:     tree.RootHex(),
		},
		Trans: tree,
	}

	for nonce := uint64(0); ; nonce++ {
		block.Header.Nonce = nonce
		if isSolved(difficulty, block.Hash()) {
			return block
		}
	}
}

// =============================================================================

func Test_Transactions(t *testing.T) {
	t.Log("Given the need to apply transfer transactions to the ledger.")
	{
		athenaID := accountID(t, athenaKey)
		hermesID := accountID(t, hermesKey)

		gen := genesis.Genesis{
			ChainID:       29,
			Difficulty:    1,
			MiningReward:  100,
			GasLimit:      1000,
			BlockInterval: 30,
			Balances: map[string]uint64{
				string(athenaID): 1000,
			},
		}

		t.Logf("\tTest 0:\tWhen applying a block with two transfers.")
		{
			db := newDatabase(t, gen)

			txs := []database.SignedTx{
				sign(t, athenaKey, database.NewTx(database.TxTransfer, athenaID, hermesID, 100, 50, nil, 0)),
				sign(t, athenaKey, database.NewTx(database.TxTransfer, athenaID, hermesID, 100, 50, nil, 1)),
			}

			block := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, txs)
			if err := db.ApplyBlock(block, noop); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the block.", success)

			athena, _ := db.Account(athenaID)
			if athena.Balance != 700 {
				t.Fatalf("\t%s\tTest 0:\tShould debit value and fees, got balance %d, exp 700", failed, athena.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould debit value and fees.", success)

			if athena.Nonce != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould advance the nonce, got %d, exp 2", failed, athena.Nonce)
			}
			t.Logf("\t%s\tTest 0:\tShould advance the nonce.", success)

			hermes, _ := db.Account(hermesID)
			if hermes.Balance != 400 {
				t.Fatalf("\t%s\tTest 0:\tShould pay the beneficiary reward and fees, got balance %d, exp 400", failed, hermes.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould pay the beneficiary reward and fees.", success)

			var total uint64
			for _, account := range db.Accounts() {
				total += account.Balance
			}
			if total != 1000+gen.MiningReward {
				t.Fatalf("\t%s\tTest 0:\tShould conserve total supply plus reward, got %d, exp %d", failed, total, 1000+gen.MiningReward)
			}
			t.Logf("\t%s\tTest 0:\tShould conserve total supply plus reward.", success)
		}
	}
}

func Test_NonceValidation(t *testing.T) {
	t.Log("Given the need to enforce nonce rules on submission and apply.")
	{
		athenaID := accountID(t, athenaKey)
		hermesID := accountID(t, hermesKey)

		gen := genesis.Genesis{
			ChainID:      29,
			Difficulty:   1,
			MiningReward: 100,
			Balances: map[string]uint64{
				string(athenaID): 1000,
			},
		}

		t.Logf("\tTest 0:\tWhen a nonce was already used.")
		{
			db := newDatabase(t, gen)

			tx0 := sign(t, athenaKey, database.NewTx(database.TxTransfer, athenaID, hermesID, 100, 0, nil, 0))

			block := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, []database.SignedTx{tx0})
			if err := db.ApplyBlock(block, noop); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the block.", success)

			if err := db.ValidateSubmission(tx0); !errors.Is(err, database.ErrInvalidNonce) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a replayed nonce: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a replayed nonce.", success)

			tx1 := sign(t, athenaKey, database.NewTx(database.TxTransfer, athenaID, hermesID, 100, 0, nil, 1))
			if err := db.ValidateSubmission(tx1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the next nonce: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the next nonce.", success)

			// Submission allows queueing ahead, only the block apply is strict.
			tx5 := sign(t, athenaKey, database.NewTx(database.TxTransfer, athenaID, hermesID, 100, 0, nil, 5))
			if err := db.ValidateSubmission(tx5); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept a future nonce for the mempool: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept a future nonce for the mempool.", success)

			block2 := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 200, []database.SignedTx{tx5})
			if err := db.ApplyBlock(block2, noop); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a block with a gapped nonce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a block with a gapped nonce.", success)

			athena, _ := db.Account(athenaID)
			if athena.Balance != 900 || athena.Nonce != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the ledger untouched by the rejected block: balance %d nonce %d", failed, athena.Balance, athena.Nonce)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the ledger untouched by the rejected block.", success)

			if db.LatestBlock().Header.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the chain at block 1.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the chain at block 1.", success)
		}
	}
}

func Test_ContractLifecycle(t *testing.T) {
	t.Log("Given the need to deploy and call smart contracts.")
	{
		athenaID := accountID(t, athenaKey)
		hermesID := accountID(t, hermesKey)

		gen := genesis.Genesis{
			ChainID:      29,
			Difficulty:   1,
			MiningReward: 100,
			GasLimit:     1000,
			Balances: map[string]uint64{
				string(athenaID): 1000,
			},
		}

		// Stores 700 under the key "supply".
		var code []byte
		code = append(code, byte(vm.OpPush))
		code = append(code, vm.EncodeValue(vm.Int(700))...)
		code = append(code, byte(vm.OpPush))
		code = append(code, vm.EncodeValue(vm.Addr("supply"))...)
		code = append(code, byte(vm.OpStore), byte(vm.OpStop))

		badCode := []byte{0xFF}

		t.Logf("\tTest 0:\tWhen deploying and calling in one block.")
		{
			db := newDatabase(t, gen)

			contractID := address.NewContractID(athenaID, 0)
			badContractID := address.NewContractID(athenaID, 2)

			txs := []database.SignedTx{
				sign(t, athenaKey, database.NewTx(database.TxContractCreate, athenaID, "", 0, 10, code, 0)),
				sign(t, athenaKey, database.NewTx(database.TxContractCall, athenaID, contractID, 0, 10, nil, 1)),
				sign(t, athenaKey, database.NewTx(database.TxContractCreate, athenaID, "", 0, 10, badCode, 2)),
				sign(t, athenaKey, database.NewTx(database.TxContractCall, athenaID, badContractID, 0, 10, nil, 3)),
			}

			block := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, txs)
			if err := db.ApplyBlock(block, noop); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the block.", success)

			contract, exists := db.Contract(contractID)
			if !exists {
				t.Fatalf("\t%s\tTest 0:\tShould find the deployed contract.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould find the deployed contract.", success)

			raw, exists := contract.Storage[string(vm.EncodeValue(vm.Addr("supply")))]
			if !exists {
				t.Fatalf("\t%s\tTest 0:\tShould find the stored key after the call.", failed)
			}
			value, _, err := vm.DecodeValue(raw)
			if err != nil || !value.Equals(vm.Int(700)) {
				t.Fatalf("\t%s\tTest 0:\tShould store 700 under supply: %v %v", failed, value, err)
			}
			t.Logf("\t%s\tTest 0:\tShould store 700 under supply.", success)

			badContract, exists := db.Contract(badContractID)
			if !exists {
				t.Fatalf("\t%s\tTest 0:\tShould find the bad contract.", failed)
			}
			if len(badContract.Storage) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave storage empty when execution fails.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave storage empty when execution fails.", success)

			// A failed execution still consumes the fee and the nonce.
			athena, _ := db.Account(athenaID)
			if athena.Balance != 960 || athena.Nonce != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould charge fees and nonces for every call: balance %d nonce %d", failed, athena.Balance, athena.Nonce)
			}
			t.Logf("\t%s\tTest 0:\tShould charge fees and nonces for every call.", success)
		}
	}
}

func Test_BlockValidation(t *testing.T) {
	t.Log("Given the need to reject invalid blocks.")
	{
		athenaID := accountID(t, athenaKey)
		hermesID := accountID(t, hermesKey)

		gen := genesis.Genesis{
			ChainID:      29,
			Difficulty:   1,
			MiningReward: 100,
			Balances: map[string]uint64{
				string(athenaID): 1000,
			},
		}

		t.Logf("\tTest 0:\tWhen a block is two or more numbers ahead.")
		{
			db := newDatabase(t, gen)

			block := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, nil)
			block.Header.Number = 3

			if err := db.ApplyBlock(block, noop); !errors.Is(err, database.ErrChainForked) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrChainForked: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrChainForked.", success)
		}

		t.Logf("\tTest 1:\tWhen a block doesn't connect to the parent.")
		{
			db := newDatabase(t, gen)

			block := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, nil)
			block.Header.PrevBlockHash = "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

			if err := db.ApplyBlock(block, noop); !errors.Is(err, database.ErrNotConnected) {
				t.Fatalf("\t%s\tTest 1:\tShould get ErrNotConnected: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get ErrNotConnected.", success)
		}

		t.Logf("\tTest 2:\tWhen the hash doesn't satisfy the difficulty.")
		{
			genHard := gen
			genHard.Difficulty = 16

			db := newDatabase(t, genHard)

			// Solve at difficulty 1 and find a nonce that does NOT satisfy 16
			// leading zero bits.
			block := solve(t, hermesID, 1, gen.MiningReward, db.LatestBlock(), 100, nil)
			block.Header.Difficulty = 16
			for isSolved(16, block.Hash()) {
				block.Header.Nonce++
			}

			if err := db.ApplyBlock(block, noop); !errors.Is(err, database.ErrInvalidProof) {
				t.Fatalf("\t%s\tTest 2:\tShould get ErrInvalidProof: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get ErrInvalidProof.", success)
		}

		t.Logf("\tTest 3:\tWhen the merkle root doesn't match the transactions.")
		{
			db := newDatabase(t, gen)

			tx := sign(t, athenaKey, database.NewTx(database.TxTransfer, athenaID, hermesID, 100, 0, nil, 0))
			block := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, []database.SignedTx{tx})

			// Rebuild the tree without the transaction, keeping the header.
			tree, err := merkle.NewTree([]database.SignedTx{database.NewRewardTx(hermesID, gen.MiningReward)})
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to build a tree: %v", failed, err)
			}
			block.Trans = tree

			if err := db.ApplyBlock(block, noop); !errors.Is(err, database.ErrInvalidTransRoot) {
				t.Fatalf("\t%s\tTest 3:\tShould get ErrInvalidTransRoot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould get ErrInvalidTransRoot.", success)
		}

		t.Logf("\tTest 4:\tWhen the reward pays the wrong value.")
		{
			db := newDatabase(t, gen)

			trans := []database.SignedTx{database.NewRewardTx(hermesID, gen.MiningReward+1)}
			tree, err := merkle.NewTree(trans)
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to build a tree: %v", failed, err)
			}

			block := database.Block{
				Header: database.BlockHeader{
					Version:       1,
					PrevBlockHash: signature.ZeroHash,
					TimeStamp:     100,
					BeneficiaryID: hermesID,
					Difficulty:    gen.Difficulty,
					Number:        1,
					TransRoot:     tree.RootHex(),
				},
				Trans: tree,
			}
			for !isSolved(gen.Difficulty, block.Hash()) {
				block.Header.Nonce++
			}

			if err := db.ApplyBlock(block, noop); err == nil {
				t.Fatalf("\t%s\tTest 4:\tShould reject the wrong reward value.", failed)
			}
			t.Logf("\t%s\tTest 4:\tShould reject the wrong reward value.", success)
		}

		t.Logf("\tTest 5:\tWhen a block carries the same timestamp as its parent.")
		{
			db := newDatabase(t, gen)

			block1 := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, nil)
			if err := db.ApplyBlock(block1, noop); err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to apply the first block: %v", failed, err)
			}

			// Two blocks mined within the same second at low difficulty.
			block2 := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 100, nil)
			if err := db.ApplyBlock(block2, noop); err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould accept a block with its parent's timestamp: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould accept a block with its parent's timestamp.", success)

			block3 := solve(t, hermesID, gen.Difficulty, gen.MiningReward, db.LatestBlock(), 99, nil)
			if err := db.ApplyBlock(block3, noop); err == nil {
				t.Fatalf("\t%s\tTest 5:\tShould reject a block older than its parent.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould reject a block older than its parent.", success)
		}
	}
}

func Test_DifficultyRetarget(t *testing.T) {
	t.Log("Given the need to retarget difficulty every ten blocks.")
	{
		athenaID := accountID(t, athenaKey)
		hermesID := accountID(t, hermesKey)

		gen := genesis.Genesis{
			ChainID:       29,
			Difficulty:    1,
			MiningReward:  100,
			BlockInterval: 30,
			Balances: map[string]uint64{
				string(athenaID): 1000,
			},
		}

		t.Logf("\tTest 0:\tWhen ten blocks arrive much faster than the interval.")
		{
			db := newDatabase(t, gen)

			// Ten blocks one second apart against a 30 second interval.
			for i := uint64(1); i <= 10; i++ {
				block := solve(t, hermesID, db.Difficulty(), gen.MiningReward, db.LatestBlock(), 100+i, nil)
				if err := db.ApplyBlock(block, noop); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to apply block %d: %v", failed, i, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply ten blocks.", success)

			if db.Difficulty() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould raise the difficulty to 2, got %d", failed, db.Difficulty())
			}
			t.Logf("\t%s\tTest 0:\tShould raise the difficulty to 2.", success)
		}

		t.Logf("\tTest 1:\tWhen ten blocks arrive much slower than the interval.")
		{
			db := newDatabase(t, gen)

			// Ten blocks 120 seconds apart against a 30 second interval. The
			// difficulty is already at the floor of 1 so it must stay there.
			for i := uint64(1); i <= 10; i++ {
				block := solve(t, hermesID, db.Difficulty(), gen.MiningReward, db.LatestBlock(), 100+i*120, nil)
				if err := db.ApplyBlock(block, noop); err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to apply block %d: %v", failed, i, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould be able to apply ten blocks.", success)

			if db.Difficulty() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould hold the difficulty at the floor of 1, got %d", failed, db.Difficulty())
			}
			t.Logf("\t%s\tTest 1:\tShould hold the difficulty at the floor of 1.", success)
		}
	}
}
