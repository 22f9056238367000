package database

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"time"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/merkle"
	"github.com/minervachain/minerva/foundation/blockchain/signature"
)

// blockVersion is stamped into every header this code mines.
const blockVersion uint16 = 1

// Set of block validation errors.
var (
	// ErrChainForked is returned from ValidateBlock if another node's chain
	// is two or more blocks ahead of ours.
	ErrChainForked = errors.New("blockchain forked, start resync")

	// ErrNotConnected is returned when a block doesn't extend our latest
	// block, by number or by parent hash.
	ErrNotConnected = errors.New("block not connected to the chain")

	// ErrInvalidProof is returned when a block hash doesn't satisfy the
	// difficulty it claims.
	ErrInvalidProof = errors.New("block hash doesn't satisfy the difficulty")

	// ErrInvalidTransRoot is returned when the header's merkle root doesn't
	// match the block's transactions.
	ErrInvalidTransRoot = errors.New("merkle root doesn't match transactions")
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Version       uint16            `json:"version"`         // Header layout version.
	PrevBlockHash string            `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64            `json:"timestamp"`       // Time the block was mined.
	Nonce         uint64            `json:"nonce"`           // Value identified to solve the hash solution.
	BeneficiaryID address.AccountID `json:"beneficiary"`     // The account receiving the reward and fees.
	Difficulty    uint16            `json:"difficulty"`      // Number of leading zero bits needed to solve the hash solution.
	Number        uint64            `json:"number"`          // Block number in the chain.
	TransRoot     string            `json:"trans_root"`      // Merkle tree root hash for the transactions in this block.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[SignedTx]
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	BeneficiaryID address.AccountID
	Difficulty    uint16
	MiningReward  uint64
	PrevBlock     Block
	Trans         []SignedTx
	EvHandler     func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The reward transaction for the
// beneficiary is assembled here so it always sits first in the block and
// always pays the reward plus the fees of the picked transactions.
func POW(ctx context.Context, args POWArgs) (Block, error) {

	// When mining the first block, the previous block's hash will be zero.
	prevBlockHash := signature.ZeroHash
	if args.PrevBlock.Header.Number > 0 {
		prevBlockHash = args.PrevBlock.Hash()
	}

	var fees uint64
	for _, tx := range args.Trans {
		fees += tx.Fee
	}

	trans := make([]SignedTx, 0, len(args.Trans)+1)
	trans = append(trans, NewRewardTx(args.BeneficiaryID, args.MiningReward+fees))
	trans = append(trans, args.Trans...)

	// Construct a merkle tree from the transactions for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Version:       blockVersion,
			PrevBlockHash: prevBlockHash,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			Nonce:         0, // Will be identified by the POW algorithm.
			BeneficiaryID: args.BeneficiaryID,
			Difficulty:    args.Difficulty,
			Number:        args.PrevBlock.Header.Number + 1,
			TransRoot:     tree.RootHex(),
		},
		Trans: tree,
	}

	// Perform the proof of work mining operation.
	if err := nb.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	for _, tx := range b.Trans.Values() {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	// Loop until we or another node finds a solution for the next block.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Another node may have solved the block, in which case the caller
		// cancels this context.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block. Only the header is hashed so
// the chain can be checked from headers alone.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	return signature.Hash(b.Header)
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain. The expected difficulty comes from the retarget schedule, the
// mining reward from the genesis file.
func (b Block) ValidateBlock(previousBlock Block, expectedDifficulty uint16, miningReward uint64, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: chain is not forked", b.Header.Number)

	// The node who sent this block has a chain that is two or more blocks
	// ahead of ours. This means there has been a fork and we are on the
	// wrong side.
	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number >= (nextNumber + 2) {
		return ErrChainForked
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	if b.Header.Number != nextNumber {
		return fmt.Errorf("%w: got number %d, exp %d", ErrNotConnected, b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("%w: got parent hash %s, exp %s", ErrNotConnected, b.Header.PrevBlockHash, previousBlock.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty matches the retarget schedule", b.Header.Number)

	if b.Header.Difficulty < expectedDifficulty {
		return fmt.Errorf("block difficulty is less than expected, got %d, exp %d", b.Header.Difficulty, expectedDifficulty)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	if !isHashSolved(b.Header.Difficulty, b.Hash()) {
		return fmt.Errorf("%w: %s", ErrInvalidProof, b.Hash())
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is not before parent block's timestamp", b.Header.Number)

		// Equal timestamps are accepted, blocks can be mined within the
		// same second at low difficulty.
		parentTime := time.Unix(int64(previousBlock.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		if blockTime.Before(parentTime) {
			return fmt.Errorf("block timestamp is earlier than parent block, parent %s, block %s", parentTime, blockTime)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	if b.Header.TransRoot != b.Trans.RootHex() {
		return fmt.Errorf("%w: got %s, exp %s", ErrInvalidTransRoot, b.Trans.RootHex(), b.Header.TransRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block carries exactly one reward with the right value", b.Header.Number)

	if err := b.validateReward(miningReward); err != nil {
		return err
	}

	return nil
}

// validateReward checks the block carries exactly one reward transaction,
// that it sits first, and that it pays the mining reward plus the fees of
// the other transactions in the block.
func (b Block) validateReward(miningReward uint64) error {
	trans := b.Trans.Values()
	if len(trans) == 0 {
		return errors.New("block carries no reward transaction")
	}

	var fees uint64
	for i, tx := range trans {
		if i == 0 {
			continue
		}
		if tx.IsReward() {
			return errors.New("block carries more than one reward transaction")
		}
		fees += tx.Fee
	}

	reward := trans[0]
	if !reward.IsReward() {
		return errors.New("first transaction in the block is not the reward")
	}

	if reward.Value != miningReward+fees {
		return fmt.Errorf("reward value is wrong, got %d, exp %d", reward.Value, miningReward+fees)
	}

	return nil
}

// isHashSolved checks the hash complies with the POW rules. The difficulty
// is the number of leading zero bits the hash must carry.
func isHashSolved(difficulty uint16, hash string) bool {
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

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans.Values(),
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header: blockData.Header,
		Trans:  tree,
	}

	return block, nil
}
