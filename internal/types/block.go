package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// BlockTimestampLayout is the reference-chain timestamp format: ISO-8601
// without a timezone suffix, always interpreted as UTC.
const BlockTimestampLayout = "2006-01-02T15:04:05"

// Block is one sequenced batch of transactions plus the virtual transactions
// injected during its production. Hash, DatabaseHash and MerkleRoot are
// derived once by the pipeline; a block is never re-executed.
type Block struct {
	BlockNumber          int64          `json:"blockNumber"`
	RefChainBlockNumber  int64          `json:"refChainBlockNumber"`
	RefChainBlockID      string         `json:"refChainBlockId"`
	PrevRefChainBlockID  string         `json:"prevRefChainBlockId"`
	PreviousHash         string         `json:"previousHash"`
	PreviousDatabaseHash string         `json:"previousDatabaseHash"`
	Timestamp            string         `json:"timestamp"`
	Transactions         []*Transaction `json:"transactions"`
	VirtualTransactions  []*Transaction `json:"virtualTransactions"`
	Hash                 string         `json:"hash"`
	DatabaseHash         string         `json:"databaseHash"`
	MerkleRoot           string         `json:"merkleRoot"`
}

// NewBlock assembles a pending block from the previous block's chain state
// and the ordered transaction batch delivered by the stream.
func NewBlock(previousBlockNumber int64, previousHash, previousDatabaseHash string,
	refChainBlockNumber int64, refChainBlockID, prevRefChainBlockID, timestamp string,
	transactions []*Transaction) *Block {
	return &Block{
		BlockNumber:          previousBlockNumber + 1,
		RefChainBlockNumber:  refChainBlockNumber,
		RefChainBlockID:      refChainBlockID,
		PrevRefChainBlockID:  prevRefChainBlockID,
		PreviousHash:         previousHash,
		PreviousDatabaseHash: previousDatabaseHash,
		Timestamp:            timestamp,
		Transactions:         transactions,
		VirtualTransactions:  []*Transaction{},
	}
}

// TimestampUnix returns the block timestamp as UTC unix seconds. Contract
// code sees time only through this value, never through the wall clock.
func (b *Block) TimestampUnix() (int64, error) {
	ts, err := time.ParseInLocation(BlockTimestampLayout, b.Timestamp, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid block timestamp %q: %w", b.Timestamp, err)
	}
	return ts.Unix(), nil
}

// CalculateHash computes the block hash over the full header plus the
// serialized final transaction set.
func (b *Block) CalculateHash() string {
	txs, _ := json.Marshal(b.Transactions)
	vtxs, _ := json.Marshal(b.VirtualTransactions)
	return sha256Hex(
		fmt.Sprintf("%d", b.BlockNumber) +
			fmt.Sprintf("%d", b.RefChainBlockNumber) +
			b.RefChainBlockID +
			b.PrevRefChainBlockID +
			b.PreviousHash +
			b.PreviousDatabaseHash +
			b.Timestamp +
			string(txs) +
			string(vtxs),
	)
}
