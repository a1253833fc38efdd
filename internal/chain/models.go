package chain

import (
	"gorm.io/gorm"
)

// BlockRecord is the persisted form of a produced block. The full block,
// transactions included, is stored serialized; the indexed header fields
// exist for queries only.
type BlockRecord struct {
	gorm.Model          `json:"-"`
	BlockNumber         int64  `gorm:"uniqueIndex" json:"block_number"`
	RefChainBlockNumber int64  `gorm:"index" json:"ref_chain_block_number"`
	Hash                string `gorm:"uniqueIndex" json:"hash"`
	DatabaseHash        string `json:"database_hash"`
	MerkleRoot          string `json:"merkle_root"`
	Timestamp           string `json:"timestamp"`
	Payload             string `json:"-"`
}

// TransactionRecord indexes one executed transaction back to its block so
// the API can resolve outcomes by transaction id.
type TransactionRecord struct {
	gorm.Model    `json:"-"`
	TransactionID string `gorm:"uniqueIndex" json:"transaction_id"`
	BlockNumber   int64  `gorm:"index" json:"block_number"`
	Sender        string `gorm:"index" json:"sender"`
	Contract      string `json:"contract"`
	Action        string `json:"action"`
	Virtual       bool   `json:"virtual"`
	Hash          string `json:"hash"`
	DatabaseHash  string `json:"database_hash"`
	Logs          string `json:"logs"`
}

// PendingTransaction is an accepted-but-unsequenced submission waiting for
// the next block.
type PendingTransaction struct {
	gorm.Model    `json:"-"`
	TransactionID string `gorm:"uniqueIndex" json:"transaction_id"`
	Sender        string `json:"sender"`
	Contract      string `json:"contract"`
	Action        string `json:"action"`
	Payload       string `json:"payload"`
	Status        string `json:"status"` // PENDING, INCLUDED
}

const (
	pendingStatusPending  = "PENDING"
	pendingStatusIncluded = "INCLUDED"
)
