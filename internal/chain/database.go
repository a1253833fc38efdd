package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/types"
)

// Database handles the chain's own persistence: produced blocks, the
// transaction index, and the pending pool. Contract state lives in the
// hashed store, not here.
type Database struct {
	db *gorm.DB
}

// NewDatabase creates a chain database over the shared connection.
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// SaveBlock persists a produced block and its transaction index in one
// database transaction.
func (d *Database) SaveBlock(block *types.Block) error {
	payload, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to serialize block %d: %w", block.BlockNumber, err)
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		record := &BlockRecord{
			BlockNumber:         block.BlockNumber,
			RefChainBlockNumber: block.RefChainBlockNumber,
			Hash:                block.Hash,
			DatabaseHash:        block.DatabaseHash,
			MerkleRoot:          block.MerkleRoot,
			Timestamp:           block.Timestamp,
			Payload:             string(payload),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to save block %d: %w", block.BlockNumber, err)
		}

		for _, t := range block.Transactions {
			if err := tx.Create(transactionRecord(block.BlockNumber, t, false)).Error; err != nil {
				return fmt.Errorf("failed to index transaction %s: %w", t.TransactionID, err)
			}
		}
		for _, t := range block.VirtualTransactions {
			if err := tx.Create(transactionRecord(block.BlockNumber, t, true)).Error; err != nil {
				return fmt.Errorf("failed to index virtual transaction %s: %w", t.TransactionID, err)
			}
		}
		return nil
	})
}

func transactionRecord(blockNumber int64, t *types.Transaction, virtual bool) *TransactionRecord {
	return &TransactionRecord{
		TransactionID: t.TransactionID,
		BlockNumber:   blockNumber,
		Sender:        t.Sender,
		Contract:      t.Contract,
		Action:        t.Action,
		Virtual:       virtual,
		Hash:          t.Hash,
		DatabaseHash:  t.DatabaseHash,
		Logs:          t.Logs,
	}
}

// LatestBlock returns the highest produced block, nil before genesis.
func (d *Database) LatestBlock() (*types.Block, error) {
	var record BlockRecord
	err := d.db.Order("block_number desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest block: %w", err)
	}
	return decodeBlock(&record)
}

// GetBlock returns a block by its chain block number.
func (d *Database) GetBlock(blockNumber int64) (*types.Block, error) {
	var record BlockRecord
	err := d.db.Where("block_number = ?", blockNumber).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load block %d: %w", blockNumber, err)
	}
	return decodeBlock(&record)
}

// GetTransaction resolves an executed transaction by id.
func (d *Database) GetTransaction(transactionID string) (*TransactionRecord, error) {
	var record TransactionRecord
	err := d.db.Where("transaction_id = ?", transactionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	return &record, nil
}

// AddPending queues a submitted transaction for the next block. A duplicate
// transaction id is rejected by the unique index.
func (d *Database) AddPending(p *PendingTransaction) error {
	p.Status = pendingStatusPending
	if err := d.db.Create(p).Error; err != nil {
		return fmt.Errorf("failed to queue transaction %s: %w", p.TransactionID, err)
	}
	return nil
}

// PendingTransactions returns queued submissions in arrival order, capped at
// limit.
func (d *Database) PendingTransactions(limit int) ([]PendingTransaction, error) {
	var pending []PendingTransaction
	err := d.db.Where("status = ?", pendingStatusPending).
		Order("id asc").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transactions: %w", err)
	}
	return pending, nil
}

// MarkIncluded flips queued submissions to included once their block is
// persisted.
func (d *Database) MarkIncluded(transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	err := d.db.Model(&PendingTransaction{}).
		Where("transaction_id IN ?", transactionIDs).
		Update("status", pendingStatusIncluded).Error
	if err != nil {
		return fmt.Errorf("failed to mark transactions included: %w", err)
	}
	return nil
}

func decodeBlock(record *BlockRecord) (*types.Block, error) {
	var block types.Block
	if err := json.Unmarshal([]byte(record.Payload), &block); err != nil {
		return nil, fmt.Errorf("corrupt block payload for block %d: %w", record.BlockNumber, err)
	}
	return &block, nil
}

// genesisDatabaseHash seeds the database hash chain before the first block.
func genesisDatabaseHash(chainID string) string {
	sum := sha256.Sum256([]byte(chainID))
	return hex.EncodeToString(sum[:])
}
