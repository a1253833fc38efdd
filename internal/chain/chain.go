// Package chain drives block production: it sequences raw reference-chain
// transaction batches through the contract gateway, chains per-transaction
// database hashes, folds the Merkle root and block hash, and persists the
// result. Blocks are produced one at a time by a single writer; two nodes
// fed the same stream must derive byte-identical blocks.
package chain

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
)

// ErrHashMismatch is the replay-divergence detector: a locally computed hash
// differs from the trusted reference block. Block production must halt;
// persisting past it would fork the node off the authoritative history.
var ErrHashMismatch = errors.New("computed hash differs from reference block")

// LegacyNoOpContract is the retired contract whose transactions are dropped
// from the final transaction set before merkleization.
const LegacyNoOpContract = "null"

// Config carries the protocol constants of a deployment.
type Config struct {
	// ChainID seeds the genesis database hash.
	ChainID string
	// AuthorizedDeployers are the only senders allowed to deploy or update
	// contract code.
	AuthorizedDeployers []string
	// Activation gates for the virtual transaction schedule, in reference
	// block numbers. Zero means active from genesis.
	UnstakeChecksActivationRefBlock   int64
	MarketTicksActivationRefBlock     int64
	WitnessScheduleActivationRefBlock int64
	// InflationIntervalBlocks triggers the inflation tick every N sidechain
	// blocks; zero disables it.
	InflationIntervalBlocks int64
	// Patches is the historical irregular-state table.
	Patches []Patch
}

// DefaultConfig returns the production protocol constants.
func DefaultConfig() Config {
	return Config{
		ChainID:                 "chain-engine-mainnet",
		AuthorizedDeployers:     []string{"chain-owner"},
		InflationIntervalBlocks: 1200,
		Patches:                 DefaultPatches(),
	}
}

// BlockInput is one raw batch from the reference-chain stream.
type BlockInput struct {
	RefChainBlockNumber int64                `json:"refChainBlockNumber"`
	RefChainBlockID     string               `json:"refChainBlockId"`
	PrevRefChainBlockID string               `json:"prevRefChainBlockId"`
	Timestamp           string               `json:"timestamp"`
	Transactions        []*types.Transaction `json:"transactions"`
}

// Service owns block production and the chain's persistence.
type Service struct {
	cfg     Config
	store   *store.Store
	gateway *contracts.Gateway
	db      *Database
}

// NewService wires the block pipeline over the shared store and gateway.
func NewService(cfg Config, s *store.Store, gateway *contracts.Gateway, gormDB *gorm.DB) *Service {
	return &Service{
		cfg:     cfg,
		store:   s,
		gateway: gateway,
		db:      NewDatabase(gormDB),
	}
}

// ProduceBlock executes one transaction batch into the next block and
// persists it. The batch is executed exactly once; the returned block is
// final.
func (s *Service) ProduceBlock(input BlockInput) (*types.Block, error) {
	logger := log.With().Str("component", "chain").Int64("ref_block", input.RefChainBlockNumber).Logger()

	previous, err := s.db.LatestBlock()
	if err != nil {
		return nil, err
	}
	prevNumber, prevHash, prevDatabaseHash := s.previousState(previous)

	block := types.NewBlock(prevNumber, prevHash, prevDatabaseHash,
		input.RefChainBlockNumber, input.RefChainBlockID, input.PrevRefChainBlockID,
		input.Timestamp, input.Transactions)

	if _, err := block.TimestampUnix(); err != nil {
		return nil, err
	}

	currentHash := block.PreviousDatabaseHash

	if patch := s.patchFor(block.RefChainBlockNumber); patch != nil {
		logger.Info().Str("description", patch.Description).Msg("applying historical state patch")
		if patch.DropTransactions {
			block.Transactions = []*types.Transaction{}
		}
		if patch.Apply != nil {
			s.store.InitDatabaseHash(currentHash)
			if err := patch.Apply(s.store); err != nil {
				return nil, fmt.Errorf("patch at ref block %d failed: %w", patch.RefChainBlockNumber, err)
			}
			if err := s.store.Flush(); err != nil {
				return nil, err
			}
			currentHash = s.store.GetDatabaseHash()
		}
	}

	for _, tx := range block.Transactions {
		currentHash, _, err = s.processTransaction(block, tx, currentHash)
		if err != nil {
			return nil, err
		}
	}

	retained := make([]*types.Transaction, 0)
	for _, vtx := range s.virtualTransactions(block) {
		var result *contracts.ExecResult
		currentHash, result, err = s.processTransaction(block, vtx, currentHash)
		if err != nil {
			return nil, err
		}
		if suppressVirtual(vtx, result.Logs) {
			continue
		}
		retained = append(retained, vtx)
	}
	block.VirtualTransactions = retained

	final := make([]*types.Transaction, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx.Contract == LegacyNoOpContract {
			continue
		}
		final = append(final, tx)
	}
	block.Transactions = final

	combined := append(append([]*types.Transaction{}, final...), retained...)
	if len(combined) > 0 {
		block.MerkleRoot, block.DatabaseHash = merkleRoot(combined)
	} else {
		block.MerkleRoot = ""
		block.DatabaseHash = block.PreviousDatabaseHash
		if currentHash != block.PreviousDatabaseHash {
			// State moved with nothing recorded to explain it. Surface the
			// change for audit instead of losing it.
			logger.Warn().Str("database_hash", currentHash).
				Msg("database hash changed in a block with no transactions")
			block.DatabaseHash = currentHash
		}
	}

	block.Hash = block.CalculateHash()

	if err := s.db.SaveBlock(block); err != nil {
		return nil, err
	}

	logger.Info().Int64("block", block.BlockNumber).
		Int("transactions", len(block.Transactions)).
		Int("virtual_transactions", len(block.VirtualTransactions)).
		Str("hash", block.Hash).Msg("block produced")
	return block, nil
}

// ReplayBlock produces a block from input and verifies every hash against a
// trusted reference copy. Any mismatch is ErrHashMismatch and nothing is
// persisted beyond the already-flushed state of the divergent transaction.
func (s *Service) ReplayBlock(input BlockInput, reference *types.Block) (*types.Block, error) {
	block, err := s.ProduceBlock(input)
	if err != nil {
		return nil, err
	}

	if err := compareTransactions(block.Transactions, reference.Transactions); err != nil {
		return nil, err
	}
	if err := compareTransactions(block.VirtualTransactions, reference.VirtualTransactions); err != nil {
		return nil, err
	}
	if block.DatabaseHash != reference.DatabaseHash ||
		block.MerkleRoot != reference.MerkleRoot ||
		block.Hash != reference.Hash {
		return nil, fmt.Errorf("%w: block %d", ErrHashMismatch, block.BlockNumber)
	}
	return block, nil
}

// processTransaction runs one transaction through the gateway with the
// database-hash accumulator seeded from its predecessor, then freezes its
// logs and hashes.
func (s *Service) processTransaction(block *types.Block, tx *types.Transaction, seed string) (string, *contracts.ExecResult, error) {
	s.store.InitDatabaseHash(seed)

	info := contracts.BlockInfo{
		BlockNumber:         block.BlockNumber,
		Timestamp:           block.Timestamp,
		RefChainBlockNumber: block.RefChainBlockNumber,
		RefChainBlockID:     block.RefChainBlockID,
		PrevRefChainBlockID: block.PrevRefChainBlockID,
	}
	info.TimestampUnix, _ = block.TimestampUnix()

	var result *contracts.ExecResult
	switch {
	case tx.Contract == "contract" && tx.Action == "deploy":
		result = s.gateway.Deploy(tx, info)
	case tx.Contract == "contract" && tx.Action == "update":
		result = s.gateway.Update(tx, info)
	default:
		result = s.gateway.Execute(tx, info)
	}

	tx.ExecutedCodeHash = result.ExecutedCodeHash
	tx.AddLogs(result.Logs)

	if err := s.store.Flush(); err != nil {
		return "", nil, err
	}
	tx.DatabaseHash = s.store.GetDatabaseHash()
	tx.CalculateHash()
	return tx.DatabaseHash, result, nil
}

func (s *Service) previousState(previous *types.Block) (int64, string, string) {
	if previous == nil {
		return 0, "", genesisDatabaseHash(s.cfg.ChainID)
	}
	return previous.BlockNumber, previous.Hash, previous.DatabaseHash
}

func compareTransactions(computed, reference []*types.Transaction) error {
	if len(computed) != len(reference) {
		return fmt.Errorf("%w: transaction count %d != %d", ErrHashMismatch, len(computed), len(reference))
	}
	for i, tx := range computed {
		if tx.DatabaseHash != reference[i].DatabaseHash || tx.Hash != reference[i].Hash {
			return fmt.Errorf("%w: transaction %s", ErrHashMismatch, tx.TransactionID)
		}
	}
	return nil
}
