package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/chain-engine/internal/types"
)

// maxBlockTransactions caps how many pending submissions go into one block.
const maxBlockTransactions = 1000

// Processor turns the pending pool into blocks on a fixed interval. It is
// the standalone-node producer; replaying nodes feed ReplayBlock directly
// from the reference stream instead.
type Processor struct {
	service    *Service
	blockDelay time.Duration
}

// NewProcessor creates a block processor over the chain service.
func NewProcessor(service *Service) *Processor {
	return &Processor{
		service:    service,
		blockDelay: 3 * time.Second, // Block production interval
	}
}

// Start begins the block production loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "block_processor").Logger()
	logger.Info().Msg("starting block processor")

	ticker := time.NewTicker(p.blockDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down block processor")
			return
		case <-ticker.C:
			if err := p.producePendingBlock(); err != nil {
				logger.Error().Err(err).Msg("failed to produce block")
			}
		}
	}
}

func (p *Processor) producePendingBlock() error {
	logger := log.With().Str("component", "block_processor").Logger()

	pending, err := p.service.db.PendingTransactions(maxBlockTransactions)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	logger.Info().Int("pending_count", len(pending)).Msg("producing block from pending pool")

	input, included, err := p.nextInput(pending)
	if err != nil {
		return err
	}
	if _, err := p.service.ProduceBlock(input); err != nil {
		return err
	}
	return p.service.db.MarkIncluded(included)
}

// nextInput synthesizes the reference-chain envelope for a self-produced
// block. A standalone node is its own reference chain: block ids derive
// from the reference block number. A head read failure aborts production
// rather than restarting the reference numbering from genesis.
func (p *Processor) nextInput(pending []PendingTransaction) (BlockInput, []string, error) {
	latest, err := p.service.db.LatestBlock()
	if err != nil {
		return BlockInput{}, nil, err
	}
	var refNumber int64 = 1
	if latest != nil {
		refNumber = latest.RefChainBlockNumber + 1
	}

	input := BlockInput{
		RefChainBlockNumber: refNumber,
		RefChainBlockID:     fmt.Sprintf("ref-%d", refNumber),
		PrevRefChainBlockID: fmt.Sprintf("ref-%d", refNumber-1),
		Timestamp:           time.Now().UTC().Format(types.BlockTimestampLayout),
	}
	included := make([]string, 0, len(pending))
	for i := range pending {
		tx := pending[i]
		input.Transactions = append(input.Transactions, types.NewTransaction(
			refNumber, tx.TransactionID, tx.Sender, tx.Contract, tx.Action, tx.Payload))
		included = append(included, tx.TransactionID)
	}
	return input, included, nil
}
