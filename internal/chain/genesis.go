package chain

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ksred/chain-engine/internal/types"
)

// genesisContracts are deployed in the first block, in this order.
var genesisContracts = []string{"tokens", "market", "inflation"}

// InitGenesis produces the first block when the chain is empty, deploying
// the built-in contracts from the first authorized deployer. Restarting an
// initialized node is a no-op.
func (s *Service) InitGenesis(input BlockInput) (*types.Block, error) {
	latest, err := s.db.LatestBlock()
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return latest, nil
	}
	if len(s.cfg.AuthorizedDeployers) == 0 {
		return nil, fmt.Errorf("cannot bootstrap chain without an authorized deployer")
	}

	deployer := s.cfg.AuthorizedDeployers[0]
	for i, name := range genesisContracts {
		input.Transactions = append(input.Transactions, types.NewTransaction(
			input.RefChainBlockNumber,
			fmt.Sprintf("genesis-%d", i),
			deployer,
			"contract", "deploy",
			fmt.Sprintf(`{"name":%q}`, name),
		))
	}

	block, err := s.ProduceBlock(input)
	if err != nil {
		return nil, err
	}
	log.Info().Str("component", "chain").
		Int64("block", block.BlockNumber).
		Strs("contracts", genesisContracts).
		Msg("genesis block produced")
	return block, nil
}
