package chain

import (
	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/types"
)

// virtualAction identifies one (contract, action) pair in the suppression
// allow-list.
type virtualAction struct {
	Contract string
	Action   string
}

// suppressedVirtualErrors lists the virtual transactions whose sole
// "contract doesn't exist" failure is benign: the schedule starts ticking
// before the contract has been deployed at that point in chain history.
// Matching results are silently dropped from the persisted record.
var suppressedVirtualErrors = map[virtualAction]string{
	{Contract: "tokens", Action: "checkPendingUnstakes"}: contracts.ErrContractNotFound,
	{Contract: "inflation", Action: "issueNewTokens"}:    contracts.ErrContractNotFound,
	{Contract: "market", Action: "removeExpiredOrders"}:  contracts.ErrContractNotFound,
	{Contract: "witnesses", Action: "scheduleWitnesses"}: contracts.ErrContractNotFound,
}

// virtualTransactions builds the protocol-version-gated maintenance schedule
// for a block. Order is fixed; ids are synthesized from the reference block
// number and the schedule index.
func (s *Service) virtualTransactions(block *types.Block) []*types.Transaction {
	var out []*types.Transaction
	add := func(contract, action, payload string) {
		out = append(out, types.NewVirtualTransaction(block.RefChainBlockNumber, len(out), contract, action, payload))
	}

	if block.RefChainBlockNumber >= s.cfg.UnstakeChecksActivationRefBlock {
		add("tokens", "checkPendingUnstakes", "{}")
	}
	if s.cfg.InflationIntervalBlocks > 0 && block.BlockNumber%s.cfg.InflationIntervalBlocks == 0 {
		add("inflation", "issueNewTokens", "{}")
	}
	if block.RefChainBlockNumber >= s.cfg.MarketTicksActivationRefBlock {
		add("market", "removeExpiredOrders", `{"table":"buyBook"}`)
		add("market", "removeExpiredOrders", `{"table":"sellBook"}`)
	}
	if s.cfg.WitnessScheduleActivationRefBlock > 0 &&
		block.RefChainBlockNumber >= s.cfg.WitnessScheduleActivationRefBlock {
		add("witnesses", "scheduleWitnesses", "{}")
	}
	return out
}

// suppressVirtual reports whether a virtual transaction's outcome is the
// allow-listed benign failure and should be dropped from the block.
func suppressVirtual(tx *types.Transaction, logs *types.Logs) bool {
	pattern, ok := suppressedVirtualErrors[virtualAction{Contract: tx.Contract, Action: tx.Action}]
	if !ok {
		return false
	}
	return len(logs.Errors) == 1 && len(logs.Events) == 0 && logs.Errors[0] == pattern
}
