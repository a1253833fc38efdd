package chain

import (
	"github.com/ksred/chain-engine/internal/store"
)

// Patch is one historical irregular-state fix, keyed by the exact reference
// block it applies at. Patches are documented one-off overrides: they run
// before the block's transactions and their mutations fold into the database
// hash like any other write, so every replaying node applies them
// identically. They are data, not pipeline logic, so the table can be
// audited and extended without touching execution code.
type Patch struct {
	RefChainBlockNumber int64
	Description         string
	// DropTransactions discards the block's entire transaction list; used
	// for reference blocks whose recorded transactions are known bad.
	DropTransactions bool
	Apply            func(s *store.Store) error
}

// DefaultPatches is the patch table for the production chain. Entries are
// ordered by reference block number.
func DefaultPatches() []Patch {
	// No irregular state has required patching on this chain yet. Tests and
	// deployments with a divergence history inject their own table through
	// Config.Patches.
	return nil
}

// patchFor returns the patch registered for a reference block, nil if none.
func (s *Service) patchFor(refChainBlockNumber int64) *Patch {
	for i := range s.cfg.Patches {
		if s.cfg.Patches[i].RefChainBlockNumber == refChainBlockNumber {
			return &s.cfg.Patches[i]
		}
	}
	return nil
}
