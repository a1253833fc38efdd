// Package contracts is the smart-contract execution gateway: a registry of
// compiled-in contracts dispatched through a fixed capability interface.
// Contract code never sees the wall clock, the filesystem or the network;
// everything it can observe flows through the Context so replay stays
// deterministic.
package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
)

// Fixed log messages. These strings are part of hashed transaction content
// and must never change.
const (
	ErrContractNotFound = "contract doesn't exist"
	ErrInvalidAction    = "invalid action"
	ErrDeployRestricted = "deploy is restricted to authorized accounts"
)

// ActionFunc is one contract action. Validation failures abort via
// ctx.Assert; anything the action wrote before an abort stays applied.
type ActionFunc func(ctx *Context)

// Contract is a deployable unit: a dispatch table of actions plus a setup
// hook that creates its collections on first deploy.
type Contract interface {
	Name() string
	Actions() map[string]ActionFunc
	Setup(ctx *Context)
}

// Record is the persisted deployment state of a contract.
type Record struct {
	ID       uint   `gorm:"primaryKey" json:"_id"`
	Name     string `gorm:"uniqueIndex" json:"name"`
	Version  int64  `json:"version"`
	CodeHash string `json:"codeHash"`
}

func (Record) TableName() string { return "contracts" }

// ExecResult is what the block pipeline receives back for one invocation.
type ExecResult struct {
	Logs             *types.Logs
	ExecutedCodeHash string
}

// Gateway dispatches deploy/update/execute requests against the registry.
type Gateway struct {
	store     *store.Store
	tokens    TokenLedger
	registry  map[string]Contract
	deployers map[string]bool
	timeout   time.Duration
}

// NewGateway creates a gateway over the given store. Only the listed
// deployer accounts may deploy or update contract code.
func NewGateway(s *store.Store, authorizedDeployers []string) *Gateway {
	deployers := make(map[string]bool, len(authorizedDeployers))
	for _, d := range authorizedDeployers {
		deployers[d] = true
	}
	return &Gateway{
		store:     s,
		registry:  make(map[string]Contract),
		deployers: deployers,
		timeout:   10 * time.Second,
	}
}

// SetTokenLedger wires the balance-transfer capability. Separate from the
// constructor because the tokens contract itself is registered here.
func (g *Gateway) SetTokenLedger(l TokenLedger) {
	g.tokens = l
}

// Register makes a compiled-in contract available for deployment.
func (g *Gateway) Register(c Contract) {
	g.registry[c.Name()] = c
}

// Deploy activates a registered contract. The sender must belong to the
// authorized deployer set; anyone else gets a fixed rejection log and no
// state change.
func (g *Gateway) Deploy(tx *types.Transaction, info BlockInfo) *ExecResult {
	return g.deployOrUpdate(tx, info, false)
}

// Update bumps an already deployed contract's version and code hash, under
// the same authorization rule as Deploy.
func (g *Gateway) Update(tx *types.Transaction, info BlockInfo) *ExecResult {
	return g.deployOrUpdate(tx, info, true)
}

func (g *Gateway) deployOrUpdate(tx *types.Transaction, info BlockInfo, update bool) *ExecResult {
	logs := &types.Logs{}
	result := &ExecResult{Logs: logs}

	if !g.deployers[tx.Sender] {
		logs.Errors = append(logs.Errors, ErrDeployRestricted)
		return result
	}

	if !g.store.TableExists(&Record{}) {
		if err := g.store.CreateTable(&Record{}); err != nil {
			logs.Errors = append(logs.Errors, fmt.Sprintf("deploy failed: %v", err))
			return result
		}
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(tx.Payload), &payload); err != nil || payload.Name == "" {
		logs.Errors = append(logs.Errors, "invalid deploy payload")
		return result
	}

	impl, ok := g.registry[payload.Name]
	if !ok {
		logs.Errors = append(logs.Errors, ErrContractNotFound)
		return result
	}

	var record Record
	err := g.store.Session().Where("name = ?", payload.Name).First(&record).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logs.Errors = append(logs.Errors, fmt.Sprintf("deploy failed: %v", err))
		return result
	}

	if update && !exists {
		logs.Errors = append(logs.Errors, ErrContractNotFound)
		return result
	}
	if !update && exists {
		logs.Errors = append(logs.Errors, "contract already deployed")
		return result
	}

	version := int64(1)
	if update {
		version = record.Version + 1
	}
	codeHash := codeHash(payload.Name, version)

	if update {
		record.Version = version
		record.CodeHash = codeHash
		if err := g.store.Update(&record); err != nil {
			logs.Errors = append(logs.Errors, fmt.Sprintf("update failed: %v", err))
			return result
		}
	} else {
		record = Record{Name: payload.Name, Version: version, CodeHash: codeHash}
		if err := g.store.Insert(&record); err != nil {
			logs.Errors = append(logs.Errors, fmt.Sprintf("deploy failed: %v", err))
			return result
		}
		g.runSetup(impl, logs, info, tx)
	}

	result.ExecutedCodeHash = codeHash
	log.Debug().Str("component", "gateway").Str("contract", payload.Name).
		Int64("version", version).Bool("update", update).Msg("contract deployed")
	return result
}

// Execute runs a contract action for one transaction and returns its logs
// and the executed code hash. All contract-level failures are folded into
// the logs; Execute itself never fails the block.
func (g *Gateway) Execute(tx *types.Transaction, info BlockInfo) *ExecResult {
	logs := &types.Logs{}
	result := &ExecResult{Logs: logs}

	var record Record
	if err := g.store.Session().Where("name = ?", tx.Contract).First(&record).Error; err != nil {
		logs.Errors = append(logs.Errors, ErrContractNotFound)
		return result
	}
	result.ExecutedCodeHash = record.CodeHash

	started := time.Now()
	g.dispatch(logs, info, tx.Sender, "", tx.TransactionID, tx.Contract, tx.Action, tx.Payload)
	// Wall-clock duration is local to this node and must never leak into
	// the hashed logs: a slow node would diverge from a fast one replaying
	// the same transaction. Slow dispatches are only reported.
	if elapsed := time.Since(started); elapsed > g.timeout {
		log.Warn().
			Str("transaction_id", tx.TransactionID).
			Str("contract", tx.Contract).
			Str("action", tx.Action).
			Dur("elapsed", elapsed).
			Msg("Contract dispatch exceeded time budget")
	}
	return result
}

// dispatch runs a single action invocation, confining Assert short-circuits
// and uncaught panics to this one call.
func (g *Gateway) dispatch(logs *types.Logs, info BlockInfo, sender, caller, txID, contract, action, payload string) {
	impl, ok := g.registry[contract]
	if !ok {
		logs.Errors = append(logs.Errors, ErrContractNotFound)
		return
	}
	fn, ok := impl.Actions()[action]
	if !ok {
		logs.Errors = append(logs.Errors, ErrInvalidAction)
		return
	}

	params, err := decodePayload(payload)
	if err != nil {
		logs.Errors = append(logs.Errors, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	ctx := &Context{
		Store:        g.store,
		Tokens:       g.tokens,
		Block:        info,
		Sender:       sender,
		Caller:       caller,
		ContractName: contract,
		TxID:         txID,
		Payload:      params,
		logs:         logs,
		gateway:      g,
		rngSeed:      randomSeed(info.PrevRefChainBlockID, txID),
	}

	defer func() {
		if r := recover(); r != nil {
			if _, isAssert := r.(assertFailure); isAssert {
				return
			}
			// A contract bug is fatal to this action only; writes applied
			// before the panic are kept, matching chain history.
			logs.Errors = append(logs.Errors, fmt.Sprintf("uncaught exception: %v", r))
			log.Error().Str("component", "gateway").Str("contract", contract).
				Str("action", action).Interface("panic", r).Msg("contract panicked")
		}
	}()
	fn(ctx)
}

func (g *Gateway) runSetup(impl Contract, logs *types.Logs, info BlockInfo, tx *types.Transaction) {
	ctx := &Context{
		Store:        g.store,
		Tokens:       g.tokens,
		Block:        info,
		Sender:       tx.Sender,
		ContractName: impl.Name(),
		TxID:         tx.TransactionID,
		Payload:      map[string]interface{}{},
		logs:         logs,
		gateway:      g,
		rngSeed:      randomSeed(info.PrevRefChainBlockID, tx.TransactionID),
	}
	defer func() {
		if r := recover(); r != nil {
			if _, isAssert := r.(assertFailure); isAssert {
				return
			}
			logs.Errors = append(logs.Errors, fmt.Sprintf("uncaught exception: %v", r))
		}
	}()
	impl.Setup(ctx)
}

// decodePayload parses an action payload with json.Number so numeric fields
// never pass through float64. An empty payload is an empty parameter set.
func decodePayload(payload string) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if strings.TrimSpace(payload) == "" {
		return params, nil
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	return params, nil
}

func codeHash(name string, version int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s@%d", name, version)))
	return hex.EncodeToString(sum[:])
}
