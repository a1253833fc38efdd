package tokens

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
	"github.com/ksred/chain-engine/pkg/dec"
)

var memDBCounter atomic.Int64

func openMemDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:tokens_test_%d?mode=memory&cache=shared", memDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

type harness struct {
	t       *testing.T
	store   *store.Store
	gateway *contracts.Gateway
	ledger  *Ledger
	txSeq   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := store.New(openMemDB(t))
	g := contracts.NewGateway(s, []string{"owner"})
	ledger := NewLedger(s)
	g.SetTokenLedger(ledger)
	g.Register(NewContract(ledger))
	g.Register(NewInflationContract(ledger))

	h := &harness{t: t, store: s, gateway: g, ledger: ledger}
	result := h.deploy("tokens")
	require.False(t, result.Logs.HasError(), "tokens deploy errors: %v", result.Logs.Errors)
	return h
}

func (h *harness) info(timestampUnix int64) contracts.BlockInfo {
	return contracts.BlockInfo{
		BlockNumber:         1,
		Timestamp:           "2024-01-01T00:00:00",
		TimestampUnix:       timestampUnix,
		RefChainBlockNumber: 100,
		RefChainBlockID:     "ref-100",
		PrevRefChainBlockID: "ref-99",
	}
}

func (h *harness) deploy(name string) *contracts.ExecResult {
	h.t.Helper()
	h.txSeq++
	tx := types.NewTransaction(100, fmt.Sprintf("tx-%d", h.txSeq), "owner", "contract", "deploy",
		fmt.Sprintf(`{"name":%q}`, name))
	h.store.InitDatabaseHash("seed")
	result := h.gateway.Deploy(tx, h.info(1704067200))
	require.NoError(h.t, h.store.Flush())
	return result
}

func (h *harness) exec(sender, action, payload string) *contracts.ExecResult {
	return h.execAt(sender, action, payload, 1704067200)
}

func (h *harness) execAt(sender, action, payload string, timestampUnix int64) *contracts.ExecResult {
	h.t.Helper()
	h.txSeq++
	tx := types.NewTransaction(100, fmt.Sprintf("tx-%d", h.txSeq), sender, "tokens", action, payload)
	h.store.InitDatabaseHash("seed")
	result := h.gateway.Execute(tx, h.info(timestampUnix))
	require.NoError(h.t, h.store.Flush())
	return result
}

func (h *harness) createToken(issuer, symbol string, precision int) {
	h.t.Helper()
	result := h.exec(issuer, "create",
		fmt.Sprintf(`{"symbol":%q,"precision":%d,"isSignedWithActiveKey":true}`, symbol, precision))
	require.False(h.t, result.Logs.HasError(), "create errors: %v", result.Logs.Errors)
}

func (h *harness) issue(issuer, symbol, to, quantity string) {
	h.t.Helper()
	result := h.exec(issuer, "issue",
		fmt.Sprintf(`{"symbol":%q,"to":%q,"quantity":%q,"isSignedWithActiveKey":true}`, symbol, to, quantity))
	require.False(h.t, result.Logs.HasError(), "issue errors: %v", result.Logs.Errors)
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s", expected, actual)
}

func TestSetupSeedsPegToken(t *testing.T) {
	h := newHarness(t)

	precision, ok := h.ledger.Precision(dec.PegSymbol)
	require.True(t, ok)
	assert.Equal(t, int32(dec.PegPrecision), precision)
}

func TestCreateRejectsBadSymbols(t *testing.T) {
	h := newHarness(t)

	for _, symbol := range []string{"sim", "SIM1", "TOOLONGSYMBOL", "A.B.C", ""} {
		result := h.exec("alice", "create",
			fmt.Sprintf(`{"symbol":%q,"precision":3,"isSignedWithActiveKey":true}`, symbol))
		assert.Equal(t, []string{"invalid symbol"}, result.Logs.Errors, "symbol %q", symbol)
	}
}

func TestCreateRejectsBadPrecision(t *testing.T) {
	h := newHarness(t)

	result := h.exec("alice", "create", `{"symbol":"SIM","precision":9,"isSignedWithActiveKey":true}`)
	assert.Equal(t, []string{"invalid precision"}, result.Logs.Errors)
}

func TestCreateRequiresActiveKey(t *testing.T) {
	h := newHarness(t)

	result := h.exec("alice", "create", `{"symbol":"SIM","precision":3}`)
	assert.Equal(t, []string{"you must use a custom_json signed with your active key"}, result.Logs.Errors)
}

func TestIssueOnlyByIssuer(t *testing.T) {
	h := newHarness(t)
	h.createToken("alice", "SIM", 3)

	result := h.exec("bob", "issue", `{"symbol":"SIM","to":"bob","quantity":"10","isSignedWithActiveKey":true}`)
	assert.Equal(t, []string{"not allowed to issue tokens"}, result.Logs.Errors)

	h.issue("alice", "SIM", "bob", "10.5")
	requireDecimal(t, "10.5", h.ledger.AccountBalance("bob", "SIM"))
}

func TestIssueRejectsExcessPrecision(t *testing.T) {
	h := newHarness(t)
	h.createToken("alice", "SIM", 3)

	result := h.exec("alice", "issue", `{"symbol":"SIM","to":"bob","quantity":"1.0001","isSignedWithActiveKey":true}`)
	assert.Equal(t, []string{"invalid quantity"}, result.Logs.Errors)
}

func TestTransferMovesBalance(t *testing.T) {
	h := newHarness(t)
	h.createToken("alice", "SIM", 3)
	h.issue("alice", "SIM", "bob", "100")

	result := h.exec("bob", "transfer", `{"symbol":"SIM","to":"carol","quantity":"40.25","isSignedWithActiveKey":true}`)
	require.False(t, result.Logs.HasError(), "transfer errors: %v", result.Logs.Errors)

	requireDecimal(t, "59.75", h.ledger.AccountBalance("bob", "SIM"))
	requireDecimal(t, "40.25", h.ledger.AccountBalance("carol", "SIM"))
}

func TestTransferInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.createToken("alice", "SIM", 3)
	h.issue("alice", "SIM", "bob", "10")

	result := h.exec("bob", "transfer", `{"symbol":"SIM","to":"carol","quantity":"11","isSignedWithActiveKey":true}`)
	assert.Equal(t, []string{"insufficient balance"}, result.Logs.Errors)
	requireDecimal(t, "10", h.ledger.AccountBalance("bob", "SIM"))
}

func TestTransferToSelfRejected(t *testing.T) {
	h := newHarness(t)
	h.createToken("alice", "SIM", 3)
	h.issue("alice", "SIM", "bob", "10")

	result := h.exec("bob", "transfer", `{"symbol":"SIM","to":"bob","quantity":"5","isSignedWithActiveKey":true}`)
	assert.Equal(t, []string{"invalid to"}, result.Logs.Errors)
}

func TestUnstakeSchedulesAndReleases(t *testing.T) {
	h := newHarness(t)
	h.createToken("alice", "SIM", 3)
	h.issue("alice", "SIM", "bob", "100")

	start := int64(1704067200)
	result := h.execAt("bob", "unstake", `{"symbol":"SIM","quantity":"30","isSignedWithActiveKey":true}`, start)
	require.False(t, result.Logs.HasError(), "unstake errors: %v", result.Logs.Errors)
	requireDecimal(t, "70", h.ledger.AccountBalance("bob", "SIM"))

	// Sweep before the cooldown elapses: nothing moves.
	result = h.execAt(types.SystemSender, "checkPendingUnstakes", "{}", start+UnstakeCooldownSeconds-1)
	require.False(t, result.Logs.HasError())
	assert.Empty(t, result.Logs.Events)
	requireDecimal(t, "70", h.ledger.AccountBalance("bob", "SIM"))

	// Sweep at the release timestamp: the pending amount returns.
	result = h.execAt(types.SystemSender, "checkPendingUnstakes", "{}", start+UnstakeCooldownSeconds)
	require.False(t, result.Logs.HasError())
	require.Len(t, result.Logs.Events, 1)
	assert.Equal(t, "unstake", result.Logs.Events[0].Event)
	requireDecimal(t, "100", h.ledger.AccountBalance("bob", "SIM"))

	var remaining []PendingUnstake
	require.NoError(t, h.store.Session().Order("id asc").Find(&remaining).Error)
	assert.Empty(t, remaining)
}

func TestCheckPendingUnstakesSystemOnly(t *testing.T) {
	h := newHarness(t)

	result := h.exec("alice", "checkPendingUnstakes", "{}")
	assert.Equal(t, []string{"not authorized"}, result.Logs.Errors)
}

func TestInflationMintsIntoRewardPool(t *testing.T) {
	h := newHarness(t)
	result := h.deploy("inflation")
	require.False(t, result.Logs.HasError(), "inflation deploy errors: %v", result.Logs.Errors)

	h.txSeq++
	tx := types.NewTransaction(100, fmt.Sprintf("tx-%d", h.txSeq), types.SystemSender, "inflation", "issueNewTokens", "{}")
	h.store.InitDatabaseHash("seed")
	execResult := h.gateway.Execute(tx, h.info(1704067200))
	require.NoError(t, h.store.Flush())

	require.False(t, execResult.Logs.HasError(), "errors: %v", execResult.Logs.Errors)
	requireDecimal(t, "100", h.ledger.AccountBalance("reward-pool", dec.PegSymbol))

	var token Token
	require.NoError(t, h.store.Session().Where("symbol = ?", dec.PegSymbol).First(&token).Error)
	requireDecimal(t, "100", token.Supply)
}

func TestInflationSystemOnly(t *testing.T) {
	h := newHarness(t)
	result := h.deploy("inflation")
	require.False(t, result.Logs.HasError())

	h.txSeq++
	tx := types.NewTransaction(100, fmt.Sprintf("tx-%d", h.txSeq), "alice", "inflation", "issueNewTokens", "{}")
	h.store.InitDatabaseHash("seed")
	execResult := h.gateway.Execute(tx, h.info(1704067200))
	require.NoError(t, h.store.Flush())

	assert.Equal(t, []string{"not authorized"}, execResult.Logs.Errors)
}
