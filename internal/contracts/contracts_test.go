package contracts

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
)

var memDBCounter atomic.Int64

func openMemDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:contracts_test_%d?mode=memory&cache=shared", memDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

type counterItem struct {
	ID    uint   `gorm:"primaryKey" json:"_id"`
	Label string `json:"label"`
	Value int64  `json:"value"`
}

func (counterItem) TableName() string { return "counterItems" }

// counterContract is a minimal contract exercising the full capability
// surface: state writes, events, asserts, panics and cross-contract calls.
type counterContract struct{}

func (counterContract) Name() string { return "counter" }

func (counterContract) Setup(ctx *Context) {
	if err := ctx.Store.CreateTable(&counterItem{}); err != nil {
		ctx.Error("counter setup failed: " + err.Error())
	}
}

func (c counterContract) Actions() map[string]ActionFunc {
	return map[string]ActionFunc{
		"add": func(ctx *Context) {
			value, ok := ctx.PayloadInt64("value")
			ctx.Assert(ok, "invalid value")
			ctx.Assert(ctx.Store.Insert(&counterItem{Label: ctx.Sender, Value: value}) == nil, "could not add")
			ctx.Emit("added", map[string]int64{"value": value})
		},
		"failAfterWrite": func(ctx *Context) {
			ctx.Assert(ctx.Store.Insert(&counterItem{Label: "partial", Value: 1}) == nil, "could not add")
			ctx.Assert(false, "boom")
		},
		"explode": func(ctx *Context) {
			panic("kaboom")
		},
		"relay": func(ctx *Context) {
			ctx.CallContract("echo", "record", map[string]interface{}{})
		},
		"stall": func(ctx *Context) {
			time.Sleep(5 * time.Millisecond)
			ctx.Emit("stalled", map[string]string{})
		},
	}
}

type echoContract struct{}

func (echoContract) Name() string       { return "echo" }
func (echoContract) Setup(ctx *Context) {}
func (echoContract) Actions() map[string]ActionFunc {
	return map[string]ActionFunc{
		"record": func(ctx *Context) {
			ctx.Emit("called", map[string]string{"caller": ctx.Caller, "sender": ctx.Sender})
		},
	}
}

func newTestGateway(t *testing.T) (*Gateway, *store.Store) {
	t.Helper()
	s := store.New(openMemDB(t))
	g := NewGateway(s, []string{"owner"})
	g.Register(counterContract{})
	g.Register(echoContract{})
	return g, s
}

func blockInfo() BlockInfo {
	return BlockInfo{
		BlockNumber:         1,
		Timestamp:           "2024-01-01T00:00:00",
		TimestampUnix:       1704067200,
		RefChainBlockNumber: 100,
		RefChainBlockID:     "ref-100",
		PrevRefChainBlockID: "ref-99",
	}
}

func run(t *testing.T, s *store.Store, fn func() *ExecResult) *ExecResult {
	t.Helper()
	s.InitDatabaseHash("seed")
	result := fn()
	require.NoError(t, s.Flush())
	return result
}

func deployTx(sender, name string) *types.Transaction {
	return types.NewTransaction(100, "tx-deploy-"+name, sender, "contract", "deploy", fmt.Sprintf(`{"name":%q}`, name))
}

func deployCounter(t *testing.T, g *Gateway, s *store.Store) {
	t.Helper()
	result := run(t, s, func() *ExecResult { return g.Deploy(deployTx("owner", "counter"), blockInfo()) })
	require.False(t, result.Logs.HasError(), "deploy errors: %v", result.Logs.Errors)
}

func TestDeployRestrictedToAuthorizedAccounts(t *testing.T) {
	g, s := newTestGateway(t)

	result := run(t, s, func() *ExecResult { return g.Deploy(deployTx("mallory", "counter"), blockInfo()) })

	assert.Equal(t, []string{ErrDeployRestricted}, result.Logs.Errors)
	assert.Empty(t, result.ExecutedCodeHash)
}

func TestDeployRunsSetupAndExecuteDispatches(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	tx := types.NewTransaction(100, "tx-1", "alice", "counter", "add", `{"value":7}`)
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	require.False(t, result.Logs.HasError(), "errors: %v", result.Logs.Errors)
	require.Len(t, result.Logs.Events, 1)
	assert.Equal(t, "counter", result.Logs.Events[0].Contract)
	assert.Equal(t, "added", result.Logs.Events[0].Event)
	assert.NotEmpty(t, result.ExecutedCodeHash)

	var items []counterItem
	require.NoError(t, s.Session().Order("id asc").Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].Value)
}

func TestExecuteUnknownContract(t *testing.T) {
	g, s := newTestGateway(t)

	tx := types.NewTransaction(100, "tx-1", "alice", "ghost", "noop", "{}")
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	assert.Equal(t, []string{ErrContractNotFound}, result.Logs.Errors)
	assert.Empty(t, result.ExecutedCodeHash)
}

func TestExecuteUnknownAction(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	tx := types.NewTransaction(100, "tx-1", "alice", "counter", "ghost", "{}")
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	assert.Equal(t, []string{ErrInvalidAction}, result.Logs.Errors)
}

func TestAssertKeepsEarlierWrites(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	tx := types.NewTransaction(100, "tx-1", "alice", "counter", "failAfterWrite", "{}")
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	assert.Equal(t, []string{"boom"}, result.Logs.Errors)

	var items []counterItem
	require.NoError(t, s.Session().Where("label = ?", "partial").Order("id asc").Find(&items).Error)
	assert.Len(t, items, 1, "writes before a failed assert must stay applied")
}

func TestUncaughtPanicIsConfined(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	tx := types.NewTransaction(100, "tx-1", "alice", "counter", "explode", "{}")
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	require.Len(t, result.Logs.Errors, 1)
	assert.Equal(t, "uncaught exception: kaboom", result.Logs.Errors[0])
}

func TestDeployTwiceRejected(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	result := run(t, s, func() *ExecResult { return g.Deploy(deployTx("owner", "counter"), blockInfo()) })
	assert.Equal(t, []string{"contract already deployed"}, result.Logs.Errors)
}

func TestUpdateBumpsVersion(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	var v1 Record
	require.NoError(t, s.Session().Where("name = ?", "counter").First(&v1).Error)

	tx := types.NewTransaction(101, "tx-update", "owner", "contract", "update", `{"name":"counter"}`)
	result := run(t, s, func() *ExecResult { return g.Update(tx, blockInfo()) })
	require.False(t, result.Logs.HasError(), "errors: %v", result.Logs.Errors)

	var v2 Record
	require.NoError(t, s.Session().Where("name = ?", "counter").First(&v2).Error)
	assert.Equal(t, int64(1), v1.Version)
	assert.Equal(t, int64(2), v2.Version)
	assert.NotEqual(t, v1.CodeHash, v2.CodeHash)
	assert.Equal(t, v2.CodeHash, result.ExecutedCodeHash)
}

func TestUpdateUnknownContract(t *testing.T) {
	g, s := newTestGateway(t)

	tx := types.NewTransaction(101, "tx-update", "owner", "contract", "update", `{"name":"counter"}`)
	result := run(t, s, func() *ExecResult { return g.Update(tx, blockInfo()) })
	assert.Equal(t, []string{ErrContractNotFound}, result.Logs.Errors)
}

func TestCallContractCarriesCaller(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	tx := types.NewTransaction(100, "tx-1", "alice", "counter", "relay", "{}")
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	require.False(t, result.Logs.HasError(), "errors: %v", result.Logs.Errors)
	require.Len(t, result.Logs.Events, 1)
	assert.Equal(t, "echo", result.Logs.Events[0].Contract)
	data, ok := result.Logs.Events[0].Data.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "counter", data["caller"])
	assert.Equal(t, "alice", data["sender"])
}

func TestRandomIsDeterministicPerSeed(t *testing.T) {
	draw := func(prevID, txID string, n int) []float64 {
		ctx := &Context{rngSeed: randomSeed(prevID, txID)}
		out := make([]float64, n)
		for i := range out {
			out[i] = ctx.Random()
			require.GreaterOrEqual(t, out[i], 0.0)
			require.Less(t, out[i], 1.0)
		}
		return out
	}

	a := draw("ref-99", "tx-1", 8)
	b := draw("ref-99", "tx-1", 8)
	c := draw("ref-99", "tx-2", 8)

	assert.Equal(t, a, b, "same seed must yield the same stream")
	assert.NotEqual(t, a, c, "different transaction ids must yield different streams")
}

func TestSlowDispatchLeavesLogsUntouched(t *testing.T) {
	g, s := newTestGateway(t)
	deployCounter(t, g, s)

	g.timeout = time.Millisecond
	tx := types.NewTransaction(100, "tx-stall", "alice", "counter", "stall", `{}`)
	result := run(t, s, func() *ExecResult { return g.Execute(tx, blockInfo()) })

	assert.Empty(t, result.Logs.Errors)
	require.Len(t, result.Logs.Events, 1)
	assert.Equal(t, "stalled", result.Logs.Events[0].Event)
}
