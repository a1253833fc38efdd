package contracts

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
)

// BlockInfo is the block metadata visible to contract code.
type BlockInfo struct {
	BlockNumber         int64
	Timestamp           string
	TimestampUnix       int64
	RefChainBlockNumber int64
	RefChainBlockID     string
	PrevRefChainBlockID string
}

// TokenLedger is the balance-transfer capability handed to contracts. The
// concrete implementation lives in the tokens package and writes through the
// same store façade as everything else, so transfers fold into the database
// hash like any other mutation.
type TokenLedger interface {
	// Precision returns a token's declared decimal places, false if the
	// token does not exist.
	Precision(symbol string) (int32, bool)
	Transfer(from, to, symbol string, quantity decimal.Decimal) error
	TransferToContract(from, contract, symbol string, quantity decimal.Decimal) error
	TransferFromContract(contract, to, symbol string, quantity decimal.Decimal) error
}

// assertFailure is the sentinel panic used by Assert to short-circuit the
// remainder of an action. It never escapes the gateway's dispatch boundary.
type assertFailure struct{}

// Context is the capability object one action invocation executes against.
type Context struct {
	Store  *store.Store
	Tokens TokenLedger
	Block  BlockInfo

	// Sender is the transaction's signing account. Caller is set to the
	// calling contract's name on cross-contract invocations, empty for
	// direct transactions.
	Sender       string
	Caller       string
	ContractName string
	TxID         string
	Payload      map[string]interface{}

	logs    *types.Logs
	gateway *Gateway
	rngSeed [32]byte
	rngCtr  uint64
}

// Error records a single error string on the transaction's logs.
func (c *Context) Error(msg string) {
	c.logs.Errors = append(c.logs.Errors, msg)
}

// Assert records msg and aborts the remainder of the current action when
// cond is false. Already-applied writes are kept; there is no rollback.
func (c *Context) Assert(cond bool, msg string) {
	if !cond {
		c.Error(msg)
		panic(assertFailure{})
	}
}

// Emit appends a contract event to the transaction's logs.
func (c *Context) Emit(event string, data interface{}) {
	c.logs.Events = append(c.logs.Events, types.Event{
		Contract: c.ContractName,
		Event:    event,
		Data:     data,
	})
}

// Random returns a deterministic pseudo-random float in [0,1). The stream is
// seeded from the previous reference block id and the transaction id, so
// every replaying node draws the same sequence.
func (c *Context) Random() float64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.rngCtr)
	c.rngCtr++
	h := sha256.Sum256(append(c.rngSeed[:], buf[:]...))
	v := binary.BigEndian.Uint64(h[:8]) >> 11
	return float64(v) / float64(1<<53)
}

// CallContract invokes another contract's action in-process, carrying the
// current contract as caller. Events and errors land on the same
// transaction logs.
func (c *Context) CallContract(contract, action string, payload map[string]interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		c.Error(fmt.Sprintf("cross-contract payload not serializable: %v", err))
		return
	}
	c.gateway.dispatch(c.logs, c.Block, c.Sender, c.ContractName, c.TxID, contract, action, string(b))
}

// PayloadString returns a string payload field.
func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload[key].(string)
	return v, ok
}

// PayloadBool returns a boolean payload field, false when absent.
func (c *Context) PayloadBool(key string) bool {
	v, _ := c.Payload[key].(bool)
	return v
}

// PayloadInt64 returns an integer payload field. Payload JSON is decoded
// with json.Number, so integers survive without a float64 round trip.
func (c *Context) PayloadInt64(key string) (int64, bool) {
	n, ok := c.Payload[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Account resolves the acting account: the optional "account" payload field
// for system-sent transactions, the transaction sender otherwise.
func (c *Context) Account() string {
	if c.Sender == types.SystemSender {
		if account, ok := c.PayloadString("account"); ok && account != "" {
			return account
		}
	}
	return c.Sender
}

// AuthorizedSigner reports whether the action may act on the resolved
// account: either the payload was signed with the account's active key or
// the transaction was injected by the protocol itself.
func (c *Context) AuthorizedSigner() bool {
	return c.PayloadBool("isSignedWithActiveKey") || c.Sender == types.SystemSender
}

func randomSeed(prevRefChainBlockID, txID string) [32]byte {
	return sha256.Sum256([]byte(prevRefChainBlockID + txID))
}
