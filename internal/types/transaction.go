package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SystemSender is the account name attached to virtual transactions injected
// by the block pipeline; it is also the only sender allowed to bypass
// active-key signature checks inside contracts.
const SystemSender = "null"

// Event is a single contract event emitted during execution.
type Event struct {
	Contract string      `json:"contract"`
	Event    string      `json:"event"`
	Data     interface{} `json:"data"`
}

// Logs is the structured execution output of one transaction. Empty members
// are omitted from the serialized form so a clean run serializes to "{}".
type Logs struct {
	Errors []string `json:"errors,omitempty"`
	Events []Event  `json:"events,omitempty"`
}

// HasError reports whether any error was recorded.
func (l *Logs) HasError() bool {
	return len(l.Errors) > 0
}

// Transaction is one unit of replayed input. The input fields are set at
// construction and never change; Logs, ExecutedCodeHash, DatabaseHash and
// Hash are filled in exactly once by the execution pipeline.
type Transaction struct {
	RefBlockNumber   int64  `json:"refChainBlockNumber"`
	TransactionID    string `json:"transactionId"`
	Sender           string `json:"sender"`
	Contract         string `json:"contract"`
	Action           string `json:"action"`
	Payload          string `json:"payload"`
	ExecutedCodeHash string `json:"executedCodeHash"`
	Hash             string `json:"hash"`
	DatabaseHash     string `json:"databaseHash"`
	Logs             string `json:"logs"`
}

// NewTransaction creates a transaction record from raw reference-chain input.
func NewTransaction(refBlockNumber int64, transactionID, sender, contract, action, payload string) *Transaction {
	return &Transaction{
		RefBlockNumber: refBlockNumber,
		TransactionID:  transactionID,
		Sender:         sender,
		Contract:       contract,
		Action:         action,
		Payload:        payload,
	}
}

// NewVirtualTransaction creates a system-injected transaction. Its id is
// synthesized deterministically from the reference block number and the
// position in the virtual schedule.
func NewVirtualTransaction(refBlockNumber int64, index int, contract, action, payload string) *Transaction {
	id := fmt.Sprintf("%d-%d", refBlockNumber, index)
	return NewTransaction(refBlockNumber, id, SystemSender, contract, action, payload)
}

// AddLogs serializes the execution output onto the transaction. The JSON
// encoding of Logs is canonical (struct field order) and part of the
// transaction's hashed content.
func (t *Transaction) AddLogs(logs *Logs) {
	b, err := json.Marshal(logs)
	if err != nil {
		// Logs only ever hold strings and JSON-serializable event payloads;
		// a marshal failure here means a contract smuggled in something
		// unserializable, which must not silently alter hashed content.
		t.Logs = `{"errors":["could not serialize logs"]}`
		return
	}
	t.Logs = string(b)
}

// CalculateHash computes the transaction's content hash. Called once, after
// DatabaseHash has been set.
func (t *Transaction) CalculateHash() {
	t.Hash = sha256Hex(
		t.Sender +
			fmt.Sprintf("%d", t.RefBlockNumber) +
			t.TransactionID +
			t.Contract +
			t.Action +
			t.Payload +
			t.ExecutedCodeHash +
			t.DatabaseHash +
			t.Logs,
	)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
