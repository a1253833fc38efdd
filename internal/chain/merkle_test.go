package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ksred/chain-engine/internal/types"
)

func merkleTx(hash, databaseHash string) *types.Transaction {
	return &types.Transaction{Hash: hash, DatabaseHash: databaseHash}
}

func TestMerkleRootEmpty(t *testing.T) {
	root, dbRoot := merkleRoot(nil)
	assert.Equal(t, "", root)
	assert.Equal(t, "", dbRoot)
}

func TestMerkleRootSingle(t *testing.T) {
	root, dbRoot := merkleRoot([]*types.Transaction{merkleTx("h1", "d1")})
	assert.Equal(t, "h1", root)
	assert.Equal(t, "d1", dbRoot)
}

func TestMerkleRootPair(t *testing.T) {
	root, dbRoot := merkleRoot([]*types.Transaction{
		merkleTx("h1", "d1"),
		merkleTx("h2", "d2"),
	})
	assert.Equal(t, hashPair("h1", "h2"), root)
	assert.Equal(t, hashPair("d1", "d2"), dbRoot)
}

func TestMerkleRootOddCountDuplicatesTail(t *testing.T) {
	root, dbRoot := merkleRoot([]*types.Transaction{
		merkleTx("h1", "d1"),
		merkleTx("h2", "d2"),
		merkleTx("h3", "d3"),
	})
	assert.Equal(t, hashPair(hashPair("h1", "h2"), hashPair("h3", "h3")), root)
	assert.Equal(t, hashPair(hashPair("d1", "d2"), hashPair("d3", "d3")), dbRoot)
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	forward, _ := merkleRoot([]*types.Transaction{merkleTx("h1", "d1"), merkleTx("h2", "d2")})
	reversed, _ := merkleRoot([]*types.Transaction{merkleTx("h2", "d2"), merkleTx("h1", "d1")})
	assert.NotEqual(t, forward, reversed)
}
