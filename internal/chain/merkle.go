package chain

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ksred/chain-engine/internal/types"
)

type merkleNode struct {
	hash         string
	databaseHash string
}

// merkleRoot folds the ordered transactions' (content hash, database hash)
// pairs pairwise until one pair remains, duplicating the odd element of each
// level. An empty list yields the empty-string sentinel for both values.
func merkleRoot(transactions []*types.Transaction) (string, string) {
	if len(transactions) == 0 {
		return "", ""
	}

	level := make([]merkleNode, len(transactions))
	for i, tx := range transactions {
		level[i] = merkleNode{hash: tx.Hash, databaseHash: tx.DatabaseHash}
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]merkleNode, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, merkleNode{
				hash:         hashPair(level[i].hash, level[i+1].hash),
				databaseHash: hashPair(level[i].databaseHash, level[i+1].databaseHash),
			})
		}
		level = next
	}
	return level[0].hash, level[0].databaseHash
}

func hashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
