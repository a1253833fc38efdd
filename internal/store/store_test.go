package store

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memDBCounter atomic.Int64

// openMemDB opens a uniquely named shared-cache in-memory database so that
// every pooled connection sees the same data within one test.
func openMemDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", memDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

type testRecord struct {
	ID     uint   `gorm:"primaryKey" json:"_id"`
	Symbol string `gorm:"index" json:"symbol"`
	Value  int64  `json:"value"`
}

func (testRecord) TableName() string { return "testRecords" }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := openMemDB(t)
	require.NoError(t, db.AutoMigrate(&testRecord{}))
	return New(db)
}

func runMutations(t *testing.T, s *Store) string {
	t.Helper()
	s.InitDatabaseHash("genesis")

	a := &testRecord{Symbol: "TKN", Value: 1}
	require.NoError(t, s.Insert(a))
	b := &testRecord{Symbol: "TKN", Value: 2}
	require.NoError(t, s.Insert(b))

	a.Value = 10
	require.NoError(t, s.Update(a))
	require.NoError(t, s.Remove(b))

	require.NoError(t, s.Flush())
	return s.GetDatabaseHash()
}

func TestDatabaseHashDeterminism(t *testing.T) {
	h1 := runMutations(t, newTestStore(t))
	h2 := runMutations(t, newTestStore(t))

	assert.NotEmpty(t, h1)
	assert.NotEqual(t, "genesis", h1)
	assert.Equal(t, h1, h2, "identical mutation sequences must produce identical hashes")
}

func TestDatabaseHashSeedChaining(t *testing.T) {
	s := newTestStore(t)

	s.InitDatabaseHash("seed-a")
	require.NoError(t, s.Insert(&testRecord{Symbol: "A", Value: 1}))
	require.NoError(t, s.Flush())
	afterA := s.GetDatabaseHash()

	s.InitDatabaseHash("seed-b")
	require.NoError(t, s.Insert(&testRecord{Symbol: "A", Value: 1}))
	require.NoError(t, s.Flush())
	afterB := s.GetDatabaseHash()

	assert.NotEqual(t, afterA, afterB, "the seed must flow into every subsequent hash")
}

func TestHashUnchangedWithoutMutations(t *testing.T) {
	s := newTestStore(t)
	s.InitDatabaseHash("seed")

	var out []testRecord
	require.NoError(t, s.Session().Order("id asc").Find(&out).Error)
	require.NoError(t, s.Flush())

	assert.Equal(t, "seed", s.GetDatabaseHash(), "reads must not advance the hash")
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)
	s.InitDatabaseHash("seed")

	var ids []uint
	for i := 0; i < 5; i++ {
		rec := &testRecord{Symbol: "TKN", Value: int64(i)}
		require.NoError(t, s.Insert(rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, s.Flush())

	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestWritesVisibleInsideBatch(t *testing.T) {
	s := newTestStore(t)
	s.InitDatabaseHash("seed")

	require.NoError(t, s.Insert(&testRecord{Symbol: "TKN", Value: 42}))

	var rec testRecord
	require.NoError(t, s.Session().Where("symbol = ?", "TKN").First(&rec).Error)
	assert.Equal(t, int64(42), rec.Value)

	require.NoError(t, s.Flush())
}

func TestTableLifecycle(t *testing.T) {
	s := New(openMemDB(t))

	assert.False(t, s.TableExists(&testRecord{}))
	require.NoError(t, s.CreateTable(&testRecord{}))
	assert.True(t, s.TableExists(&testRecord{}))
}
