package index

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragdesk/internal/rag"
)

const testDim = 3

const (
	ownerA uint = 1
	ownerB uint = 2
)

func unit(v ...float32) []float32 {
	return rag.Normalize(v)
}

func runContract(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("orders by similarity", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			Entry{ChunkID: 1, DocumentID: 10, OwnerID: ownerA, Vector: unit(1, 0, 0)},
			Entry{ChunkID: 2, DocumentID: 10, OwnerID: ownerA, Vector: unit(1, 1, 0)},
			Entry{ChunkID: 3, DocumentID: 11, OwnerID: ownerA, Vector: unit(0, 0, 1)},
		))

		got, err := idx.Search(ctx, unit(1, 0.1, 0), ownerA, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, uint(1), got[0].ChunkID)
		assert.Equal(t, uint(2), got[1].ChunkID)
		assert.Equal(t, uint(10), got[0].DocumentID)
		assert.Greater(t, got[0].Similarity, got[1].Similarity)
	})

	t.Run("owner scope", func(t *testing.T) {
		idx := newIndex(t)
		var entries []Entry
		for i := uint(1); i <= 20; i++ {
			owner := ownerA
			if i%2 == 0 {
				owner = ownerB
			}
			entries = append(entries, Entry{ChunkID: i, DocumentID: 100 + i%3, OwnerID: owner, Vector: unit(float32(i), 1, 0.5)})
		}
		require.NoError(t, idx.Upsert(ctx, entries...))

		for _, k := range []int{1, 3, 10, 50} {
			got, err := idx.Search(ctx, unit(1, 1, 1), ownerA, k)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(got), k)
			for _, c := range got {
				assert.Equal(t, uint(1), c.ChunkID%2, "chunk %d belongs to owner B", c.ChunkID)
			}
		}

		got, err := idx.Search(ctx, unit(1, 1, 1), 99, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			Entry{ChunkID: 5, DocumentID: 1, OwnerID: ownerA, Vector: unit(0, 1, 0)},
			Entry{ChunkID: 6, DocumentID: 1, OwnerID: ownerA, Vector: unit(0, 1, 0)},
			Entry{ChunkID: 7, DocumentID: 1, OwnerID: ownerA, Vector: unit(0, 1, 0)},
		))
		got, err := idx.Search(ctx, unit(0, 1, 0), ownerA, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []uint{5, 6, 7}, []uint{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, Entry{ChunkID: 1, DocumentID: 1, OwnerID: ownerA, Vector: unit(1, 0, 0)}))
		require.NoError(t, idx.Upsert(ctx, Entry{ChunkID: 1, DocumentID: 1, OwnerID: ownerA, Vector: unit(0, 0, 1)}))

		got, err := idx.Search(ctx, unit(0, 0, 1), ownerA, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	})

	t.Run("zero vectors are never matched", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			Entry{ChunkID: 1, DocumentID: 1, OwnerID: ownerA, Vector: rag.Zero(testDim)},
			Entry{ChunkID: 2, DocumentID: 1, OwnerID: ownerA, Vector: unit(1, 0, 0)},
		))
		got, err := idx.Search(ctx, unit(1, 0, 0), ownerA, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint(2), got[0].ChunkID)

		got, err = idx.Search(ctx, rag.Zero(testDim), ownerA, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing owner fails closed", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, Entry{ChunkID: 1, DocumentID: 1, OwnerID: ownerA, Vector: unit(1, 0, 0)}))
		got, err := idx.Search(ctx, unit(1, 0, 0), 0, 10)
		assert.True(t, rag.IsKind(err, rag.KindScope))
		assert.Empty(t, got)
	})

	t.Run("delete document", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			Entry{ChunkID: 1, DocumentID: 1, OwnerID: ownerA, Vector: unit(1, 0, 0)},
			Entry{ChunkID: 2, DocumentID: 2, OwnerID: ownerA, Vector: unit(1, 0, 0)},
			Entry{ChunkID: 3, DocumentID: 1, OwnerID: ownerB, Vector: unit(1, 0, 0)},
		))
		require.NoError(t, idx.DeleteDocument(ctx, ownerB, 2), "other owner's document is untouched")
		require.NoError(t, idx.DeleteDocument(ctx, ownerA, 1))

		got, err := idx.Search(ctx, unit(1, 0, 0), ownerA, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint(2), got[0].ChunkID)

		got, err = idx.Search(ctx, unit(1, 0, 0), ownerB, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint(3), got[0].ChunkID)
	})
}

func TestMemoryIndex(t *testing.T) {
	runContract(t, func(t *testing.T) Index { return NewMemory() })
}

func newSQLIndex(t *testing.T) *SQL {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	idx := NewSQL(db, testDim)
	require.NoError(t, idx.Migrate())
	return idx
}

func TestSQLIndex(t *testing.T) {
	runContract(t, func(t *testing.T) Index { return newSQLIndex(t) })
}

func TestSQLIndexRejectsWrongDimension(t *testing.T) {
	idx := newSQLIndex(t)
	err := idx.Upsert(context.Background(), Entry{ChunkID: 1, DocumentID: 1, OwnerID: ownerA, Vector: []float32{1, 0}})
	assert.Error(t, err)
}

func TestPGVectorIndex(t *testing.T) {
	dsn := os.Getenv("RAGDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RAGDESK_TEST_POSTGRES_DSN not set")
	}
	runContract(t, func(t *testing.T) Index {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err)
		idx := NewPGVector(db, testDim)
		require.NoError(t, idx.Migrate(context.Background()))
		require.NoError(t, db.Exec("TRUNCATE "+pgTable).Error)
		return idx
	})
}
