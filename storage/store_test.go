package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s4/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "s4.db")
	store, err := NewStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestNewStoreEmptyPath(t *testing.T) {
	_, err := NewStore("", zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "s4.db")

	store, err := NewStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Query(context.Background(), "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)
}

func TestQueryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records, err := store.Query(ctx, "CREATE TABLE t(id INTEGER, name TEXT)")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)

	records, err = store.Query(ctx, "INSERT INTO t VALUES (1,'a')")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.Query(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, "a", records[0]["name"])
}

func TestQueryIdempotentReads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "CREATE TABLE t(id INTEGER, name TEXT)")
	require.NoError(t, err)
	_, err = store.Query(ctx, "INSERT INTO t VALUES (1,'a'), (2,'b')")
	require.NoError(t, err)

	first, err := store.Query(ctx, "SELECT * FROM t ORDER BY id")
	require.NoError(t, err)
	second, err := store.Query(ctx, "SELECT * FROM t ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQueryMalformedSQL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)
	_, err = store.Query(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	_, err = store.Query(ctx, "SELEC * FROM t")
	require.Error(t, err)
	assert.NotEmpty(t, err.Error())

	// Prior committed state is untouched by the failed statement.
	records, err := store.Query(ctx, "SELECT COUNT(*) AS n FROM t")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0]["n"])
}

func TestQueryCommitsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s4.db")
	logger := zap.NewNop().Sugar()

	store, err := NewStore(path, logger)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Query(ctx, "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)
	_, err = store.Query(ctx, "INSERT INTO t VALUES (42)")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A brand new store over the same file sees the committed write.
	reopened, err := NewStore(path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(42), records[0]["id"])
}

func TestDuplicateColumnNamesLastWins(t *testing.T) {
	store := newTestStore(t)

	records, err := store.Query(context.Background(), "SELECT 1 AS x, 2 AS x")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Row records are keyed by name, so duplicate columns collide and
	// the last value wins. Documented quirk.
	require.Len(t, records[0], 1)
	assert.Equal(t, int64(2), records[0]["x"])
}

func TestInMemorySharedAcrossRequests(t *testing.T) {
	store, err := NewStore(config.MemoryDatabase, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Each Query runs on its own request-scoped connection. The pinned
	// shared-cache handle keeps the logical store alive between them.
	_, err = store.Query(ctx, "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)
	_, err = store.Query(ctx, "INSERT INTO t VALUES (7)")
	require.NoError(t, err)

	records, err := store.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0]["id"])
}

func TestAcquireReleasePerRequest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conn, err := store.Acquire(ctx)
	require.NoError(t, err)

	_, err = store.Execute(ctx, conn, "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Equal(t, 0, store.Stats().InUse)
}

func TestConnectionsReleasedAfterMixedOutcomes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			_, err := store.Query(ctx, fmt.Sprintf("INSERT INTO t VALUES (%d)", i))
			require.NoError(t, err)
		} else {
			_, err := store.Query(ctx, "SELEC broken")
			require.Error(t, err)
		}
	}

	// Give the pool a beat to settle, then every handle must be back.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.Stats().InUse)
	assert.NoError(t, store.Close())
}

func TestConcurrentQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "CREATE TABLE t(id INTEGER)")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.Query(ctx, fmt.Sprintf("INSERT INTO t VALUES (%d)", n)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent insert failed: %v", err)
	}

	records, err := store.Query(ctx, "SELECT COUNT(*) AS n FROM t")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(workers), records[0]["n"])
	assert.Equal(t, 0, store.Stats().InUse)
}
