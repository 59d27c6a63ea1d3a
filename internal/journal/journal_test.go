// ABOUTME: Tests for the SQLite mutation journal and dispatch recorder
// ABOUTME: Uses a real temp-dir database, matching how the store is deployed

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline-console/internal/dispatch"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, &Entry{
			Method:         "POST",
			Path:           "/api/admin/announcements",
			IdempotencyKey: "key-" + string(rune('a'+i)),
			Origin:         "https://admin-api.driftline.io",
			Attempts:       1,
			Status:         200,
			OK:             true,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "key-c", entries[0].IdempotencyKey, "newest first")
	assert.Equal(t, "key-b", entries[1].IdempotencyKey)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAppend_AssignsID(t *testing.T) {
	s := createTestStore(t)
	e := &Entry{Method: "POST", Path: "/x", IdempotencyKey: "k", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Append(context.Background(), e))
	assert.NotEmpty(t, e.ID)
}

func TestList_RoundTripsFailureFields(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Append(context.Background(), &Entry{
		Method:         "POST",
		Path:           "/api/admin/links/replace/execute",
		IdempotencyKey: "k1",
		Attempts:       3,
		Status:         0,
		OK:             false,
		ErrText:        "origin https://admin-api.driftline.io unreachable: dial tcp: connection refused",
		CreatedAt:      time.Now().UTC(),
	}))

	entries, err := s.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].OK)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.Contains(t, entries[0].ErrText, "unreachable")
}

func TestRecorder_ConvertsDispatchRecords(t *testing.T) {
	mem := NewMemoryStore()
	rec := NewRecorder(mem)

	rec.RecordDispatch(context.Background(), dispatch.Record{
		Method:         "POST",
		Path:           "/api/admin/approvals/a1/approve",
		IdempotencyKey: "key-1",
		Origin:         "https://driftline.io",
		Attempts:       2,
		Status:         200,
		OK:             true,
		At:             time.Now().UTC(),
	})

	entries, err := mem.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key-1", entries[0].IdempotencyKey)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.True(t, entries[0].OK)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.Append(ctx, &Entry{IdempotencyKey: "first"}))
	require.NoError(t, mem.Append(ctx, &Entry{IdempotencyKey: "second"}))

	entries, err := mem.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].IdempotencyKey)
}
