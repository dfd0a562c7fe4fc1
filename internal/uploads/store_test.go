package uploads

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/sqlitedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "uploads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestSaveAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := Record{
		FileID:     "f1",
		Filename:   "report.pdf",
		SessionID:  "s1",
		UploadTime: now,
		Metadata:   map[string]string{"chunks": "4"},
	}
	require.NoError(t, s.Save(ctx, rec))

	rec.Metadata = map[string]string{"chunks": "5"}
	require.NoError(t, s.Save(ctx, rec))

	records, err := s.ListSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[0]
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, rec.Metadata, got.Metadata)
	assert.WithinDuration(t, now, got.UploadTime, time.Millisecond)
}

func TestListSession_Empty(t *testing.T) {
	records, err := openTestStore(t).ListSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNew_ExistingTable(t *testing.T) {
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "docqa.db"))
	require.NoError(t, err)
	defer db.Close()

	first, err := New(db)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), Record{FileID: "f", Filename: "a.txt", SessionID: "s1", UploadTime: time.Now()}))

	second, err := New(db)
	require.NoError(t, err)
	records, err := second.ListSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Now().UTC()

	require.NoError(t, s.Save(ctx, Record{FileID: "b", Filename: "b.txt", SessionID: "s1", UploadTime: base.Add(time.Second)}))
	require.NoError(t, s.Save(ctx, Record{FileID: "a", Filename: "a.txt", SessionID: "s1", UploadTime: base}))
	require.NoError(t, s.Save(ctx, Record{FileID: "c", Filename: "c.txt", SessionID: "s2", UploadTime: base}))

	records, err := s.ListSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].FileID)
	assert.Equal(t, "b", records[1].FileID)
}
