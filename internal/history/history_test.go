package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/sqlitedb"
)

func stores(t *testing.T, maxTurns int) map[string]Store {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlite, err := NewSQLiteStore(db, maxTurns)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(maxTurns),
		"sqlite": sqlite,
	}
}

func TestStore_AppendAndGet(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, "s1",
				Turn{Role: RoleUser, Content: "q1"},
				Turn{Role: RoleAssistant, Content: "a1"}))
			require.NoError(t, store.Append(ctx, "s2", Turn{Role: RoleUser, Content: "other"}))

			turns, err := store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, []Turn{{RoleUser, "q1"}, {RoleAssistant, "a1"}}, turns)
		})
	}
}

func TestStore_ClearEmptiesSession(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, "s1", Turn{Role: RoleUser, Content: "q"}))
			require.NoError(t, store.Clear(ctx, "s1"))

			turns, err := store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.NotNil(t, turns)
			assert.Empty(t, turns)
		})
	}
}

func TestStore_UnknownSessionIsEmpty(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			turns, err := store.Get(context.Background(), "never-seen")
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestStore_EvictsOldestBeyondCap(t *testing.T) {
	for name, store := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 5; i++ {
				require.NoError(t, store.Append(ctx, "s1", Turn{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}))
			}

			turns, err := store.Get(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, turns, 3)
			assert.Equal(t, "m3", turns[0].Content)
			assert.Equal(t, "m5", turns[2].Content)
		})
	}
}
