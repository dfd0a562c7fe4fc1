package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/history"
	"github.com/bull/docqa-server/internal/sqlitedb"
	"github.com/bull/docqa-server/internal/uploads"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Embedding.Provider = config.ProviderOpenAI
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.VectorStore.Dimension = 1536
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_MemoryBackends(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), NewLogger(&bytes.Buffer{}, "error", "text"))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "memory", a.Store.Backend())
	assert.Nil(t, a.Uploads)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Jobs)
	assert.NotNil(t, a.Service)
}

func TestNew_SQLiteHistoryAndUploads(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Backend = config.HistorySQLite
	cfg.History.SQLitePath = filepath.Join(t.TempDir(), "docqa.db")

	a, err := New(context.Background(), cfg, NewLogger(&bytes.Buffer{}, "error", "text"))
	require.NoError(t, err)
	require.NotNil(t, a.Uploads)
	assert.NoError(t, a.Close())
}

func TestNew_SQLiteConcurrentWrites(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Backend = config.HistorySQLite
	cfg.History.SQLitePath = filepath.Join(t.TempDir(), "docqa.db")

	a, err := New(context.Background(), cfg, NewLogger(&bytes.Buffer{}, "error", "text"))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	const n = 50
	errs := make(chan error, 2*n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- a.History.Append(ctx, "s1",
				history.Turn{Role: history.RoleUser, Content: fmt.Sprintf("q%d", i)},
				history.Turn{Role: history.RoleAssistant, Content: fmt.Sprintf("a%d", i)})
		}()
		go func() {
			defer wg.Done()
			errs <- a.Uploads.Save(ctx, uploads.Record{
				FileID:     fmt.Sprintf("f%d", i),
				Filename:   "doc.txt",
				SessionID:  "s1",
				UploadTime: time.Now(),
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	records, err := a.Uploads.ListSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, records, n)

	turns, err := a.History.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2*n)
}

func TestSQLiteSeparateHandlesWait(t *testing.T) {
	// Two handles on one file, as with a CLI running next to the server.
	path := filepath.Join(t.TempDir(), "docqa.db")
	histDB, err := sqlitedb.Open(path)
	require.NoError(t, err)
	defer histDB.Close()
	upDB, err := sqlitedb.Open(path)
	require.NoError(t, err)
	defer upDB.Close()

	hist, err := history.NewSQLiteStore(histDB, 1000)
	require.NoError(t, err)
	up, err := uploads.New(upDB)
	require.NoError(t, err)

	ctx := context.Background()
	const n = 30
	errs := make(chan error, 2*n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- hist.Append(ctx, "s1", history.Turn{Role: history.RoleUser, Content: "q"})
		}()
		go func() {
			defer wg.Done()
			errs <- up.Save(ctx, uploads.Record{FileID: fmt.Sprintf("f%d", i), Filename: "doc.txt", SessionID: "s1", UploadTime: time.Now()})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNew_MissingOpenAIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = ""

	_, err := New(context.Background(), cfg, NewLogger(&bytes.Buffer{}, "error", "text"))
	assert.ErrorIs(t, err, config.ErrMissingSetting)
}

func TestNew_MissingGCPProject(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = config.ProviderGemini
	cfg.GCP.ProjectID = ""

	_, err := New(context.Background(), cfg, NewLogger(&bytes.Buffer{}, "error", "text"))
	assert.ErrorIs(t, err, config.ErrMissingSetting)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)

	buf.Reset()
	NewLogger(&buf, "bogus", "text").Info("fallback")
	assert.Contains(t, buf.String(), "level=INFO")
}
