package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/history"
	"github.com/bull/docqa-server/internal/llm"
	"github.com/bull/docqa-server/internal/storage"
)

// recordingBackend captures the messages it is sent.
type recordingBackend struct {
	reply    string
	err      error
	messages []llm.Message
}

func (b *recordingBackend) Name() string { return "fake" }

func (b *recordingBackend) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	b.messages = messages
	return b.reply, b.err
}

func result(text, source string, extra ...string) storage.Result {
	md := map[string]string{storage.SourceKey: source}
	for i := 0; i+1 < len(extra); i += 2 {
		md[extra[i]] = extra[i+1]
	}
	return storage.Result{Text: text, Metadata: md}
}

func TestAnswer_MessageOrder(t *testing.T) {
	backend := &recordingBackend{reply: "42"}
	o := New(backend, Options{}, nil)

	hist := []history.Turn{
		{Role: history.RoleUser, Content: "earlier question"},
		{Role: history.RoleAssistant, Content: "earlier answer"},
	}
	resp, err := o.Answer(context.Background(), "what is it?", []storage.Result{
		result("chunk one", "a.pdf"),
		result("chunk two", "b.pdf"),
	}, hist)
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Answer)

	msgs := backend.messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "chunk one"+ContextDelimiter+"chunk two")
	assert.Contains(t, msgs[0].Content, InsufficientContext)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "earlier question"}, msgs[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "earlier answer"}, msgs[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "what is it?"}, msgs[3])
}

func TestAnswer_HistoryWindow(t *testing.T) {
	backend := &recordingBackend{reply: "ok"}
	o := New(backend, Options{}, nil)

	var hist []history.Turn
	for i := 0; i < 25; i++ {
		hist = append(hist, history.Turn{Role: history.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}
	_, err := o.Answer(context.Background(), "q", nil, hist)
	require.NoError(t, err)

	msgs := backend.messages
	require.Len(t, msgs, 1+DefaultHistoryWindow+1)
	assert.Equal(t, "turn 15", msgs[1].Content)
	assert.Equal(t, "turn 24", msgs[DefaultHistoryWindow].Content)
}

func TestAnswer_BackendErrorSurfaces(t *testing.T) {
	errDown := errors.New("backend down")
	o := New(&recordingBackend{err: errDown}, Options{}, nil)

	_, err := o.Answer(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, errDown)
}

func TestSources(t *testing.T) {
	long := strings.Repeat("é", 250)
	refs := Sources([]storage.Result{
		result(long, "doc.pdf", storage.PageKey, "7", storage.TitleKey, "Manual"),
		{Text: "no metadata", Metadata: map[string]string{}},
	})

	require.Len(t, refs, 2)
	assert.Equal(t, strings.Repeat("é", 200)+"...", refs[0].Text)
	assert.Equal(t, "doc.pdf", refs[0].Source)
	assert.Equal(t, 7, refs[0].Page)
	assert.Equal(t, "Manual", refs[0].Title)

	assert.Equal(t, "no metadata...", refs[1].Text)
	assert.Equal(t, "Unknown", refs[1].Source)
	assert.Zero(t, refs[1].Page)
	assert.Empty(t, refs[1].Title)
}

func TestBuildContext_DropsWholeTailChunks(t *testing.T) {
	retrieved := []storage.Result{
		{Text: strings.Repeat("a", 10)},
		{Text: strings.Repeat("b", 10)},
		{Text: strings.Repeat("c", 10)},
	}
	limit := 20 + len(ContextDelimiter)

	got, used := BuildContext(retrieved, limit)
	assert.Equal(t, 2, used)
	assert.Equal(t, strings.Repeat("a", 10)+ContextDelimiter+strings.Repeat("b", 10), got)
}

func TestBuildContext_CutsOversizedFirstChunk(t *testing.T) {
	got, used := BuildContext([]storage.Result{{Text: "ééééé"}}, 5)
	assert.Equal(t, 1, used)
	assert.Equal(t, "éé", got)
}

func TestBuildContext_Empty(t *testing.T) {
	got, used := BuildContext(nil, 100)
	assert.Empty(t, got)
	assert.Zero(t, used)
}

// fakeRetriever serves fixed results and records deletions.
type fakeRetriever struct {
	results []storage.Result
	deleted []string
}

func (f *fakeRetriever) Query(ctx context.Context, queryText, sessionID string, topK int) ([]storage.Result, error) {
	return f.results, nil
}

func (f *fakeRetriever) DeleteSession(ctx context.Context, sessionID string) error {
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func TestService_AskAppendsHistory(t *testing.T) {
	ctx := context.Background()
	hist := history.NewMemoryStore(0)
	backend := &recordingBackend{reply: "answer one"}
	svc := NewService(&fakeRetriever{results: []storage.Result{result("ctx", "a.txt")}},
		hist, New(backend, Options{}, nil), ServiceOptions{}, nil)

	resp, err := svc.Ask(ctx, "s1", "question one")
	require.NoError(t, err)
	assert.Equal(t, "answer one", resp.Answer)
	require.Len(t, resp.Sources, 1)

	turns, err := hist.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []history.Turn{
		{Role: history.RoleUser, Content: "question one"},
		{Role: history.RoleAssistant, Content: "answer one"},
	}, turns)

	// The second ask sees the first exchange.
	backend.reply = "answer two"
	_, err = svc.Ask(ctx, "s1", "question two")
	require.NoError(t, err)
	assert.Len(t, backend.messages, 4)
}

func TestService_FailedAskLeavesHistoryUntouched(t *testing.T) {
	ctx := context.Background()
	hist := history.NewMemoryStore(0)
	svc := NewService(&fakeRetriever{}, hist,
		New(&recordingBackend{err: errors.New("boom")}, Options{}, nil), ServiceOptions{}, nil)

	_, err := svc.Ask(ctx, "s1", "q")
	require.Error(t, err)

	turns, err := hist.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()

	for _, cascade := range []bool{false, true} {
		t.Run(fmt.Sprintf("cascade=%v", cascade), func(t *testing.T) {
			hist := history.NewMemoryStore(0)
			store := &fakeRetriever{}
			svc := NewService(store, hist, New(&recordingBackend{}, Options{}, nil),
				ServiceOptions{DeleteVectorsOnClear: cascade}, nil)

			require.NoError(t, hist.Append(ctx, "s1", history.Turn{Role: history.RoleUser, Content: "q"}))
			require.NoError(t, svc.Clear(ctx, "s1"))

			turns, err := hist.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, turns)

			if cascade {
				assert.Equal(t, []string{"s1"}, store.deleted)
			} else {
				assert.Empty(t, store.deleted)
			}
		})
	}
}
