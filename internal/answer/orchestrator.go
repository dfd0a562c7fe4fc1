// Package answer assembles retrieved chunks and conversation history into a
// grounded prompt and asks a language model for the answer.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bull/docqa-server/internal/history"
	"github.com/bull/docqa-server/internal/llm"
	"github.com/bull/docqa-server/internal/storage"
)

const (
	DefaultHistoryWindow = 10

	// DefaultMaxContextChars keeps the context near 12k tokens at a rough
	// 4 characters per token.
	DefaultMaxContextChars = 48000

	// ContextDelimiter separates chunks in the context block.
	ContextDelimiter = "\n\n---\n\n"

	// InsufficientContext is the reply the model is told to give when the
	// context does not contain the answer.
	InsufficientContext = "I don't have enough information to answer this question."

	sourcePreviewChars = 200
	unknownSource      = "Unknown"
)

// Options bound the prompt.
type Options struct {
	HistoryWindow   int
	MaxContextChars int
}

// SourceRef cites one retrieved chunk.
type SourceRef struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Response is a generated answer with the chunks it was grounded on.
type Response struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// Orchestrator builds prompts and dispatches them to one backend.
type Orchestrator struct {
	backend llm.Backend
	opts    Options
	logger  *slog.Logger
}

// New creates an Orchestrator. Zero options use the defaults.
func New(backend llm.Backend, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	return &Orchestrator{backend: backend, opts: opts, logger: logger}
}

// Answer asks the backend to answer question from retrieved using the recent
// part of hist. Backend errors are returned as is; there is no fallback model.
func (o *Orchestrator) Answer(ctx context.Context, question string, retrieved []storage.Result, hist []history.Turn) (*Response, error) {
	messages := o.buildMessages(question, retrieved, hist)

	reply, err := o.backend.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate answer with %s: %w", o.backend.Name(), err)
	}

	return &Response{
		Answer:  reply,
		Sources: Sources(retrieved),
	}, nil
}

// buildMessages returns [system, history..., question].
func (o *Orchestrator) buildMessages(question string, retrieved []storage.Result, hist []history.Turn) []llm.Message {
	contextText, used := BuildContext(retrieved, o.opts.MaxContextChars)
	if used < len(retrieved) {
		o.logger.Info("Context truncated", "chunks", len(retrieved), "kept", used, "max_chars", o.opts.MaxContextChars)
	}

	if len(hist) > o.opts.HistoryWindow {
		hist = hist[len(hist)-o.opts.HistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(hist)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(contextText)})
	for _, t := range hist {
		role := llm.RoleUser
		if t.Role == history.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}

func systemPrompt(contextText string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that answers questions using only the context below.\n")
	b.WriteString("If the answer is not in the context, say \"" + InsufficientContext + "\"\n")
	b.WriteString("Do not make up information that is not in the context.\n")
	b.WriteString("Always cite your sources by naming the document or URL the information came from.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(contextText)
	return b.String()
}

// BuildContext joins chunk texts with ContextDelimiter, dropping whole chunks
// from the tail once maxChars would be exceeded. A first chunk longer than
// maxChars is cut. It returns the context and the number of chunks used.
func BuildContext(retrieved []storage.Result, maxChars int) (string, int) {
	var b strings.Builder
	used := 0
	for _, r := range retrieved {
		extra := len(r.Text)
		if used > 0 {
			extra += len(ContextDelimiter)
		}
		if b.Len()+extra > maxChars {
			if used == 0 {
				b.WriteString(cutRunes(r.Text, maxChars))
				used = 1
			}
			break
		}
		if used > 0 {
			b.WriteString(ContextDelimiter)
		}
		b.WriteString(r.Text)
		used++
	}
	return b.String(), used
}

// cutRunes returns the longest prefix of s of at most maxBytes bytes that
// ends on a character boundary.
func cutRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}

// Sources builds a citation for every retrieved chunk, whether or not the
// model used it.
func Sources(retrieved []storage.Result) []SourceRef {
	refs := make([]SourceRef, 0, len(retrieved))
	for _, r := range retrieved {
		ref := SourceRef{
			Text:   preview(r.Text),
			Source: r.Metadata[storage.SourceKey],
			Title:  r.Metadata[storage.TitleKey],
		}
		if ref.Source == "" {
			ref.Source = unknownSource
		}
		if page, err := strconv.Atoi(r.Metadata[storage.PageKey]); err == nil {
			ref.Page = page
		}
		refs = append(refs, ref)
	}
	return refs
}

// preview returns the first 200 characters followed by "...".
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > sourcePreviewChars {
		runes = runes[:sourcePreviewChars]
	}
	return string(runes) + "..."
}
