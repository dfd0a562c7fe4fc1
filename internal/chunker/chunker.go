// Package chunker splits extracted text into overlapping word windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Default window settings, in words.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrInvalidOverlap is returned when the overlap would stall or reverse the window.
var ErrInvalidOverlap = errors.New("chunk overlap must be smaller than chunk size")

// TitleKey is the extra-metadata key copied into Metadata.Title.
const TitleKey = "title"

// Chunker splits text into word windows of a fixed size with a fixed overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size is the number of words per chunk and overlap the
// number of words repeated across a split boundary.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidOverlap, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window size in words.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of words shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into sliding windows of Size words, each starting
// Size-Overlap words after the previous one. Windows stop once one reaches the
// end of the text, so the last window may be shorter than Size.
func (c *Chunker) Chunk(text, sourceID string, extra map[string]string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := min(start+c.size, len(words))
		chunks = append(chunks, Chunk{
			Text: strings.Join(words[start:end], " "),
			Metadata: newMetadata(sourceID, extra, Position{
				Unit:  UnitWindow,
				Index: len(chunks),
			}),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Accumulate joins sequential units (pages or paragraphs) until the running
// word count reaches Size, emits a chunk covering those units and carries the
// last Overlap words into the next chunk. Whatever remains after the last unit
// is emitted as a final chunk.
func (c *Chunker) Accumulate(units []string, sourceID string, unit Unit, extra map[string]string) []Chunk {
	var (
		chunks []Chunk
		buf    []string
		fresh  bool // buf holds words added since the last emission
		start  int
	)

	emit := func(end int) {
		chunks = append(chunks, Chunk{
			Text: strings.Join(buf, " "),
			Metadata: newMetadata(sourceID, extra, Position{
				Unit:  unit,
				Index: len(chunks),
				Start: start,
				End:   end,
			}),
		})
	}

	for i, text := range units {
		words := strings.Fields(text)
		if len(words) == 0 {
			continue
		}
		if len(buf) == 0 {
			start = i + 1
		}
		buf = append(buf, words...)
		fresh = true

		if len(buf) >= c.size {
			emit(i + 1)
			if c.overlap > 0 {
				buf = append([]string(nil), buf[len(buf)-c.overlap:]...)
			} else {
				buf = nil
			}
			fresh = false
			start = i + 1
		}
	}

	if fresh && len(buf) > 0 {
		emit(lastNonEmpty(units))
	}
	return chunks
}

func newMetadata(sourceID string, extra map[string]string, pos Position) Metadata {
	md := Metadata{Source: sourceID, Position: pos}
	if len(extra) > 0 {
		md.Extra = make(map[string]string, len(extra))
		for k, v := range extra {
			if k == TitleKey {
				md.Title = v
				continue
			}
			md.Extra[k] = v
		}
	}
	return md
}

func lastNonEmpty(units []string) int {
	for i := len(units) - 1; i >= 0; i-- {
		if strings.TrimSpace(units[i]) != "" {
			return i + 1
		}
	}
	return len(units)
}
