package chunker

// Unit describes what a chunk's position refers to.
type Unit string

const (
	// UnitWindow positions are zero-based sliding window indexes.
	UnitWindow Unit = "window"
	// UnitPage positions are one-based page ranges.
	UnitPage Unit = "page"
	// UnitParagraph positions are one-based paragraph ranges.
	UnitParagraph Unit = "paragraph"
)

// Position locates a chunk inside its source.
type Position struct {
	Unit  Unit
	Index int // Window index (UnitWindow only)
	Start int // First covered unit, one-based
	End   int // Last covered unit, one-based
}

// Metadata is the provenance attached to every chunk.
type Metadata struct {
	Source    string            // Originating filename or URL
	SessionID string            // Empty until the chunk is stored
	Title     string            // Page or document title, if known
	Position  Position
	Extra     map[string]string // Caller-supplied metadata
}

// Chunk is a bounded slice of source text plus provenance.
// Chunks are values; copy before changing metadata.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// WithSession returns a copy of the chunk stamped with sessionID.
func (c Chunk) WithSession(sessionID string) Chunk {
	out := c
	out.Metadata.SessionID = sessionID
	if c.Metadata.Extra != nil {
		out.Metadata.Extra = make(map[string]string, len(c.Metadata.Extra))
		for k, v := range c.Metadata.Extra {
			out.Metadata.Extra[k] = v
		}
	}
	return out
}
