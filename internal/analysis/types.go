package analysis

import (
	"encoding/json"
	"io"

	"github.com/fyrsmithlabs/repolens/internal/chunking"
)

// Repository identifies the analyzed repository.
type Repository struct {
	FullName string `json:"full_name"`
}

// Context is the repository content supplied by the caller.
type Context struct {
	Repository  *Repository           `json:"repository"`
	Files       []chunking.FileRecord `json:"files"`
	CurrentFile *chunking.FileRecord  `json:"currentFile,omitempty"`
}

// UnmarshalJSON accepts the current file as either currentFile or
// current_file.
func (c *Context) UnmarshalJSON(data []byte) error {
	type plain Context
	var aux struct {
		plain
		CurrentFileSnake *chunking.FileRecord `json:"current_file"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Context(aux.plain)
	if c.CurrentFile == nil {
		c.CurrentFile = aux.CurrentFileSnake
	}
	return nil
}

// Request asks for the analysis of one chunk.
type Request struct {
	Context    *Context `json:"context"`
	ChunkIndex int      `json:"chunkIndex"`
}

// Result carries chunk metadata and the relayed backend stream. The caller
// must close Body.
type Result struct {
	ChunkIndex  int
	TotalChunks int
	HasMore     bool
	Body        io.ReadCloser
}

// requestState is derived per call and never stored.
type requestState struct {
	ChunkIndex   int
	TotalChunks  int
	IsFirstChunk bool
	IsLastChunk  bool
}

func newRequestState(index, total int) requestState {
	return requestState{
		ChunkIndex:   index,
		TotalChunks:  total,
		IsFirstChunk: index == 0,
		IsLastChunk:  index == total-1,
	}
}

// Part returns the 1-based position of the chunk.
func (s requestState) Part() int {
	return s.ChunkIndex + 1
}
