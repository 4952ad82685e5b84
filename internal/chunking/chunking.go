// Package chunking splits repository files into token-bounded chunks for
// submission to a size-limited chat-completion backend.
package chunking

import "unicode/utf8"

// DefaultMaxChunkTokens is the token budget used when none is configured.
const DefaultMaxChunkTokens = 4000

// charsPerToken is the ratio behind the token heuristic.
const charsPerToken = 4

// FileRecord is a single repository file. An empty Content means the file
// has no indexable content.
type FileRecord struct {
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
}

// Chunk is an ordered, token-bounded subset of a file list.
type Chunk struct {
	Files      []FileRecord `json:"files"`
	TotalFiles int          `json:"totalFiles"`
	ChunkIndex int          `json:"chunkIndex"`
}

// EstimateTokens approximates the token cost of text as ceil(chars/4),
// counting characters rather than bytes.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}

// Pack greedily partitions files into chunks of at most maxChunkTokens
// estimated tokens, preserving input order.
//
// Files without content are skipped. A file is never split: one that alone
// exceeds the budget occupies a chunk by itself. TotalFiles on every chunk
// is the number of content-bearing input files. A maxChunkTokens of zero or
// less selects DefaultMaxChunkTokens.
func Pack(files []FileRecord, maxChunkTokens int) []Chunk {
	if maxChunkTokens <= 0 {
		maxChunkTokens = DefaultMaxChunkTokens
	}

	var (
		groups  [][]FileRecord
		current []FileRecord
		tokens  int
		total   int
	)

	for _, f := range files {
		if f.Content == "" {
			continue
		}
		total++

		cost := EstimateTokens(f.Content)
		if len(current) > 0 && tokens+cost > maxChunkTokens {
			groups = append(groups, current)
			current = nil
			tokens = 0
		}
		current = append(current, f)
		tokens += cost
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	chunks := make([]Chunk, len(groups))
	for i, g := range groups {
		chunks[i] = Chunk{
			Files:      g,
			TotalFiles: total,
			ChunkIndex: i,
		}
	}
	return chunks
}

// Tokens returns the summed token estimate of the chunk's files.
func (c Chunk) Tokens() int {
	n := 0
	for _, f := range c.Files {
		n += EstimateTokens(f.Content)
	}
	return n
}
