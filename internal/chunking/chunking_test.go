package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(p string, size int) FileRecord {
	return FileRecord{Path: p, Content: strings.Repeat("x", size)}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 8000), 2000},
		{"héllo", 2},
		{strings.Repeat("é", 4000), 1000},
		{strings.Repeat("日本", 6), 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "len=%d", len(tt.text))
	}
}

func TestPack_AllFitInOneChunk(t *testing.T) {
	files := []FileRecord{file("a.go", 8000), file("b.go", 4000), file("c.go", 100)}

	chunks := Pack(files, 4000)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 3, chunks[0].TotalFiles)
	assert.Equal(t, files, chunks[0].Files)
	assert.Equal(t, 3025, chunks[0].Tokens())
}

func TestPack_MultibyteContentCountsCharacters(t *testing.T) {
	files := []FileRecord{
		{Path: "a.txt", Content: strings.Repeat("é", 4000)},
		{Path: "b.txt", Content: strings.Repeat("é", 4000)},
	}

	chunks := Pack(files, 3000)

	require.Len(t, chunks, 1)
	assert.Equal(t, 2000, chunks[0].Tokens())
}

func TestPack_OversizedFilesGetOwnChunks(t *testing.T) {
	files := []FileRecord{file("big1.go", 20000), file("big2.go", 20000)}

	chunks := Pack(files, 4000)

	require.Len(t, chunks, 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		require.Len(t, c.Files, 1)
		assert.Equal(t, files[i].Path, c.Files[0].Path)
		assert.Equal(t, 2, c.TotalFiles)
	}
}

func TestPack_Empty(t *testing.T) {
	assert.Empty(t, Pack(nil, 4000))
	assert.Empty(t, Pack([]FileRecord{{Path: "dir/"}, {Path: "empty.txt"}}, 4000))
}

func TestPack_SkipsContentless(t *testing.T) {
	files := []FileRecord{file("a.go", 40), {Path: "vendor/"}, file("b.go", 40)}

	chunks := Pack(files, 4000)

	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].TotalFiles)
	assert.Equal(t, []string{"a.go", "b.go"}, paths(chunks[0].Files))
}

func TestPack_DefaultBudget(t *testing.T) {
	files := []FileRecord{file("a", 12000), file("b", 12000)}

	assert.Len(t, Pack(files, 0), 2)
	assert.Len(t, Pack(files, -1), 2)
	assert.Len(t, Pack(files, 10000), 1)
}

func TestPack_Properties(t *testing.T) {
	sizes := []int{100, 3900, 16001, 0, 2000, 2000, 2001, 50, 0, 15999, 4, 8000, 7996}
	var files []FileRecord
	var withContent []FileRecord
	for i, n := range sizes {
		f := file(string(rune('a'+i))+".txt", n)
		files = append(files, f)
		if n > 0 {
			withContent = append(withContent, f)
		}
	}

	for _, budget := range []int{1, 500, 1000, 4000, 10000} {
		chunks := Pack(files, budget)

		var flattened []FileRecord
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex, "indices are dense")
			assert.Equal(t, len(withContent), c.TotalFiles)
			require.NotEmpty(t, c.Files)
			if len(c.Files) > 1 {
				assert.LessOrEqual(t, c.Tokens(), budget, "multi-file chunk within budget")
			}
			flattened = append(flattened, c.Files...)
		}
		assert.Equal(t, withContent, flattened, "order preserved, no duplicates or drops")

		assert.Equal(t, chunks, Pack(files, budget), "deterministic")
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"main.go":           "go",
		"src/App.TSX":       "tsx",
		"config/app.yml":    "yaml",
		"Dockerfile":        "dockerfile",
		"build/Makefile":    "makefile",
		"README":            "",
		"scripts/deploy.sh": "bash",
	}
	for p, want := range tests {
		assert.Equal(t, want, DetectLanguage(p), p)
	}
}

func paths(files []FileRecord) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
