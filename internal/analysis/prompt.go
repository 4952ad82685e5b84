package analysis

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/repolens/internal/chunking"
	"github.com/fyrsmithlabs/repolens/internal/secrets"
)

// DefaultMaxPromptFileChars caps a single file's content inside a prompt.
const DefaultMaxPromptFileChars = 100_000

const truncationMarker = "\n\n[... content truncated, original size: %dKB]"

// promptBuilder renders chunk files into chat messages.
type promptBuilder struct {
	maxFileChars int
	scrubber     *secrets.Scrubber
}

// truncateContent cuts content to at most max characters and appends the
// original size in KB.
func truncateContent(content string, max int) string {
	if max <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	kb := (len(content) + 512) / 1024
	return string(runes[:max]) + fmt.Sprintf(truncationMarker, kb)
}

func (b *promptBuilder) renderFile(f chunking.FileRecord) string {
	content := truncateContent(f.Content, b.maxFileChars)

	var note string
	if b.scrubber.Enabled() {
		res := b.scrubber.Scrub(content)
		content = res.Scrubbed
		if res.HasFindings() {
			note = res.Note() + "\n"
		}
	}

	lang := f.Language
	if lang == "" {
		lang = chunking.DetectLanguage(f.Path)
	}

	var sb strings.Builder
	sb.WriteString("### File: ")
	sb.WriteString(f.Path)
	sb.WriteString("\n```")
	sb.WriteString(lang)
	sb.WriteString("\n")
	sb.WriteString(content)
	sb.WriteString("\n```\n")
	sb.WriteString(note)
	return sb.String()
}

func (b *promptBuilder) renderChunk(chunk chunking.Chunk) string {
	parts := make([]string, 0, len(chunk.Files))
	for _, f := range chunk.Files {
		parts = append(parts, b.renderFile(f))
	}
	return strings.Join(parts, "\n")
}

const firstSystemPrompt = `You are a senior application security engineer reviewing the source code of the repository %s.
The code is delivered in %d part(s). This is part %d of %d.
Start a structured security report. For every issue you find, give:
1. The vulnerable code snippet with its file path.
2. An explanation of the risk and its severity.
3. A secure fix as a corrected code snippet.
Use markdown headings per issue and only report issues supported by the code shown.`

const continuationSystemPrompt = `You are a senior application security engineer continuing a security review of the repository %s.
The code is delivered in %d parts. This is part %d of %d.
Earlier parts have already been reviewed and reported. Do not repeat or summarize earlier context or findings.
Continue the same report format: for each new issue give the vulnerable code snippet with its file path, the risk and its severity, and a secure fix.
Stay consistent with the severity scale and terminology used for earlier findings.`

const finalPartHint = "\nThis is the final part. After the new findings, close the report with a short overall summary of the repository's security posture."

func (b *promptBuilder) messages(repo string, state requestState, chunk chunking.Chunk) (system, user string) {
	if state.IsFirstChunk {
		system = fmt.Sprintf(firstSystemPrompt, repo, state.TotalChunks, state.Part(), state.TotalChunks)
	} else {
		system = fmt.Sprintf(continuationSystemPrompt, repo, state.TotalChunks, state.Part(), state.TotalChunks)
	}
	if state.IsLastChunk && state.TotalChunks > 1 {
		system += finalPartHint
	}

	var sb strings.Builder
	if state.IsFirstChunk {
		fmt.Fprintf(&sb, "Analyze the following code from %s (part %d of %d, %d file(s)):\n\n",
			repo, state.Part(), state.TotalChunks, len(chunk.Files))
	} else {
		fmt.Fprintf(&sb, "Continue the analysis with part %d of %d of %s (%d file(s)). Report only new issues:\n\n",
			state.Part(), state.TotalChunks, repo, len(chunk.Files))
	}
	sb.WriteString(b.renderChunk(chunk))
	return system, sb.String()
}
