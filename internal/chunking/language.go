package chunking

import (
	"path"
	"strings"
)

var languageByExt = map[string]string{
	"go":         "go",
	"js":         "javascript",
	"jsx":        "jsx",
	"mjs":        "javascript",
	"cjs":        "javascript",
	"ts":         "typescript",
	"tsx":        "tsx",
	"py":         "python",
	"rb":         "ruby",
	"java":       "java",
	"kt":         "kotlin",
	"scala":      "scala",
	"rs":         "rust",
	"c":          "c",
	"h":          "c",
	"cc":         "cpp",
	"cpp":        "cpp",
	"hpp":        "cpp",
	"cs":         "csharp",
	"php":        "php",
	"swift":      "swift",
	"sh":         "bash",
	"bash":       "bash",
	"zsh":        "bash",
	"ps1":        "powershell",
	"sql":        "sql",
	"html":       "html",
	"css":        "css",
	"scss":       "scss",
	"vue":        "vue",
	"svelte":     "svelte",
	"md":         "markdown",
	"json":       "json",
	"yaml":       "yaml",
	"yml":        "yaml",
	"toml":       "toml",
	"xml":        "xml",
	"ini":        "ini",
	"tf":         "hcl",
	"hcl":        "hcl",
	"proto":      "protobuf",
	"graphql":    "graphql",
	"dockerfile": "dockerfile",
}

// DetectLanguage returns a fenced-code language tag for path based on its
// extension, or "" when unknown.
func DetectLanguage(p string) string {
	base := strings.ToLower(path.Base(p))
	switch base {
	case "dockerfile":
		return "dockerfile"
	case "makefile":
		return "makefile"
	}
	ext := strings.TrimPrefix(path.Ext(base), ".")
	return languageByExt[ext]
}
