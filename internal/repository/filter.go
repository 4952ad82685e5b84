package repository

import (
	"path"
	"strings"

	"github.com/fyrsmithlabs/repolens/internal/ignore"
)

// excludedDirs are directory names skipped at any depth.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".git":         true,
}

// binaryExtensions are never fetched.
var binaryExtensions = map[string]bool{
	// images
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".svg": true, ".webp": true, ".tif": true, ".tiff": true,
	".psd": true,
	// audio and video
	".mp3": true, ".mp4": true, ".wav": true, ".ogg": true, ".flac": true,
	".avi": true, ".mov": true, ".mkv": true, ".webm": true,
	// fonts
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	// archives
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".bz2": true,
	".xz": true, ".7z": true, ".rar": true, ".jar": true, ".war": true,
	// compiled and binary data
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".o": true, ".a": true, ".class": true, ".pyc": true, ".wasm": true,
	".db": true, ".sqlite": true,
	// documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
}

// shouldIndex reports whether a tree path is worth fetching.
func shouldIndex(p string, exclude *ignore.Matcher) bool {
	if p == "" {
		return false
	}

	dirs := strings.Split(path.Dir(p), "/")
	for _, d := range dirs {
		if excludedDirs[d] {
			return false
		}
	}

	if binaryExtensions[strings.ToLower(path.Ext(p))] {
		return false
	}

	return !exclude.Match(p)
}

// filterEntries keeps indexable entries in input order.
func filterEntries(entries []TreeEntry, exclude *ignore.Matcher) []TreeEntry {
	kept := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		if shouldIndex(e.Path, exclude) {
			kept = append(kept, e)
		}
	}
	return kept
}

// Indexable reports whether the indexer's built-in filters keep p. Callers
// collecting files from other sources use it to match remote indexing.
func Indexable(p string) bool {
	return shouldIndex(p, nil)
}
