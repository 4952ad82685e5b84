package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/fyrsmithlabs/repolens/internal/analysis"
	"github.com/fyrsmithlabs/repolens/internal/chunking"
	"github.com/fyrsmithlabs/repolens/internal/ignore"
	"github.com/fyrsmithlabs/repolens/internal/repository"
)

// defaultMaxLocalFileSize matches the server's default ceiling for source files.
const defaultMaxLocalFileSize = 500 * 1024

// loadDir walks dir and returns the files the server would index from a
// hosted repository: excluded paths, oversized files and binary content are
// skipped. The root .gitignore is honored.
func loadDir(dir string, maxSize int64) ([]chunking.FileRecord, error) {
	var patterns []string
	if data, err := os.ReadFile(filepath.Join(dir, ".gitignore")); err == nil {
		patterns, err = ignore.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse .gitignore: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	gitignore := ignore.New(patterns)

	var files []chunking.FileRecord
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || gitignore.Match(rel) || !repository.Indexable(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if maxSize > 0 && info.Size() > maxSize {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if len(content) == 0 || !utf8.Valid(content) {
			return nil
		}
		files = append(files, chunking.FileRecord{
			Path:     rel,
			Content:  string(content),
			Language: chunking.DetectLanguage(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return files, nil
}

// loadCorpus reads a JSON corpus file. Both a bare file list and an
// analysis context object are accepted.
func loadCorpus(path string) (*analysis.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var files []chunking.FileRecord
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, fmt.Errorf("failed to parse corpus: %w", err)
		}
		return &analysis.Context{Files: files}, nil
	}
	var actx analysis.Context
	if err := json.Unmarshal(data, &actx); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	return &actx, nil
}

// findFile returns the record for path from files, or reads it from dir.
func findFile(files []chunking.FileRecord, dir, path string) (*chunking.FileRecord, error) {
	rel := filepath.ToSlash(filepath.Clean(path))
	for i := range files {
		if files[i].Path == rel {
			f := files[i]
			return &f, nil
		}
	}
	if dir == "" {
		return nil, fmt.Errorf("current file %s not found in corpus", path)
	}
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("failed to read current file: %w", err)
	}
	return &chunking.FileRecord{Path: rel, Content: string(content), Language: chunking.DetectLanguage(rel)}, nil
}
