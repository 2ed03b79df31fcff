package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/tasks"
)

// DefaultExtensions are the file types chunked when the input names none.
var DefaultExtensions = []string{".txt", ".md", ".csv", ".json", ".html"}

// FileProcessingInput is the input of a file_processing task.
type FileProcessingInput struct {
	Source     string   `json:"source" validate:"required"`
	Output     string   `json:"output"`
	ChunkSize  int      `json:"chunk_size" validate:"omitempty,min=16,max=1048576"`
	Extensions []string `json:"extensions" validate:"omitempty,dive,startswith=."`
}

// Chunk is one tagged slice of a source file.
type Chunk struct {
	ID    string   `json:"id"`
	File  string   `json:"file"`
	Index int      `json:"index"`
	Text  string   `json:"text"`
	Tags  []string `json:"tags"`
}

// Manifest is the document written by file_processing.
type Manifest struct {
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Files     int       `json:"files"`
	Skipped   []string  `json:"skipped,omitempty"`
	Chunks    []Chunk   `json:"chunks"`
}

// ProcessFiles returns the file_processing work function.
func ProcessFiles(logger *log.Logger) tasks.WorkFunc {
	return func(ctx context.Context, raw json.RawMessage, r tasks.Reporter) (string, error) {
		var in FileProcessingInput
		if err := decodeInput(raw, &in); err != nil {
			return "", err
		}
		if in.ChunkSize == 0 {
			in.ChunkSize = 1000
		}
		if len(in.Extensions) == 0 {
			in.Extensions = DefaultExtensions
		}
		if in.Output == "" {
			in.Output = in.Source
		}

		if err := r.Report(0, 0, "Scanning files", in.Source); err != nil {
			return "", err
		}
		files, err := scanFiles(in.Source, in.Extensions)
		if err != nil {
			return "", err
		}

		total := int64(len(files))
		manifest := Manifest{Source: in.Source, CreatedAt: time.Now().UTC(), Chunks: []Chunk{}}

		for i, path := range files {
			rel, _ := filepath.Rel(in.Source, path)
			if err := r.Report(int64(i), total, "Processing files", rel); err != nil {
				return "", err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("skipping unreadable file", "task_id", r.TaskID(), "file", rel, "err", err)
				r.AddErrors(1)
				manifest.Skipped = append(manifest.Skipped, rel)
				continue
			}
			if !utf8.Valid(data) {
				r.AddErrors(1)
				manifest.Skipped = append(manifest.Skipped, rel)
				continue
			}

			r.AddBytes(int64(len(data)))
			manifest.Chunks = append(manifest.Chunks, chunkText(rel, string(data), in.ChunkSize)...)
			manifest.Files++
		}

		if err := r.Report(total, total, "Writing manifest", ""); err != nil {
			return "", err
		}
		return writeManifest(in.Output, in.Source, manifest)
	}
}

// scanFiles lists regular files under root whose extension is in exts, sorted by path.
func scanFiles(root string, exts []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// chunkText splits text into pieces of at most size runes, breaking on whitespace where possible.
func chunkText(file, text string, size int) []Chunk {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	tags := []string{"ext:" + ext}
	if dir := filepath.Dir(file); dir != "." {
		tags = append(tags, "dir:"+filepath.ToSlash(dir))
	}

	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			if cut := lastSpace(runes[start:end]); cut > size/2 {
				end = start + cut
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{
				ID:    fmt.Sprintf("%s#%d", filepath.ToSlash(file), len(chunks)),
				File:  filepath.ToSlash(file),
				Index: len(chunks),
				Text:  piece,
				Tags:  tags,
			})
		}
		start = end
	}
	return chunks
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i + 1
		}
	}
	return -1
}

func writeManifest(dir, source string, m Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := filepath.Base(filepath.Clean(source))
	path := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+"_chunks.json")

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
