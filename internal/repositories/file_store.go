package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
)

// FileStore keeps the history as one JSON array on disk.
//
// Each mutation reads the document, changes it and writes it back through a temp file and rename, all
// under one mutex.
type FileStore struct {
	mu     sync.Mutex
	path   string
	max    int
	logger *log.Logger
}

// NewFileStore creates a FileStore at path keeping at most maxEntries records.
func NewFileStore(path string, maxEntries int, logger *log.Logger) *FileStore {
	if maxEntries <= 0 {
		maxEntries = MaxHistory
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{path: path, max: maxEntries, logger: logger}
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(_ context.Context, rec models.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	records = slices.DeleteFunc(records, func(r models.Record) bool { return r.ID == rec.ID })
	records = append([]models.Record{rec}, records...)
	sortNewestFirst(records)
	if len(records) > s.max {
		records = records[:s.max]
	}
	return s.write(records)
}

func (s *FileStore) MarkTerminal(_ context.Context, id string, status models.Status, u models.TerminalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(records, func(r models.Record) bool { return r.ID == id })
	if idx < 0 {
		s.logger.Warn("history record not found", "task_id", id, "status", status)
		return nil
	}

	records[idx].ApplyTerminal(status, u)
	return s.write(records)
}

func (s *FileStore) Load(_ context.Context) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) List(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filterRecords(records, kind, limit), nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write([]models.Record{})
}

func (s *FileStore) Close() error { return nil }

// read loads the document. A missing file is an empty history.
func (s *FileStore) read() ([]models.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(data) == 0 {
		return []models.Record{}, nil
	}

	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCorruptRecord, s.path, err)
	}
	return records, nil
}

func (s *FileStore) write(records []models.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}
