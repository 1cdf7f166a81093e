package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ResultArchive keeps the raw assessment response of every attempt.
type ResultArchive interface {
	SaveRaw(ctx context.Context, user string, lesson int, at time.Time, raw []byte) (string, error)
}

// FileResultArchive writes raw responses to
// <root>/<user>/pron_history/<lesson>-<timestamp>.json.
type FileResultArchive struct {
	root string
}

// NewFileResultArchive creates a new FileResultArchive.
func NewFileResultArchive(root string) *FileResultArchive {
	return &FileResultArchive{root: root}
}

// SaveRaw writes raw and returns the file path.
func (a *FileResultArchive) SaveRaw(ctx context.Context, user string, lesson int, at time.Time, raw []byte) (string, error) {
	if err := ValidateUser(user); err != nil {
		return "", err
	}
	dir := filepath.Join(a.root, user, "pron_history")
	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%s.json", lesson, at.UTC().Format("20060102T150405.000Z")))
	if err := writeRaw(path, raw); err != nil {
		return "", fmt.Errorf("failed to archive result: %w", err)
	}
	return path, nil
}

func writeRaw(path string, raw []byte) error {
	return os.WriteFile(path, raw, documentPerm)
}
