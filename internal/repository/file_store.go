package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/history"
)

const (
	scoresDir     = "scores"
	scoresFile    = "lesson_scores.json"
	errorsFile    = "error_history.json"
	documentPerm  = 0o644
	directoryPerm = 0o755
)

// FileScoreRepository stores each user's documents as two JSON files under
// <root>/<user>/scores. Both documents are staged as temp files before
// either is renamed into place, and a failed second rename restores the
// first, so the two files never disagree about which attempts exist.
type FileScoreRepository struct {
	root   string
	locker Locker
	logger zerolog.Logger
	rename func(oldpath, newpath string) error
}

// NewFileScoreRepository creates a new FileScoreRepository. A nil locker
// falls back to a LocalLocker.
func NewFileScoreRepository(root string, locker Locker, logger zerolog.Logger) *FileScoreRepository {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &FileScoreRepository{
		root:   root,
		locker: locker,
		logger: logger,
		rename: os.Rename,
	}
}

func (r *FileScoreRepository) paths(user string) (dir, scores, errs string) {
	dir = filepath.Join(r.root, user, scoresDir)
	return dir, filepath.Join(dir, scoresFile), filepath.Join(dir, errorsFile)
}

// SaveAttempt implements ScoreRepository.
func (r *FileScoreRepository) SaveAttempt(ctx context.Context, user string, lesson int, result *assessment.Result) error {
	tallies, err := validateAttempt(user, lesson, result)
	if err != nil {
		return err
	}

	unlock, err := r.locker.Lock(ctx, user)
	if err != nil {
		return errors.Persistence("could not lock score history", err)
	}
	defer unlock()

	dir, scoresPath, errorsPath := r.paths(user)

	scores := history.ScoreDocument{}
	prevScores, err := readDocument(scoresPath, &scores)
	if err != nil {
		return errors.Persistence("could not read score history", err)
	}
	errs := history.ErrorDocument{}
	if _, err := readDocument(errorsPath, &errs); err != nil {
		return errors.Persistence("could not read error history", err)
	}

	h, err := history.Extract(scores, errs, lesson)
	if err != nil {
		return errors.Persistence("stored score history is inconsistent", err)
	}
	h.RecordAttempt(result.Scores, tallies)
	history.Apply(scores, errs, h)

	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return errors.Persistence("could not create score directory", err)
	}
	scoresTmp, err := stageDocument(scoresPath, scores)
	if err != nil {
		return errors.Persistence("could not write score history", err)
	}
	defer os.Remove(scoresTmp)
	errorsTmp, err := stageDocument(errorsPath, errs)
	if err != nil {
		return errors.Persistence("could not write error history", err)
	}
	defer os.Remove(errorsTmp)

	if err := r.rename(scoresTmp, scoresPath); err != nil {
		return errors.Persistence("could not write score history", err)
	}
	if err := r.rename(errorsTmp, errorsPath); err != nil {
		if rerr := r.restore(scoresPath, prevScores); rerr != nil {
			r.logger.Error().Err(rerr).Str("path", scoresPath).Msg("Failed to roll back score history")
		}
		return errors.Persistence("could not write error history", err)
	}

	r.logger.Debug().
		Str("user", user).
		Int("lesson", lesson).
		Int("attempts", len(h.Attempts)).
		Msg("Saved attempt")
	return nil
}

// LoadLessonHistory implements ScoreRepository. Unreadable documents are
// logged and treated as empty.
func (r *FileScoreRepository) LoadLessonHistory(ctx context.Context, user string, lesson int) (*history.LessonHistory, error) {
	if err := ValidateUser(user); err != nil {
		return nil, err
	}
	if lesson < 0 {
		return nil, errors.Validation("lesson index must not be negative")
	}

	_, scoresPath, errorsPath := r.paths(user)

	scores := history.ScoreDocument{}
	if _, err := readDocument(scoresPath, &scores); err != nil {
		r.logger.Warn().Err(err).Str("path", scoresPath).Msg("Ignoring unreadable score history")
		scores = history.ScoreDocument{}
	}
	errs := history.ErrorDocument{}
	if _, err := readDocument(errorsPath, &errs); err != nil {
		r.logger.Warn().Err(err).Str("path", errorsPath).Msg("Ignoring unreadable error history")
		errs = history.ErrorDocument{}
	}

	h, err := history.Extract(scores, errs, lesson)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", user).Int("lesson", lesson).Msg("Ignoring inconsistent score history")
		return history.New(lesson), nil
	}
	return h, nil
}

// restore puts back the bytes a document held before a failed save. A nil
// prev means the document did not exist.
func (r *FileScoreRepository) restore(path string, prev []byte) error {
	if prev == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	tmp, err := stageBytes(path, prev)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return r.rename(tmp, path)
}

// readDocument decodes path into v and returns the bytes it read. A missing
// file leaves v untouched and returns nil bytes.
func readDocument(path string, v any) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// stageDocument writes v to a synced temp file next to path and returns
// the temp file's name.
func stageDocument(path string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", err
	}
	return stageBytes(path, data)
}

func stageBytes(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), fs.FileMode(documentPerm)); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
