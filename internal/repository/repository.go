package repository

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/history"
)

// ScoreRepository persists per-user score trajectories and cumulative error
// tallies, one document per artifact per user with the lesson as inner key.
type ScoreRepository interface {
	// SaveAttempt appends the attempt's scores to the lesson's trajectory and
	// merges its error tally into the lesson's cumulative tally. The lesson's
	// entry is rewritten as a whole.
	SaveAttempt(ctx context.Context, user string, lesson int, result *assessment.Result) error

	// LoadLessonHistory returns the lesson's history, or an empty history
	// when nothing has been saved for it.
	LoadLessonHistory(ctx context.Context, user string, lesson int) (*history.LessonHistory, error)
}

var userPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateUser checks that a user name is safe to use as a storage key and
// path segment.
func ValidateUser(user string) error {
	if !userPattern.MatchString(user) || user == "." || user == ".." {
		return errors.Validation(fmt.Sprintf("invalid user name %q", user))
	}
	return nil
}

func validateAttempt(user string, lesson int, result *assessment.Result) (assessment.Tallies, error) {
	if err := ValidateUser(user); err != nil {
		return nil, err
	}
	if lesson < 0 {
		return nil, errors.Validation("lesson index must not be negative")
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return assessment.Classify(result)
}

type userDocuments struct {
	scores history.ScoreDocument
	errors history.ErrorDocument
}

// InMemoryScoreRepository keeps documents in process memory.
type InMemoryScoreRepository struct {
	mu   sync.Mutex
	data map[string]*userDocuments
}

// NewInMemoryScoreRepository creates a new in-memory repository.
func NewInMemoryScoreRepository() *InMemoryScoreRepository {
	return &InMemoryScoreRepository{
		data: make(map[string]*userDocuments),
	}
}

// SaveAttempt implements ScoreRepository.
func (r *InMemoryScoreRepository) SaveAttempt(ctx context.Context, user string, lesson int, result *assessment.Result) error {
	tallies, err := validateAttempt(user, lesson, result)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	docs, ok := r.data[user]
	if !ok {
		docs = &userDocuments{scores: history.ScoreDocument{}, errors: history.ErrorDocument{}}
		r.data[user] = docs
	}

	h, err := history.Extract(docs.scores, docs.errors, lesson)
	if err != nil {
		return errors.Persistence("stored history is inconsistent", err)
	}
	h.RecordAttempt(result.Scores, tallies)
	history.Apply(docs.scores, docs.errors, h)
	return nil
}

// LoadLessonHistory implements ScoreRepository.
func (r *InMemoryScoreRepository) LoadLessonHistory(ctx context.Context, user string, lesson int) (*history.LessonHistory, error) {
	if err := ValidateUser(user); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	docs, ok := r.data[user]
	if !ok {
		return history.New(lesson), nil
	}
	h, err := history.Extract(docs.scores, docs.errors, lesson)
	if err != nil {
		return history.New(lesson), nil
	}
	return h, nil
}
