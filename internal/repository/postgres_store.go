package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/client"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/history"
)

const (
	artifactScores = "lesson_scores"
	artifactErrors = "error_history"
)

// PostgresScoreRepository stores the same two documents as
// FileScoreRepository in the user_documents table. SaveAttempt runs as one
// transaction holding row locks, so concurrent writers for one user are
// serialized by the database.
type PostgresScoreRepository struct {
	db     *client.PostgresClient
	logger zerolog.Logger
}

// NewPostgresScoreRepository creates a new PostgresScoreRepository.
func NewPostgresScoreRepository(db *client.PostgresClient, logger zerolog.Logger) *PostgresScoreRepository {
	return &PostgresScoreRepository{db: db, logger: logger}
}

// SaveAttempt implements ScoreRepository.
func (r *PostgresScoreRepository) SaveAttempt(ctx context.Context, user string, lesson int, result *assessment.Result) error {
	tallies, err := validateAttempt(user, lesson, result)
	if err != nil {
		return err
	}
	if r.db == nil || r.db.Pool == nil {
		return errors.Persistence("database not configured", nil)
	}

	err = pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		seed := `
			INSERT INTO user_documents (user_id, artifact)
			VALUES ($1, $2), ($1, $3)
			ON CONFLICT (user_id, artifact) DO NOTHING
		`
		if _, err := tx.Exec(ctx, seed, user, artifactScores, artifactErrors); err != nil {
			return fmt.Errorf("failed to seed documents: %w", err)
		}

		query := `
			SELECT artifact, body FROM user_documents
			WHERE user_id = $1 AND artifact IN ($2, $3)
			ORDER BY artifact
			FOR UPDATE
		`
		rows, err := tx.Query(ctx, query, user, artifactScores, artifactErrors)
		if err != nil {
			return fmt.Errorf("failed to lock documents: %w", err)
		}
		scores, errs, err := scanDocuments(rows)
		if err != nil {
			return err
		}

		h, err := history.Extract(scores, errs, lesson)
		if err != nil {
			return fmt.Errorf("stored history is inconsistent: %w", err)
		}
		h.RecordAttempt(result.Scores, tallies)
		history.Apply(scores, errs, h)

		update := `UPDATE user_documents SET body = $3, updated_at = now() WHERE user_id = $1 AND artifact = $2`
		for artifact, doc := range map[string]any{artifactScores: scores, artifactErrors: errs} {
			body, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, update, user, artifact, body); err != nil {
				return fmt.Errorf("failed to update %s: %w", artifact, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Persistence("could not save attempt", err)
	}
	return nil
}

// LoadLessonHistory implements ScoreRepository. Read failures are logged and
// yield an empty history.
func (r *PostgresScoreRepository) LoadLessonHistory(ctx context.Context, user string, lesson int) (*history.LessonHistory, error) {
	if err := ValidateUser(user); err != nil {
		return nil, err
	}
	if lesson < 0 {
		return nil, errors.Validation("lesson index must not be negative")
	}
	if r.db == nil || r.db.Pool == nil {
		r.logger.Warn().Msg("Database not configured, returning empty history")
		return history.New(lesson), nil
	}

	query := `SELECT artifact, body FROM user_documents WHERE user_id = $1 AND artifact IN ($2, $3)`
	rows, err := r.db.Pool.Query(ctx, query, user, artifactScores, artifactErrors)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", user).Msg("Failed to query score history")
		return history.New(lesson), nil
	}
	scores, errs, err := scanDocuments(rows)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", user).Msg("Failed to read score history")
		return history.New(lesson), nil
	}

	h, err := history.Extract(scores, errs, lesson)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", user).Int("lesson", lesson).Msg("Ignoring inconsistent score history")
		return history.New(lesson), nil
	}
	return h, nil
}

func scanDocuments(rows pgx.Rows) (history.ScoreDocument, history.ErrorDocument, error) {
	defer rows.Close()

	scores := history.ScoreDocument{}
	errs := history.ErrorDocument{}
	for rows.Next() {
		var artifact string
		var body []byte
		if err := rows.Scan(&artifact, &body); err != nil {
			return nil, nil, fmt.Errorf("failed to scan document: %w", err)
		}
		switch artifact {
		case artifactScores:
			if err := json.Unmarshal(body, &scores); err != nil {
				return nil, nil, fmt.Errorf("decode %s: %w", artifact, err)
			}
		case artifactErrors:
			if err := json.Unmarshal(body, &errs); err != nil {
				return nil, nil, fmt.Errorf("decode %s: %w", artifact, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return scores, errs, nil
}
