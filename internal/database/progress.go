package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProgressRepository stores chapter progress per user.
type ProgressRepository struct {
	db DBTX
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = `id, user_id, chapter_id, status, progress_percentage, time_spent_seconds,
	quiz_score, quiz_passed, exercise_passed, started_at, completed_at, created_at, updated_at`

func scanProgress(row interface{ Scan(...any) error }) (*ChapterProgress, error) {
	p := &ChapterProgress{}
	err := row.Scan(&p.ID, &p.UserID, &p.ChapterID, &p.Status, &p.ProgressPercentage, &p.TimeSpentSeconds,
		&p.QuizScore, &p.QuizPassed, &p.ExercisePassed, &p.StartedAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Upsert writes the progress row for (user, chapter). started_at is set
// once; completed_at is set when the status first becomes completed.
func (r *ProgressRepository) Upsert(ctx context.Context, p *ChapterProgress) (*ChapterProgress, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `
		INSERT INTO chapter_progress (id, user_id, chapter_id, status, progress_percentage, time_spent_seconds,
			quiz_score, quiz_passed, exercise_passed, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			CASE WHEN $4 <> 'not_started' THEN $10::timestamptz END,
			CASE WHEN $4 = 'completed' THEN $10::timestamptz END)
		ON CONFLICT (user_id, chapter_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress_percentage = EXCLUDED.progress_percentage,
			time_spent_seconds = EXCLUDED.time_spent_seconds,
			quiz_score = COALESCE(EXCLUDED.quiz_score, chapter_progress.quiz_score),
			quiz_passed = EXCLUDED.quiz_passed,
			exercise_passed = EXCLUDED.exercise_passed,
			started_at = COALESCE(chapter_progress.started_at, EXCLUDED.started_at),
			completed_at = CASE
				WHEN EXCLUDED.status = 'completed' THEN COALESCE(chapter_progress.completed_at, EXCLUDED.completed_at)
				ELSE NULL END,
			updated_at = NOW()
		RETURNING `+progressColumns,
		p.ID, p.UserID, p.ChapterID, p.Status, p.ProgressPercentage, p.TimeSpentSeconds,
		p.QuizScore, p.QuizPassed, p.ExercisePassed, now)
	out, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("upsert progress: %w", err)
	}
	return out, nil
}

// ListByUser returns every progress row of a user, most recently updated first.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]*ChapterProgress, error) {
	rows, err := r.db.Query(ctx, `SELECT `+progressColumns+`
		FROM chapter_progress WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []*ChapterProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
