package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/threadline/threadline/internal/models"
)

type ThreadRepository interface {
	Create(ctx context.Context, tx *sql.Tx, thread *models.Thread) error
	GetByID(ctx context.Context, id string) (*models.Thread, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Thread, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Thread, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.Thread, error)
	CheckByUserID(ctx context.Context, id string, userID int64) (bool, error)
	Remove(ctx context.Context, id string) error
}

type threadRepository struct {
	db *sql.DB
}

func NewThreadRepository(db *sql.DB) ThreadRepository {
	return &threadRepository{db: db}
}

const threadColumns = `id, user_id, account_id, content, first_comment, media_urls, status, scheduled_time, error_message, created_at, updated_at`

func scanThread(row interface{ Scan(...interface{}) error }) (*models.Thread, error) {
	var t models.Thread
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Content, &t.FirstComment,
		&t.MediaURLs, &t.Status, &t.ScheduledTime, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *threadRepository) Create(ctx context.Context, tx *sql.Tx, thread *models.Thread) error {
	query := `
		INSERT INTO threads (id, user_id, account_id, content, first_comment, media_urls, status, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, thread.ID, thread.UserID, thread.AccountID,
			thread.Content, thread.FirstComment, pq.Array(thread.MediaURLs), thread.Status, thread.ScheduledTime)
	} else {
		_, err = r.db.ExecContext(ctx, query, thread.ID, thread.UserID, thread.AccountID,
			thread.Content, thread.FirstComment, pq.Array(thread.MediaURLs), thread.Status, thread.ScheduledTime)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *threadRepository) GetByID(ctx context.Context, id string) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`

	thread, err := scanThread(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return thread, nil
}

func (r *threadRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE user_id = $1 ORDER BY scheduled_time DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectThreads(rows)
}

func (r *threadRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE status = $1 AND scheduled_time <= $2 ORDER BY scheduled_time`

	rows, err := r.db.QueryContext(ctx, query, models.ThreadStatusScheduled, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectThreads(rows)
}

// Claim is the locking mechanism: a single conditional update that only one
// concurrent worker can win. A false return means another worker got there
// first (or the status changed) and the caller should skip the thread.
func (r *threadRepository) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE threads
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, models.ThreadStatusPublishing, time.Now(), id, models.ThreadStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *threadRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	query := `
		UPDATE threads
		SET status = $1, scheduled_time = $2, error_message = NULL, updated_at = $3
		WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query, models.ThreadStatusPublished, publishedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE threads
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query, models.ThreadStatusFailed, reason, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadRepository) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE status = ANY($1) AND updated_at < $2`

	statuses := pq.StringArray{models.ThreadStatusPublished, models.ThreadStatusFailed}
	rows, err := r.db.QueryContext(ctx, query, statuses, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectThreads(rows)
}

func (r *threadRepository) CheckByUserID(ctx context.Context, id string, userID int64) (bool, error) {
	query := `SELECT 1 FROM threads WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *threadRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM threads WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func collectThreads(rows *sql.Rows) ([]*models.Thread, error) {
	var threads []*models.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return threads, nil
}
