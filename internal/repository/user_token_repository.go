package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/threadline/threadline/internal/models"
)

type UserTokenRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ut *models.UserToken) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.UserToken, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.UserToken, error)
	ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.UserToken, error)
	SetToken(ctx context.Context, id int64, accessToken string, expiresAt time.Time) error
	Remove(ctx context.Context, id int64) error
}

type userTokenRepository struct {
	db *sql.DB
}

func NewUserTokenRepository(db *sql.DB) UserTokenRepository {
	return &userTokenRepository{db: db}
}

const userTokenColumns = `id, user_id, threads_user_id, username, access_token, token_expires_at, created_at, updated_at`

func (r *userTokenRepository) Create(ctx context.Context, tx *sql.Tx, ut *models.UserToken) (int64, error) {
	query := `
		INSERT INTO user_tokens (user_id, threads_user_id, username, access_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, ut.UserID, ut.ThreadsUserID, ut.Username, ut.AccessToken, ut.TokenExpiresAt).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, ut.UserID, ut.ThreadsUserID, ut.Username, ut.AccessToken, ut.TokenExpiresAt).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *userTokenRepository) GetByID(ctx context.Context, id int64) (*models.UserToken, error) {
	query := `SELECT ` + userTokenColumns + ` FROM user_tokens WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var ut models.UserToken
	err := row.Scan(&ut.ID, &ut.UserID, &ut.ThreadsUserID, &ut.Username, &ut.AccessToken,
		&ut.TokenExpiresAt, &ut.CreatedAt, &ut.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &ut, nil
}

// ListByUserID returns the user's connected accounts ordered by creation so
// first-match credential fallback is deterministic.
func (r *userTokenRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.UserToken, error) {
	query := `SELECT ` + userTokenColumns + ` FROM user_tokens WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.UserToken
	for rows.Next() {
		var ut models.UserToken
		err := rows.Scan(&ut.ID, &ut.UserID, &ut.ThreadsUserID, &ut.Username, &ut.AccessToken,
			&ut.TokenExpiresAt, &ut.CreatedAt, &ut.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		tokens = append(tokens, &ut)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return tokens, nil
}

func (r *userTokenRepository) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.UserToken, error) {
	query := `SELECT ` + userTokenColumns + `
		FROM user_tokens
		WHERE (token_expires_at BETWEEN $1 AND $2)
		OR (token_expires_at < $1)`

	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.UserToken
	for rows.Next() {
		var ut models.UserToken
		err := rows.Scan(&ut.ID, &ut.UserID, &ut.ThreadsUserID, &ut.Username, &ut.AccessToken,
			&ut.TokenExpiresAt, &ut.CreatedAt, &ut.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		tokens = append(tokens, &ut)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return tokens, nil
}

func (r *userTokenRepository) SetToken(ctx context.Context, id int64, accessToken string, expiresAt time.Time) error {
	query := `
		UPDATE user_tokens
		SET access_token = $1, token_expires_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, accessToken, expiresAt, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; token id may not exist")
		return errors.New("no rows affected; token id may not exist")
	}

	return nil
}

func (r *userTokenRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM user_tokens WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
