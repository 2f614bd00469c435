package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Thread struct {
	ID            string         `db:"id" json:"id"`
	UserID        int64          `db:"user_id" json:"user_id"`
	AccountID     sql.NullInt64  `db:"account_id" json:"account_id"`
	Content       string         `db:"content" json:"content"`
	FirstComment  sql.NullString `db:"first_comment" json:"first_comment"`
	MediaURLs     pq.StringArray `db:"media_urls" json:"media_urls"`
	Status        string         `db:"status" json:"status"`
	ScheduledTime time.Time      `db:"scheduled_time" json:"scheduled_time"`
	ErrorMessage  sql.NullString `db:"error_message" json:"error_message"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	ThreadStatusDraft     = "draft"
	ThreadStatusScheduled = "scheduled"
	// ThreadStatusPublishing marks a thread claimed by a worker run.
	ThreadStatusPublishing = "publishing"
	ThreadStatusPublished  = "published"
	ThreadStatusFailed     = "failed"
)
