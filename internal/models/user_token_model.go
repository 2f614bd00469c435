package models

import "time"

// UserToken is a connected Threads account. AccessToken is stored AES-GCM
// encrypted; ThreadsUserID is the remote account id the Graph API paths use.
type UserToken struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	ThreadsUserID  string    `db:"threads_user_id" json:"threads_user_id"`
	Username       string    `db:"username" json:"username"`
	AccessToken    string    `db:"access_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
