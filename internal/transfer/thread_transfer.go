package transfer

import "github.com/golang-jwt/jwt/v5"

type ThreadCreation struct {
	Content       string
	FirstComment  string
	ScheduledTime string
	AccountID     string
	Draft         bool
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
