package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cfg "github.com/threadline/threadline/configs"
	"github.com/threadline/threadline/internal/models"
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/service"
	"github.com/threadline/threadline/pkg/utils"
)

type TokenRefreshJob struct {
	cfg    cfg.Config
	ut     repository.UserTokenRepository
	client service.ThreadsClient
}

func NewTokenRefreshJob(cfg cfg.Config, ut repository.UserTokenRepository, client service.ThreadsClient) *TokenRefreshJob {
	return &TokenRefreshJob{
		cfg:    cfg,
		ut:     ut,
		client: client,
	}
}

// RefreshTokens rotates long-lived Threads tokens that expire within the next
// 30 minutes (or already have).
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	tokens, err := c.ut.ListByTimeInterval(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, token := range tokens {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(token *models.UserToken) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refreshToken(ctx, token); err != nil {
				slog.Info("unable to refresh threads token", "token_id", token.ID)
			}
		}(token)
	}

	wg.Wait()
}

func (c *TokenRefreshJob) refreshToken(ctx context.Context, token *models.UserToken) error {
	accessToken, err := utils.Decrypt(token.AccessToken, []byte(c.cfg.SecretKey))
	if err != nil {
		return err
	}

	refreshed, err := c.client.RefreshAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}

	encryptedToken, err := utils.Encrypt([]byte(refreshed.AccessToken), []byte(c.cfg.SecretKey))
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(refreshed.ExpiresIn))
	return c.ut.SetToken(ctx, token.ID, encryptedToken, expiresAt)
}
