package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfg "github.com/threadline/threadline/configs"
	"github.com/threadline/threadline/internal/models"
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/transfer"
	"github.com/threadline/threadline/pkg/utils"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrProcessingTimeout  = errors.New("media processing timed out")
)

// PublisherService drives one claimed thread through the container protocol:
// create containers, wait for remote media processing, publish, then post the
// optional first comment. It owns terminal-state persistence and media
// cleanup; no error escapes a PublishThread run into the scheduler.
type PublisherService interface {
	PublishThread(ctx context.Context, thread *models.Thread) error
}

type publisherService struct {
	cfg    cfg.Config
	tr     repository.ThreadRepository
	ut     repository.UserTokenRepository
	client ThreadsClient
	r2     *R2Service
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPublisherService(
	cfg cfg.Config,
	tr repository.ThreadRepository,
	ut repository.UserTokenRepository,
	client ThreadsClient,
	r2 *R2Service) PublisherService {
	return &publisherService{
		cfg:    cfg,
		tr:     tr,
		ut:     ut,
		client: client,
		r2:     r2,
		sleep:  sleepContext,
	}
}

func (p *publisherService) PublishThread(ctx context.Context, thread *models.Thread) error {
	publishedID, err := p.publish(ctx, thread)
	if err != nil {
		slog.Error("failed to publish thread", "thread_id", thread.ID, "error", err.Error())
		return p.finalizeFailure(ctx, thread, err)
	}

	slog.Info("thread published", "thread_id", thread.ID, "published_id", publishedID)
	return p.finalizeSuccess(ctx, thread)
}

func (p *publisherService) publish(ctx context.Context, thread *models.Thread) (string, error) {
	cred, err := p.resolveCredential(ctx, thread)
	if err != nil {
		return "", err
	}

	shape, items := ResolveMedia(thread.MediaURLs)

	var creationID string
	switch shape {
	case ShapeText:
		creationID, err = p.client.CreateContainer(ctx, cred, ContainerParams{
			MediaType: MediaTypeText,
			Text:      thread.Content,
		})
		if err != nil {
			return "", err
		}

	case ShapeSingle:
		creationID, err = p.client.CreateContainer(ctx, cred, ContainerParams{
			MediaType: items[0].Kind,
			Text:      thread.Content,
			MediaURL:  items[0].URL,
		})
		if err != nil {
			return "", err
		}
		if err := p.waitForContainer(ctx, cred, creationID); err != nil {
			return "", err
		}

	case ShapeCarousel:
		creationID, err = p.publishCarousel(ctx, cred, thread, items)
		if err != nil {
			return "", err
		}
	}

	publishedID, err := p.client.PublishContainer(ctx, cred, creationID)
	if err != nil {
		return "", err
	}

	// First comment failures never roll back an already-published thread.
	if comment := strings.TrimSpace(thread.FirstComment.String); thread.FirstComment.Valid && comment != "" {
		if err := p.postFirstComment(ctx, cred, publishedID, comment); err != nil {
			slog.Error("failed to publish first comment (non-fatal)",
				"thread_id", thread.ID, "error", err.Error())
		}
	}

	return publishedID, nil
}

// publishCarousel creates one child container per media item in input order.
// Video children must reach FINISHED before the parent references them; image
// children are only verified through the parent container's status.
func (p *publisherService) publishCarousel(ctx context.Context, cred Credential, thread *models.Thread, items []MediaItem) (string, error) {
	children := make([]string, 0, len(items))
	for _, item := range items {
		childID, err := p.client.CreateContainer(ctx, cred, ContainerParams{
			MediaType:      item.Kind,
			MediaURL:       item.URL,
			IsCarouselItem: true,
		})
		if err != nil {
			return "", err
		}

		if item.Kind == MediaTypeVideo {
			if err := p.waitForContainer(ctx, cred, childID); err != nil {
				return "", err
			}
		}

		children = append(children, childID)
	}

	parentID, err := p.client.CreateContainer(ctx, cred, ContainerParams{
		MediaType: MediaTypeCarousel,
		Text:      thread.Content,
		Children:  children,
	})
	if err != nil {
		return "", err
	}

	if err := p.waitForContainer(ctx, cred, parentID); err != nil {
		return "", err
	}

	return parentID, nil
}

func (p *publisherService) postFirstComment(ctx context.Context, cred Credential, publishedID, comment string) error {
	creationID, err := p.client.CreateContainer(ctx, cred, ContainerParams{
		MediaType: MediaTypeText,
		Text:      comment,
		ReplyToID: publishedID,
	})
	if err != nil {
		return err
	}

	if err := p.waitForContainer(ctx, cred, creationID); err != nil {
		return err
	}

	_, err = p.client.PublishContainer(ctx, cred, creationID)
	return err
}

func (p *publisherService) resolveCredential(ctx context.Context, thread *models.Thread) (Credential, error) {
	tokens, err := p.ut.ListByUserID(ctx, thread.UserID)
	if err != nil {
		return Credential{}, err
	}

	var chosen *models.UserToken
	if thread.AccountID.Valid {
		for _, t := range tokens {
			if t.ID == thread.AccountID.Int64 {
				chosen = t
				break
			}
		}
	} else if len(tokens) > 0 {
		// Legacy threads carry no account id; fall back to the user's first
		// connected account (ordered by created_at, so the pick is stable).
		chosen = tokens[0]
		if len(tokens) > 1 {
			slog.Warn("thread has no account id and user has multiple accounts; using first",
				"thread_id", thread.ID, "token_id", chosen.ID)
		}
	}

	if chosen == nil {
		return Credential{}, ErrCredentialNotFound
	}

	accessToken, err := utils.Decrypt(chosen.AccessToken, []byte(p.cfg.SecretKey))
	if err != nil {
		return Credential{}, fmt.Errorf("error decrypting access token: %w", err)
	}

	return Credential{ThreadsUserID: chosen.ThreadsUserID, AccessToken: accessToken}, nil
}

// waitForContainer polls container status until FINISHED, a remote failure,
// or the attempt budget runs out.
func (p *publisherService) waitForContainer(ctx context.Context, cred Credential, containerID string) error {
	for attempt := 0; attempt < p.cfg.Worker.PollMaxAttempts; attempt++ {
		status, err := p.client.GetContainerStatus(ctx, cred, containerID)
		if err != nil {
			return err
		}

		switch status.Status {
		case transfer.ContainerStatusFinished, transfer.ContainerStatusPublished:
			return nil
		case transfer.ContainerStatusError, transfer.ContainerStatusExpired:
			msg := status.ErrorMessage
			if msg == "" {
				msg = status.Status
			}
			return fmt.Errorf("media processing failed: %s", msg)
		}

		if err := p.sleep(ctx, p.cfg.Worker.PollInterval); err != nil {
			return err
		}
	}

	return ErrProcessingTimeout
}

func (p *publisherService) finalizeSuccess(ctx context.Context, thread *models.Thread) error {
	var err error
	if p.cfg.Worker.RetentionPolicy == cfg.RetentionPolicyDelete {
		err = p.tr.Remove(ctx, thread.ID)
	} else {
		err = p.tr.MarkPublished(ctx, thread.ID, time.Now().UTC())
	}
	if err != nil {
		slog.Error("failed to persist published state", "thread_id", thread.ID, "error", err.Error())
		return err
	}

	p.r2.DeleteMediaURLs(ctx, thread.MediaURLs)
	return nil
}

func (p *publisherService) finalizeFailure(ctx context.Context, thread *models.Thread, cause error) error {
	var err error
	if p.cfg.Worker.RetentionPolicy == cfg.RetentionPolicyDelete {
		err = p.tr.Remove(ctx, thread.ID)
	} else {
		err = p.tr.MarkFailed(ctx, thread.ID, cause.Error())
	}
	if err != nil {
		slog.Error("failed to persist failed state", "thread_id", thread.ID, "error", err.Error())
		return err
	}

	p.r2.DeleteMediaURLs(ctx, thread.MediaURLs)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
