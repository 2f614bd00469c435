package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/threadline/threadline/internal/models"
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/transfer"
)

type ThreadService interface {
	CreateThread(ctx context.Context, userID int64, tc *transfer.ThreadCreation, files []*multipart.FileHeader) (string, error)
	List(ctx context.Context, userID int64) ([]*models.Thread, error)
	ThreadInfo(ctx context.Context, threadID string, userID int64) (*models.Thread, error)
	Remove(ctx context.Context, userID int64, threadID string) error
}

type threadService struct {
	tr repository.ThreadRepository
	ut repository.UserTokenRepository
	r2 R2Service
}

func NewThreadService(tr repository.ThreadRepository, ut repository.UserTokenRepository, r2 R2Service) ThreadService {
	return &threadService{
		tr: tr,
		ut: ut,
		r2: r2,
	}
}

func (s *threadService) CreateThread(ctx context.Context, userID int64, tc *transfer.ThreadCreation, files []*multipart.FileHeader) (string, error) {
	if tc == nil {
		err := errors.New("thread creation data is nil")
		slog.Error(err.Error())
		return "", err
	}
	if tc.Content == "" {
		err := errors.New("content cannot be empty")
		slog.Info(err.Error())
		return "", err
	}

	scheduledTime, err := time.Parse("2006-01-02T15:04", tc.ScheduledTime)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Error(err.Error())
		return "", err
	}

	var accountID sql.NullInt64
	if tc.AccountID != "" {
		id, err := strconv.ParseInt(tc.AccountID, 10, 64)
		if err != nil {
			err = fmt.Errorf("invalid account id: %w", err)
			slog.Error(err.Error())
			return "", err
		}

		token, err := s.ut.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		if token == nil || token.UserID != userID {
			err = errors.New("account does not belong to user")
			slog.Info(err.Error())
			return "", err
		}
		accountID = sql.NullInt64{Int64: id, Valid: true}
	}

	mediaURLs, err := s.uploadFiles(ctx, files)
	if err != nil {
		return "", err
	}

	status := models.ThreadStatusScheduled
	if tc.Draft {
		status = models.ThreadStatusDraft
	}

	thread := models.Thread{
		ID:            uuid.NewString(),
		UserID:        userID,
		AccountID:     accountID,
		Content:       tc.Content,
		FirstComment:  sql.NullString{String: tc.FirstComment, Valid: tc.FirstComment != ""},
		MediaURLs:     mediaURLs,
		Status:        status,
		ScheduledTime: scheduledTime,
	}

	if err := s.tr.Create(ctx, nil, &thread); err != nil {
		return "", fmt.Errorf("error creating thread: %w", err)
	}

	return thread.ID, nil
}

func (s *threadService) uploadFiles(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {}, "gif": {}, "webp": {},
	}

	mediaURLs := make([]string, 0, len(files))
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		defer fileContent.Close()

		fileBytes, err := io.ReadAll(fileContent)
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return nil, fmt.Errorf("unsupported file type: %w", err)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return nil, fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		mediaURL, err := s.saveFile(ctx, fileType, fileBytes)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}

		mediaURLs = append(mediaURLs, mediaURL)
	}

	return mediaURLs, nil
}

// saveFile uploads to R2 under a random key. The key keeps the file
// extension: the publish worker classifies media by URL extension.
func (s *threadService) saveFile(ctx context.Context, fileType types.Type, file []byte) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	key := fmt.Sprintf("%s.%s", id, fileType.Extension)
	if err := s.r2.UploadToR2(ctx, key, file, fileType.MIME.Value); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return fmt.Sprintf("%s/%s", s.r2.PublicBaseURL(), key), nil
}

func (s *threadService) List(ctx context.Context, userID int64) ([]*models.Thread, error) {
	threads, err := s.tr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing threads")
	}
	return threads, nil
}

func (s *threadService) ThreadInfo(ctx context.Context, threadID string, userID int64) (*models.Thread, error) {
	if userID == 0 || threadID == "" {
		err := errors.New("thread id or user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.tr.CheckByUserID(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("thread doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	thread, err := s.tr.GetByID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("error getting thread info")
	}

	return thread, nil
}

func (s *threadService) Remove(ctx context.Context, userID int64, threadID string) error {
	if userID == 0 || threadID == "" {
		err := errors.New("thread id or user is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.tr.CheckByUserID(ctx, threadID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("thread doesn't exist")
		slog.Info(err.Error())
		return err
	}

	thread, err := s.tr.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if thread != nil {
		s.r2.DeleteMediaURLs(ctx, thread.MediaURLs)
	}

	if err := s.tr.Remove(ctx, threadID); err != nil {
		return fmt.Errorf("error removing thread")
	}

	return nil
}
