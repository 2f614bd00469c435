package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/threadline/threadline/configs"
	"github.com/threadline/threadline/internal/models"
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/transfer"
	"github.com/threadline/threadline/pkg/utils"
)

var testSecretKey = "0123456789abcdef0123456789abcdef"

// scriptedClient records every remote call in order and delegates behavior to
// small per-test functions.
type scriptedClient struct {
	mu        sync.Mutex
	calls     []string
	lastCred  Credential
	createFn  func(params ContainerParams) (string, error)
	statusFn  func(containerID string) (*transfer.ContainerStatus, error)
	publishFn func(containerID string) (string, error)
}

func (c *scriptedClient) CreateContainer(ctx context.Context, cred Credential, params ContainerParams) (string, error) {
	c.mu.Lock()
	c.lastCred = cred
	call := fmt.Sprintf("create:%s", params.MediaType)
	if params.MediaURL != "" {
		call += ":" + params.MediaURL
	}
	if len(params.Children) > 0 {
		call += ":children=" + strings.Join(params.Children, ",")
	}
	if params.ReplyToID != "" {
		call += ":reply_to=" + params.ReplyToID
	}
	c.calls = append(c.calls, call)
	c.mu.Unlock()

	if c.createFn == nil {
		return "container", nil
	}
	return c.createFn(params)
}

func (c *scriptedClient) GetContainerStatus(ctx context.Context, cred Credential, containerID string) (*transfer.ContainerStatus, error) {
	c.mu.Lock()
	c.calls = append(c.calls, "status:"+containerID)
	c.mu.Unlock()

	if c.statusFn == nil {
		return &transfer.ContainerStatus{Status: transfer.ContainerStatusFinished}, nil
	}
	return c.statusFn(containerID)
}

func (c *scriptedClient) PublishContainer(ctx context.Context, cred Credential, containerID string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, "publish:"+containerID)
	c.mu.Unlock()

	if c.publishFn == nil {
		return "published-1", nil
	}
	return c.publishFn(containerID)
}

func (c *scriptedClient) RefreshAccessToken(ctx context.Context, accessToken string) (*transfer.RefreshedToken, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *scriptedClient) callIndex(t *testing.T, call string) int {
	t.Helper()
	for i, got := range c.calls {
		if got == call {
			return i
		}
	}
	t.Fatalf("call %q not found in %v", call, c.calls)
	return -1
}

func (c *scriptedClient) countPrefix(prefix string) int {
	n := 0
	for _, got := range c.calls {
		if strings.HasPrefix(got, prefix) {
			n++
		}
	}
	return n
}

type fakeThreadRepo struct {
	repository.ThreadRepository
	mu        sync.Mutex
	published map[string]time.Time
	failed    map[string]string
	removed   []string
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{
		published: map[string]time.Time{},
		failed:    map[string]string{},
	}
}

func (r *fakeThreadRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[id] = publishedAt
	return nil
}

func (r *fakeThreadRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = reason
	return nil
}

func (r *fakeThreadRepo) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

type fakeTokenRepo struct {
	repository.UserTokenRepository
	tokens []*models.UserToken
}

func (r *fakeTokenRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.UserToken, error) {
	var out []*models.UserToken
	for _, token := range r.tokens {
		if token.UserID == userID {
			out = append(out, token)
		}
	}
	return out, nil
}

type fakeS3 struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func encryptedToken(t *testing.T, token string) string {
	t.Helper()
	enc, err := utils.Encrypt([]byte(token), []byte(testSecretKey))
	require.NoError(t, err)
	return enc
}

func testToken(t *testing.T, id int64, threadsUserID string) *models.UserToken {
	return &models.UserToken{
		ID:            id,
		UserID:        1,
		ThreadsUserID: threadsUserID,
		AccessToken:   encryptedToken(t, "tok-"+threadsUserID),
		CreatedAt:     time.Unix(id, 0),
	}
}

type publisherFixture struct {
	publisher *publisherService
	client    *scriptedClient
	threads   *fakeThreadRepo
	tokens    *fakeTokenRepo
	s3        *fakeS3
	sleeps    int
}

func newPublisherFixture(t *testing.T, mutate func(c *cfg.Config)) *publisherFixture {
	t.Helper()

	conf := cfg.Config{
		SecretKey: testSecretKey,
		R2: cfg.R2{
			BucketName:    "media",
			PublicBaseURL: "https://media.example.com",
		},
		Worker: cfg.Worker{
			PollInterval:    time.Second,
			PollMaxAttempts: 10,
			RetentionPolicy: cfg.RetentionPolicyRetain,
		},
	}
	if mutate != nil {
		mutate(&conf)
	}

	f := &publisherFixture{
		client:  &scriptedClient{},
		threads: newFakeThreadRepo(),
		tokens:  &fakeTokenRepo{tokens: []*models.UserToken{testToken(t, 1, "900100")}},
		s3:      &fakeS3{},
	}
	r2 := &R2Service{config: conf, client: f.s3}

	f.publisher = NewPublisherService(conf, f.threads, f.tokens, f.client, r2).(*publisherService)
	f.publisher.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		return nil
	}

	return f
}

func testThread(media ...string) *models.Thread {
	return &models.Thread{
		ID:            "thread-1",
		UserID:        1,
		Content:       "hello",
		MediaURLs:     media,
		Status:        models.ThreadStatusPublishing,
		ScheduledTime: time.Now().Add(-time.Minute),
	}
}

func TestPublishTextThread(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.client.createFn = func(params ContainerParams) (string, error) {
		require.Equal(t, MediaTypeText, params.MediaType)
		require.Equal(t, "hello", params.Text)
		return "c1", nil
	}

	err := f.publisher.PublishThread(context.Background(), testThread())
	require.NoError(t, err)

	assert.Equal(t, []string{"create:TEXT", "publish:c1"}, f.client.calls)
	assert.Contains(t, f.threads.published, "thread-1")
	assert.Empty(t, f.threads.failed)
}

func TestPublishSingleImageWaitsForProcessing(t *testing.T) {
	f := newPublisherFixture(t, nil)
	polls := 0
	f.client.createFn = func(params ContainerParams) (string, error) {
		require.Equal(t, MediaTypeImage, params.MediaType)
		require.Equal(t, "https://media.example.com/a.jpg", params.MediaURL)
		return "c1", nil
	}
	f.client.statusFn = func(containerID string) (*transfer.ContainerStatus, error) {
		polls++
		if polls < 3 {
			return &transfer.ContainerStatus{Status: transfer.ContainerStatusInProgress}, nil
		}
		return &transfer.ContainerStatus{Status: transfer.ContainerStatusFinished}, nil
	}

	err := f.publisher.PublishThread(context.Background(), testThread("https://media.example.com/a.jpg"))
	require.NoError(t, err)

	assert.Equal(t, 3, polls)
	assert.Contains(t, f.threads.published, "thread-1")
	// publish only happens after the container is FINISHED
	assert.Greater(t, f.client.callIndex(t, "publish:c1"), f.client.callIndex(t, "status:c1"))
}

func TestPublishCarouselVideoGating(t *testing.T) {
	f := newPublisherFixture(t, nil)
	containers := 0
	f.client.createFn = func(params ContainerParams) (string, error) {
		containers++
		id := fmt.Sprintf("c%d", containers)
		if params.MediaType == MediaTypeCarousel {
			// both children must exist and be referenced in input order
			require.Equal(t, []string{"c1", "c2"}, params.Children)
			return "parent", nil
		}
		require.True(t, params.IsCarouselItem)
		return id, nil
	}

	err := f.publisher.PublishThread(context.Background(), testThread(
		"https://media.example.com/a.jpg",
		"https://media.example.com/b.mp4",
	))
	require.NoError(t, err)

	imageIdx := f.client.callIndex(t, "create:IMAGE:https://media.example.com/a.jpg")
	videoIdx := f.client.callIndex(t, "create:VIDEO:https://media.example.com/b.mp4")
	videoPollIdx := f.client.callIndex(t, "status:c2")
	parentIdx := f.client.callIndex(t, "create:CAROUSEL:children=c1,c2")

	// children in input order; video child polled to FINISHED before the
	// parent container is created; image child never polled individually
	assert.Less(t, imageIdx, videoIdx)
	assert.Less(t, videoPollIdx, parentIdx)
	assert.Zero(t, f.client.countPrefix("status:c1"))
	assert.Equal(t, 1, f.client.countPrefix("status:parent"))
	assert.Less(t, parentIdx, f.client.callIndex(t, "publish:parent"))
	assert.Contains(t, f.threads.published, "thread-1")
}

func TestRemoteErrorFailsThreadWithVerbatimMessage(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.client.createFn = func(params ContainerParams) (string, error) {
		return "", &transfer.APIError{Message: "Invalid token", Type: "OAuthException", Code: 190}
	}

	err := f.publisher.PublishThread(context.Background(), testThread("https://media.example.com/a.jpg"))
	require.NoError(t, err, "orchestrator absorbs fatal publish errors")

	assert.Equal(t, "Invalid token", f.threads.failed["thread-1"])
	assert.Empty(t, f.threads.published)
	assert.Zero(t, f.client.countPrefix("publish:"), "no publish attempt after a fatal error")
	assert.Equal(t, []string{"a.jpg"}, f.s3.deleted, "failed threads still get media cleanup")
}

func TestMediaProcessingErrorFailsThread(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.client.statusFn = func(containerID string) (*transfer.ContainerStatus, error) {
		return &transfer.ContainerStatus{Status: transfer.ContainerStatusError, ErrorMessage: "bad video"}, nil
	}

	err := f.publisher.PublishThread(context.Background(), testThread("https://media.example.com/b.mp4"))
	require.NoError(t, err)

	assert.Equal(t, "media processing failed: bad video", f.threads.failed["thread-1"])
	assert.Zero(t, f.client.countPrefix("publish:"))
}

func TestPollTimeoutAfterExactlyMaxAttempts(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.client.statusFn = func(containerID string) (*transfer.ContainerStatus, error) {
		return &transfer.ContainerStatus{Status: transfer.ContainerStatusInProgress}, nil
	}

	err := f.publisher.PublishThread(context.Background(), testThread("https://media.example.com/a.jpg"))
	require.NoError(t, err)

	assert.Equal(t, 10, f.client.countPrefix("status:"), "polling must stop at the attempt bound")
	assert.Equal(t, ErrProcessingTimeout.Error(), f.threads.failed["thread-1"])
	assert.Zero(t, f.client.countPrefix("publish:"))
}

func TestFirstCommentPublishedAsReply(t *testing.T) {
	f := newPublisherFixture(t, nil)
	containers := 0
	f.client.createFn = func(params ContainerParams) (string, error) {
		containers++
		if params.ReplyToID != "" {
			require.Equal(t, "published-1", params.ReplyToID)
			require.Equal(t, MediaTypeText, params.MediaType)
			require.Equal(t, "also this", params.Text)
			return "reply-c", nil
		}
		return "c1", nil
	}

	thread := testThread()
	thread.FirstComment = sql.NullString{String: "also this", Valid: true}

	err := f.publisher.PublishThread(context.Background(), thread)
	require.NoError(t, err)

	assert.Equal(t, 1, f.client.countPrefix("create:TEXT:reply_to=published-1"))
	assert.Equal(t, 1, f.client.countPrefix("publish:reply-c"))
	assert.Contains(t, f.threads.published, "thread-1")
}

func TestFirstCommentFailureIsNonFatal(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.client.createFn = func(params ContainerParams) (string, error) {
		if params.ReplyToID != "" {
			return "", &transfer.APIError{Message: "Reply limit reached"}
		}
		return "c1", nil
	}

	thread := testThread()
	thread.FirstComment = sql.NullString{String: "also this", Valid: true}

	err := f.publisher.PublishThread(context.Background(), thread)
	require.NoError(t, err)

	assert.Contains(t, f.threads.published, "thread-1", "main thread stays published")
	assert.Empty(t, f.threads.failed)
}

func TestCredentialNotFound(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.tokens.tokens = nil

	err := f.publisher.PublishThread(context.Background(), testThread())
	require.NoError(t, err)

	assert.Equal(t, "credential not found", f.threads.failed["thread-1"])
	assert.Empty(t, f.client.calls, "no remote calls without a credential")
}

func TestTargetAccountCredentialSelected(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.tokens.tokens = []*models.UserToken{
		testToken(t, 1, "900100"),
		testToken(t, 2, "900200"),
	}

	thread := testThread()
	thread.AccountID = sql.NullInt64{Int64: 2, Valid: true}

	err := f.publisher.PublishThread(context.Background(), thread)
	require.NoError(t, err)

	assert.Equal(t, "900200", f.client.lastCred.ThreadsUserID)
	assert.Equal(t, "tok-900200", f.client.lastCred.AccessToken)
}

func TestAmbiguousCredentialUsesFirstMatch(t *testing.T) {
	f := newPublisherFixture(t, nil)
	f.tokens.tokens = []*models.UserToken{
		testToken(t, 1, "900100"),
		testToken(t, 2, "900200"),
	}

	err := f.publisher.PublishThread(context.Background(), testThread())
	require.NoError(t, err)

	assert.Equal(t, "900100", f.client.lastCred.ThreadsUserID)
	assert.Contains(t, f.threads.published, "thread-1")
}

func TestDeletePolicyRemovesRow(t *testing.T) {
	f := newPublisherFixture(t, func(c *cfg.Config) {
		c.Worker.RetentionPolicy = cfg.RetentionPolicyDelete
	})

	err := f.publisher.PublishThread(context.Background(), testThread("https://media.example.com/a.jpg"))
	require.NoError(t, err)

	assert.Equal(t, []string{"thread-1"}, f.threads.removed)
	assert.Empty(t, f.threads.published)
	assert.Equal(t, []string{"a.jpg"}, f.s3.deleted)
}

func TestCleanupSkipsForeignURLs(t *testing.T) {
	f := newPublisherFixture(t, nil)

	err := f.publisher.PublishThread(context.Background(), testThread(
		"https://media.example.com/a.jpg",
		"https://cdn.elsewhere.net/b.jpg",
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg"}, f.s3.deleted, "foreign URLs must never be deleted")
}
