package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/threadline/threadline/internal/transfer"
)

const threadsAPIBase = "https://graph.threads.net/v1.0"

// Credential is a resolved (decrypted) Threads account identity.
type Credential struct {
	ThreadsUserID string
	AccessToken   string
}

// ContainerParams describes one container creation call. Children are joined
// in order for carousel parents.
type ContainerParams struct {
	MediaType      string
	Text           string
	MediaURL       string
	IsCarouselItem bool
	Children       []string
	ReplyToID      string
}

type ThreadsClient interface {
	CreateContainer(ctx context.Context, cred Credential, params ContainerParams) (string, error)
	GetContainerStatus(ctx context.Context, cred Credential, containerID string) (*transfer.ContainerStatus, error)
	PublishContainer(ctx context.Context, cred Credential, containerID string) (string, error)
	RefreshAccessToken(ctx context.Context, accessToken string) (*transfer.RefreshedToken, error)
}

type threadsClient struct {
	baseURL string
	http    *http.Client
}

func NewThreadsClient() ThreadsClient {
	return &threadsClient{
		baseURL: threadsAPIBase,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewThreadsClientWithBaseURL exists for tests pointed at a local server.
func NewThreadsClientWithBaseURL(baseURL string) ThreadsClient {
	return &threadsClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (tc *threadsClient) CreateContainer(ctx context.Context, cred Credential, params ContainerParams) (string, error) {
	data := url.Values{}
	data.Set("media_type", params.MediaType)
	data.Set("access_token", cred.AccessToken)

	if params.Text != "" {
		data.Set("text", params.Text)
	}
	switch params.MediaType {
	case MediaTypeImage:
		data.Set("image_url", params.MediaURL)
	case MediaTypeVideo:
		data.Set("video_url", params.MediaURL)
	}
	if params.IsCarouselItem {
		data.Set("is_carousel_item", "true")
	}
	if len(params.Children) > 0 {
		data.Set("children", strings.Join(params.Children, ","))
	}
	if params.ReplyToID != "" {
		data.Set("reply_to_id", params.ReplyToID)
	}

	endpoint := fmt.Sprintf("%s/%s/threads", tc.baseURL, cred.ThreadsUserID)

	var result transfer.ContainerCreated
	if err := tc.postForm(ctx, endpoint, data, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		slog.Info("container creation rejected", "type", result.Error.Type, "code", result.Error.Code)
		return "", result.Error
	}
	if result.ID == "" {
		return "", fmt.Errorf("no container id returned")
	}

	return result.ID.String(), nil
}

func (tc *threadsClient) GetContainerStatus(ctx context.Context, cred Credential, containerID string) (*transfer.ContainerStatus, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status,error_message&access_token=%s",
		tc.baseURL, containerID, url.QueryEscape(cred.AccessToken))

	var result transfer.ContainerStatus
	if err := tc.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}

	return &result, nil
}

func (tc *threadsClient) PublishContainer(ctx context.Context, cred Credential, containerID string) (string, error) {
	data := url.Values{}
	data.Set("creation_id", containerID)
	data.Set("access_token", cred.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/threads_publish", tc.baseURL, cred.ThreadsUserID)

	var result transfer.ThreadPublished
	if err := tc.postForm(ctx, endpoint, data, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		slog.Info("publish rejected", "type", result.Error.Type, "code", result.Error.Code)
		return "", result.Error
	}
	if result.ID == "" {
		return "", fmt.Errorf("no published id returned")
	}

	return result.ID.String(), nil
}

func (tc *threadsClient) RefreshAccessToken(ctx context.Context, accessToken string) (*transfer.RefreshedToken, error) {
	endpoint := fmt.Sprintf("%s/refresh_access_token?grant_type=th_refresh_token&access_token=%s",
		strings.TrimSuffix(tc.baseURL, "/v1.0"), url.QueryEscape(accessToken))

	var result transfer.RefreshedToken
	if err := tc.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token returned")
	}

	return &result, nil
}

func (tc *threadsClient) postForm(ctx context.Context, endpoint string, data url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return tc.do(req, out)
}

func (tc *threadsClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	return tc.do(req, out)
}

func (tc *threadsClient) do(req *http.Request, out interface{}) error {
	resp, err := tc.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		slog.Info("unparseable response from threads api", "body", string(body))
		return fmt.Errorf("error parsing response: %w", err)
	}

	return nil
}
