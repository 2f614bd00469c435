package transfer

import (
	"bytes"
	"fmt"
	"strconv"
)

// RemoteID holds a Graph API object id. The API emits ids both as JSON
// strings and as raw 64-bit numbers; numbers are captured digit-for-digit
// instead of going through float64.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid id value %s: %w", data, err)
		}
		*id = RemoteID(s)
		return nil
	}
	for _, c := range data {
		if (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("invalid id value %s", data)
		}
	}
	*id = RemoteID(data)
	return nil
}

func (id RemoteID) String() string {
	return string(id)
}

// APIError is the error object the Threads API attaches to any response.
// Error returns the remote message alone so it can be stored verbatim.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FbtraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return e.Message
}

type ContainerCreated struct {
	ID    RemoteID  `json:"id"`
	Error *APIError `json:"error"`
}

// Container processing states as the remote defines them.
const (
	ContainerStatusInProgress = "IN_PROGRESS"
	ContainerStatusFinished   = "FINISHED"
	ContainerStatusError      = "ERROR"
	ContainerStatusExpired    = "EXPIRED"
	ContainerStatusPublished  = "PUBLISHED"
)

type ContainerStatus struct {
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message"`
	ID           RemoteID  `json:"id"`
	Error        *APIError `json:"error"`
}

type ThreadPublished struct {
	ID    RemoteID  `json:"id"`
	Error *APIError `json:"error"`
}

type RefreshedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Error       *APIError `json:"error"`
}
