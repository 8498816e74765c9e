package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrTimeout      = errors.New("visitor_state_timeout")
	ErrUnavailable  = errors.New("visitor_state_unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("visitor-state error [%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

func decodeError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error.Code != "" {
		return &StatusError{StatusCode: resp.StatusCode, Code: e.Error.Code, Message: e.Error.Message}
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Code:       "downstream_error",
		Message:    fmt.Sprintf("unexpected status: %d", resp.StatusCode),
	}
}

// APIClient talks to the list endpoints for one list kind and one set of
// identity carriers. It satisfies Dispatcher.
type APIClient struct {
	BaseURL    string
	Kind       string
	DeviceID   string
	Token      string // bearer token, empty on the guest path
	HTTPClient *http.Client
}

func NewAPIClient(baseURL, kind, deviceID, token string) *APIClient {
	return &APIClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Kind:     kind,
		DeviceID: deviceID,
		Token:    token,
		HTTPClient: &http.Client{
			Timeout: 2000 * time.Millisecond,
		},
	}
}

func (c *APIClient) FetchList(ctx context.Context) ([]string, error) {
	var out struct {
		Items []string `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, c.listURL(), nil, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []string{}
	}
	return out.Items, nil
}

func (c *APIClient) Toggle(ctx context.Context, itemID string) (bool, error) {
	var out struct {
		Active bool `json:"active"`
	}
	body := map[string]string{"action": "TOGGLE", "item_id": itemID}
	if err := c.do(ctx, http.MethodPost, c.listURL(), body, &out); err != nil {
		return false, err
	}
	return out.Active, nil
}

func (c *APIClient) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.listURL(), map[string]string{"action": "CLEAR"}, nil)
}

func (c *APIClient) listURL() string {
	return fmt.Sprintf("%s/api/v1/lists/%s", c.BaseURL, url.PathEscape(c.Kind))
}

func (c *APIClient) do(ctx context.Context, method, u string, body any, dst any) error {
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-Id", c.DeviceID)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, decodeError(resp))
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrUnavailable, decodeError(resp))
	case resp.StatusCode != http.StatusOK:
		return decodeError(resp)
	}

	if dst == nil {
		return nil
	}
	wrapper := dataEnvelope[any]{Data: dst}
	return json.NewDecoder(resp.Body).Decode(&wrapper)
}
