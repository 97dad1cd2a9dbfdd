package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-modpanel/internal/models"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrUnauthorized      = errors.New("Authentication failed")
	ErrRequestFailed     = errors.New("API request failed")
	ErrStatusUnavailable = errors.New("backend did not return a status")
)

const DefaultBaseURL = "http://localhost:5000"

// RequestError is returned for any non-2xx response.
type RequestError struct {
	StatusCode int
	Status     string // status text, e.g. "Bad Request"
	Message    string // "error" field of the JSON body, if any
}

func (e *RequestError) Error() string {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRequestFailed.Error(), e.Status)
}

// Is lets callers match ErrUnauthorized for 401 and ErrRequestFailed for the rest.
func (e *RequestError) Is(target error) bool {
	if e.StatusCode == http.StatusUnauthorized {
		return target == ErrUnauthorized
	}
	return target == ErrRequestFailed
}

// CredentialStore holds the token presented on every request.
type CredentialStore interface {
	Token() string
	SetToken(token string) error
	Clear() error
}

// Client talks to the job backend's REST API.
type Client struct {
	BaseURL string
	creds   CredentialStore
	http    *resty.Client
}

// NewClient creates a new API client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, creds CredentialStore) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	r := resty.NewWithClient(httpClient).SetLogger(log.StandardLogger())
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    r,
	}
}

// do issues one request and decodes the JSON body into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, result any) error {
	req := c.http.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if tok := c.creds.Token(); tok != "" {
		// Raw token, no "Bearer " prefix.
		req.SetHeader("Authorization", tok)
	}
	if body != nil {
		req.SetBody(body)
	}

	reqURL := c.BaseURL + endpoint
	resp, err := req.Execute(method, reqURL)
	if err != nil {
		log.WithError(err).Debugf("%s %s failed", method, endpoint)
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, endpoint, err)
	}

	if !resp.IsSuccess() {
		reqErr := &RequestError{
			StatusCode: resp.StatusCode(),
			Status:     http.StatusText(resp.StatusCode()),
			Message:    backendMessage(resp.Body()),
		}
		if reqErr.Status == "" {
			reqErr.Status = resp.Status()
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			if clearErr := c.creds.Clear(); clearErr != nil {
				log.WithError(clearErr).Warn("Failed to discard credential after 401")
			}
			log.Debugf("%s %s: 401, credential discarded", method, endpoint)
		} else {
			log.Debugf("%s %s: %s", method, endpoint, resp.Status())
		}
		return reqErr
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		log.Debugf("Response body causing unmarshal error: %s", string(resp.Body()))
		return fmt.Errorf("error unmarshalling %s response JSON: %w", endpoint, err)
	}
	return nil
}

// backendMessage extracts the "error" field from a JSON error body.
func backendMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}

// Login exchanges credentials for a token. A token in a successful response
// is stored; a refusal is returned as the response with Success=false.
func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/login", models.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return models.LoginResponse{}, err
	}
	if resp.Success {
		if err := c.creds.SetToken(resp.Token); err != nil {
			return models.LoginResponse{}, fmt.Errorf("failed to store credential: %w", err)
		}
		log.Debug("Login succeeded, credential stored")
	}
	return resp, nil
}

// Auth asks the backend whether the stored credential is still valid.
func (c *Client) Auth(ctx context.Context) (bool, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth", nil, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// Status fetches the current job snapshot.
func (c *Client) Status(ctx context.Context) (models.Snapshot, error) {
	var resp models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return models.Snapshot{}, err
	}
	if !resp.Success || resp.Status == nil {
		return models.Snapshot{}, ErrStatusUnavailable
	}
	return *resp.Status, nil
}

// StartPath builds the path-encoded start endpoint.
func StartPath(action models.Action, game models.Game, threads int, sleep float64) string {
	return fmt.Sprintf("/api/start/%s/%s/%d/%s",
		url.PathEscape(string(action)),
		url.PathEscape(string(game)),
		threads,
		strconv.FormatFloat(sleep, 'f', -1, 64),
	)
}

// Start launches a job. The response may carry the new status snapshot.
func (c *Client) Start(ctx context.Context, action models.Action, game models.Game, threads int, sleep float64) (models.StatusResponse, error) {
	var resp models.StatusResponse
	err := c.do(ctx, http.MethodGet, StartPath(action, game, threads, sleep), nil, &resp)
	return resp, err
}

// Stop requests cancellation of the running job.
func (c *Client) Stop(ctx context.Context) (models.StopResponse, error) {
	var resp models.StopResponse
	err := c.do(ctx, http.MethodGet, "/api/stop", nil, &resp)
	return resp, err
}

// Health calls the liveness probe. Failures are logged and returned.
func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	var resp models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		log.WithError(err).Warn("Health check failed")
		return models.HealthResponse{}, err
	}
	return resp, nil
}
