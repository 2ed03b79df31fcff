package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is where a locally started server listens.
const DefaultBaseURL = "http://127.0.0.1:5025"

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v: %d %s", e.Unwrap(), e.StatusCode, e.Message)
}

// Unwrap maps the status onto the shared sentinel errors so callers can use [errors.Is].
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return shared.ErrTaskNotFound
	case http.StatusConflict:
		return shared.ErrTaskTerminal
	case http.StatusBadRequest:
		return shared.ErrInvalidInput
	case http.StatusServiceUnavailable:
		return shared.ErrServiceUnavailable
	}
	return shared.ErrAPIRequest
}

// APIService is the HTTP implementation of [Dashboard].
type APIService struct {
	baseURL string
	http    *resty.Client
}

// NewAPIService creates a client for the server at baseURL.
//
// Idempotent GET requests are retried on 502, 503 and 504.
func NewAPIService(baseURL string, timeout time.Duration) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			code := r.StatusCode()
			return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
		})

	return &APIService{baseURL: baseURL, http: client}
}

// BaseURL returns the server address the client talks to.
func (a *APIService) BaseURL() string { return a.baseURL }

func (a *APIService) CreateTask(ctx context.Context, req models.CreateTaskRequest) (string, error) {
	var out models.CreateTaskResponse
	if err := a.do(ctx, http.MethodPost, "/api/tasks", nil, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (a *APIService) GetTask(ctx context.Context, id string) (*models.TaskView, error) {
	var out models.TaskView
	if err := a.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *APIService) ListTasks(ctx context.Context, status models.Status) ([]models.TaskView, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []models.TaskView
	if err := a.do(ctx, http.MethodGet, "/api/tasks", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *APIService) CancelTask(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/cancel", nil, nil, nil)
}

func (a *APIService) EmergencyStop(ctx context.Context, reason string) (*models.EmergencyStopResponse, error) {
	var out models.EmergencyStopResponse
	req := models.EmergencyStopRequest{Reason: reason}
	if err := a.do(ctx, http.MethodPost, "/api/tasks/emergency-stop", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *APIService) Kinds(ctx context.Context) ([]models.Kind, error) {
	var out []models.Kind
	if err := a.do(ctx, http.MethodGet, "/api/kinds", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *APIService) History(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", string(kind))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Record
	if err := a.do(ctx, http.MethodGet, "/api/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *APIService) ClearHistory(ctx context.Context) error {
	return a.do(ctx, http.MethodDelete, "/api/history", nil, nil, nil)
}

func (a *APIService) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := a.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends one request and decodes a 2xx JSON body into out when out is non-nil.
func (a *APIService) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := a.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, path, err)
	}

	if !resp.IsSuccess() {
		return &APIError{StatusCode: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrAPIRequest, path, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
