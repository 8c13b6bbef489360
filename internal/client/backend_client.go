package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/model"
)

// ErrNotFound is returned when the backend answers 404
var ErrNotFound = errors.New("resource not found")

// ValidationError is a 400 response carrying per-field messages
type ValidationError struct {
	Body []byte
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("backend rejected the request: %s", strings.TrimSpace(string(e.Body)))
}

// APIError is any other non-2xx response
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status code %d", e.StatusCode)
}

// createEndpoints maps each alert type to its creation endpoint
var createEndpoints = map[model.AlertType]string{
	model.AlertTypePrice:          "/api/price-target-alerts/",
	model.AlertTypePercentChange:  "/api/percentage-change-alerts/",
	model.AlertTypeIndicatorChain: "/api/indicator-chain-alerts/",
}

// BackendClient handles communication with the stockwatch REST backend
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackendClient creates a new backend client
func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ListIndicators retrieves the indicator catalog
func (c *BackendClient) ListIndicators(ctx context.Context, token string) ([]model.Indicator, error) {
	var indicators []model.Indicator
	if err := c.do(ctx, http.MethodGet, "/api/indicators/", token, nil, &indicators); err != nil {
		return nil, err
	}
	return indicators, nil
}

// ListStocks retrieves stocks, optionally filtered by symbol or name
func (c *BackendClient) ListStocks(ctx context.Context, token, search string) ([]model.Stock, error) {
	path := "/api/stocks/"
	if search != "" {
		path += "?" + url.Values{"search": {search}}.Encode()
	}

	var stocks []model.Stock
	if err := c.do(ctx, http.MethodGet, path, token, nil, &stocks); err != nil {
		return nil, err
	}
	return stocks, nil
}

// GetStock retrieves one stock by symbol
func (c *BackendClient) GetStock(ctx context.Context, token, symbol string) (*model.Stock, error) {
	var stock model.Stock
	path := fmt.Sprintf("/api/stocks/%s/", url.PathEscape(symbol))
	if err := c.do(ctx, http.MethodGet, path, token, nil, &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

// ListAlerts retrieves the alerts of the token owner
func (c *BackendClient) ListAlerts(ctx context.Context, token string) ([]model.AlertDetail, error) {
	var alerts []model.AlertDetail
	if err := c.do(ctx, http.MethodGet, "/api/user-alerts/", token, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetAlert retrieves one alert with its type-specific section
func (c *BackendClient) GetAlert(ctx context.Context, token string, id int) (*model.AlertDetail, error) {
	var alert model.AlertDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/alerts/%d/", id), token, nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateAlert posts payload to the endpoint of its alert type and returns
// the id of the created alert
func (c *BackendClient) CreateAlert(ctx context.Context, token string, payload model.AlertPayload) (int, error) {
	endpoint, ok := createEndpoints[payload.AlertType]
	if !ok {
		return 0, fmt.Errorf("no endpoint for alert type %q", payload.AlertType)
	}

	var created json.RawMessage
	if err := c.do(ctx, http.MethodPost, endpoint, token, payload, &created); err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(created, "id").Int()), nil
}

// UpdateAlert replaces an existing alert
func (c *BackendClient) UpdateAlert(ctx context.Context, token string, id int, payload model.AlertPayload) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/alerts/%d/", id), token, payload, nil)
}

// DeleteAlert deletes an alert
func (c *BackendClient) DeleteAlert(ctx context.Context, token string, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/alerts/%d/", id), token, nil, nil)
}

// do sends one request and decodes a 2xx body into out when out is not nil
func (c *BackendClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to reach backend",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return &ValidationError{Body: data}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("Backend returned an error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Body: data}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("Failed to decode backend response", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
