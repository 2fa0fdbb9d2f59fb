// Package remonline provides the HTTP client for the Remonline CRM API.
// The API authenticates every call with a short-lived bearer token passed
// as a query parameter; token issuance uses a permanent account API key.
package remonline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bookingsync/platform/logger"
)

const requestTimeout = 30 * time.Second

// APIError is a non-200 response from the CRM, carrying the HTTP status
// and raw body for diagnostics.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remonline %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// IsUnauthorized reports whether err is a 401 from the CRM, which signals
// an expired bearer token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// API is the Remonline HTTP API client.
type API struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// New creates a new Remonline API client.
func New(baseURL string, log *logger.Logger) *API {
	return &API{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		log:        log,
	}
}

// NewToken issues a fresh bearer token from the permanent API key.
func (c *API) NewToken(ctx context.Context, apiKey string) (string, error) {
	body := map[string]string{"api_key": apiKey}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/token/new", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("remonline /token/new: response lacks token field")
	}
	return resp.Token, nil
}

// ListClients fetches one page of CRM clients. An empty slice marks the
// end of the listing.
func (c *API) ListClients(ctx context.Context, token string, page int) ([]Client, error) {
	params := url.Values{}
	params.Set("token", token)
	params.Set("page", strconv.Itoa(page))

	var resp struct {
		Data []Client `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/clients/", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateClient creates a CRM client and returns its id.
func (c *API) CreateClient(ctx context.Context, token string, client NewClient) (int64, error) {
	params := url.Values{}
	params.Set("token", token)

	var resp struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/clients/", params, client, &resp); err != nil {
		return 0, err
	}
	if resp.Data.ID == 0 {
		return 0, fmt.Errorf("remonline /clients/: response lacks data.id")
	}
	return resp.Data.ID, nil
}

// CreateOrder creates a CRM order and returns its id.
func (c *API) CreateOrder(ctx context.Context, token string, order NewOrder) (int64, error) {
	params := url.Values{}
	params.Set("token", token)

	var resp struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/order/", params, order, &resp); err != nil {
		return 0, err
	}
	if resp.Data.ID == 0 {
		return 0, fmt.Errorf("remonline /order/: response lacks data.id")
	}
	return resp.Data.ID, nil
}

func (c *API) doJSON(ctx context.Context, method, endpoint string, params url.Values, body, out interface{}) error {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("remonline request failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("remonline %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remonline %s: read response: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.CRMError(endpoint, resp.StatusCode, string(raw), nil)
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.log.Error("remonline decode failed", "endpoint", endpoint, "error", err)
			return fmt.Errorf("remonline %s: decode response: %w", endpoint, err)
		}
	}
	return nil
}
