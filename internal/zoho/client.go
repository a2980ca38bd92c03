// Package zoho is a small client for the Zoho CRM v5 REST API: record
// search, create and update with OAuth token caching.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/himplant/crmsync/internal/retry"
	"github.com/himplant/crmsync/internal/syncerr"
	"github.com/himplant/crmsync/internal/version"
)

// DefaultBaseURL is the CRM API root for the US data center.
const DefaultBaseURL = "https://www.zohoapis.com/crm/v5"

// Module names used by the sync engine.
const (
	ModuleLeads    = "Leads"
	ModuleContacts = "Contacts"
	ModuleEvents   = "Events"
	ModuleDeals    = "Deals"
)

// Record is one CRM record keyed by field API name.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() string { return r.String("id") }

// String returns field as a string, or "" when absent or not scalar.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// TokenProvider supplies and invalidates access tokens.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// Client calls the CRM API.
type Client struct {
	baseURL string
	tokens  TokenProvider
	exec    *retry.Executor
	logger  *slog.Logger
	http    *http.Client
}

// NewClient builds a client; baseURL defaults to DefaultBaseURL.
func NewClient(log *slog.Logger, baseURL string, tokens TokenProvider, exec *retry.Executor, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if exec == nil {
		exec = retry.New(log)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		exec:    exec,
		logger:  log.With(slog.String("client", "zoho")),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type dataEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

type writeResult struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		ID string `json:"id"`
	} `json:"details"`
}

// Search runs a criteria search on module. No match returns an empty slice.
func (c *Client) Search(ctx context.Context, module, criteria string) ([]Record, error) {
	op := "zoho search " + module
	query := url.Values{}
	query.Set("criteria", criteria)

	status, body, err := c.do(ctx, op, http.MethodGet, "/"+module+"/search", query, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, statusError(op, status, errors.New(snippet(body)))
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var env dataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, syncerr.Downstream(op, status, fmt.Errorf("decode response: %w", err))
	}
	records := make([]Record, 0, len(env.Data))
	for _, raw := range env.Data {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, syncerr.Downstream(op, status, fmt.Errorf("decode record: %w", err))
		}
		records = append(records, rec)
	}
	return records, nil
}

// Create inserts one record and returns its id.
func (c *Client) Create(ctx context.Context, module string, rec Record) (string, error) {
	op := "zoho create " + module
	result, err := c.write(ctx, op, http.MethodPost, module, rec)
	if err != nil {
		return "", err
	}
	if result.Details.ID == "" {
		return "", syncerr.Downstream(op, 0, errors.New("response has no record id"))
	}
	return result.Details.ID, nil
}

// Update patches fields of record id.
func (c *Client) Update(ctx context.Context, module, id string, fields Record) error {
	op := "zoho update " + module
	if strings.TrimSpace(id) == "" {
		return syncerr.Validation(op, errors.New("record id is required"))
	}
	patch := make(Record, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["id"] = id
	_, err := c.write(ctx, op, http.MethodPut, module, patch)
	return err
}

func (c *Client) write(ctx context.Context, op, method, module string, rec Record) (writeResult, error) {
	payload, err := json.Marshal(map[string][]Record{"data": {rec}})
	if err != nil {
		return writeResult{}, syncerr.Validation(op, err)
	}
	status, body, err := c.do(ctx, op, method, "/"+module, nil, payload)
	if err != nil {
		return writeResult{}, err
	}

	var env dataEnvelope
	decodeErr := json.Unmarshal(body, &env)
	var result writeResult
	if decodeErr == nil && len(env.Data) > 0 {
		decodeErr = json.Unmarshal(env.Data[0], &result)
	}
	if status < 200 || status >= 300 {
		if result.Code != "" {
			return result, statusError(op, status, fmt.Errorf("%s: %s", result.Code, result.Message))
		}
		return result, statusError(op, status, errors.New(snippet(body)))
	}
	if decodeErr != nil {
		return result, syncerr.Downstream(op, status, fmt.Errorf("decode response: %w", decodeErr))
	}
	if len(env.Data) == 0 {
		return result, syncerr.Downstream(op, status, errors.New("empty response data"))
	}
	if strings.EqualFold(result.Status, "error") {
		return result, syncerr.Downstream(op, status, fmt.Errorf("%s: %s", result.Code, result.Message))
	}
	return result, nil
}

// statusError classifies a non-2xx answer. A 429 left over after the
// retries is rate limiting, not a rejected request.
func statusError(op string, status int, err error) error {
	if status == http.StatusTooManyRequests {
		return syncerr.Unavailable(op, status, err)
	}
	return syncerr.Downstream(op, status, err)
}

// do sends one logical request. A 401 invalidates the cached token and the
// request is sent once more with a fresh one.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return 0, nil, err
		}

		resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Response, error) {
			var body io.Reader
			if payload != nil {
				body = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
			req.Header.Set("Accept", "application/json")
			req.Header.Set("User-Agent", version.UserAgent())
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			return c.http.Do(req)
		})
		if err != nil {
			return 0, nil, syncerr.Downstream(op, 0, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body failed", slog.String("op", op), slog.Any("error", err))
		}
		if readErr != nil {
			return resp.StatusCode, nil, syncerr.Downstream(op, resp.StatusCode, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("access token rejected, refreshing", slog.String("op", op))
			c.tokens.Invalidate()
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return resp.StatusCode, respBody, syncerr.Auth(op, errors.New(snippet(respBody)))
		}
		return resp.StatusCode, respBody, nil
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	if s == "" {
		s = "empty response body"
	}
	return s
}
