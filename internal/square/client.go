// Package square reads bookings, customers, locations and catalog objects
// from the Square Connect v2 API.
package square

import (
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

// Defaults for the production API.
const (
	DefaultBaseURL    = "https://connect.squareup.com/v2"
	DefaultAPIVersion = "2024-05-15"
)

// ErrNotFound is returned (wrapped) when the resource does not exist yet.
var ErrNotFound = errors.New("square: resource not found")

// Client calls the Square API.
type Client struct {
	baseURL     string
	accessToken string
	apiVersion  string
	exec        *retry.Executor
	logger      *slog.Logger
	http        *http.Client
}

// NewClient builds a client; empty baseURL and apiVersion use the defaults.
func NewClient(log *slog.Logger, baseURL, accessToken, apiVersion string, exec *retry.Executor, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if exec == nil {
		exec = retry.New(log)
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: strings.TrimSpace(accessToken),
		apiVersion:  apiVersion,
		exec:        exec,
		logger:      log.With(slog.String("client", "square")),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetBooking retrieves a booking by id.
func (c *Client) GetBooking(ctx context.Context, id string) (Booking, error) {
	var out struct {
		Booking Booking `json:"booking"`
	}
	if err := c.get(ctx, "square get booking", "/bookings/", id, &out); err != nil {
		return Booking{}, err
	}
	return out.Booking, nil
}

// GetCustomer retrieves a customer profile by id.
func (c *Client) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var out struct {
		Customer Customer `json:"customer"`
	}
	if err := c.get(ctx, "square get customer", "/customers/", id, &out); err != nil {
		return Customer{}, err
	}
	return out.Customer, nil
}

// GetLocation retrieves a location by id.
func (c *Client) GetLocation(ctx context.Context, id string) (Location, error) {
	var out struct {
		Location Location `json:"location"`
	}
	if err := c.get(ctx, "square get location", "/locations/", id, &out); err != nil {
		return Location{}, err
	}
	return out.Location, nil
}

// GetCatalogObject retrieves a catalog object by id.
func (c *Client) GetCatalogObject(ctx context.Context, id string) (CatalogObject, error) {
	var out struct {
		Object CatalogObject `json:"object"`
	}
	if err := c.get(ctx, "square get catalog object", "/catalog/object/", id, &out); err != nil {
		return CatalogObject{}, err
	}
	return out.Object, nil
}

func (c *Client) get(ctx context.Context, op, prefix, id string, out any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return syncerr.Validation(op, errors.New("id is required"))
	}
	endpoint := c.baseURL + prefix + url.PathEscape(id)

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Square-Version", c.apiVersion)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		return c.http.Do(req)
	})
	if err != nil {
		return syncerr.Unavailable(op, 0, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body failed", slog.String("op", op), slog.Any("error", err))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncerr.Unavailable(op, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return syncerr.Unavailable(op, resp.StatusCode, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return syncerr.Auth(op, errors.New(errorDetail(body)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return syncerr.Unavailable(op, resp.StatusCode, errors.New(errorDetail(body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s (status %d): %s", op, resp.StatusCode, errorDetail(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorDetail(body []byte) string {
	var parsed struct {
		Errors []apiError `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		e := parsed.Errors[0]
		if e.Detail != "" {
			return e.Code + ": " + e.Detail
		}
		return e.Category + ": " + e.Code
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	if s == "" {
		s = "empty response body"
	}
	return s
}
