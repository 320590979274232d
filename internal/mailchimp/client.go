package mailchimp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/httpclient"
	"github.com/tphakala/mcmigrate/internal/logger"
)

const (
	// PageSize is the maximum page size accepted by list endpoints.
	PageSize = 200

	// maxPages stops runaway paging when a server ignores offset.
	maxPages = 100

	defaultCacheTTL = 10 * time.Minute

	// maxErrorBody caps how much of an error reply is kept in error messages.
	maxErrorBody = 512
)

// Endpoint labels used for metrics and logs.
const (
	EndpointRoot       = "root"
	EndpointCategories = "interest-categories"
	EndpointInterests  = "interests"
)

// Observer receives one call per remote request.
type Observer interface {
	RecordRemoteRequest(endpoint, status string, seconds float64)
}

// Config configures a Client.
type Config struct {
	APIKey    string
	BaseURL   string // overrides the datacenter URL, mainly for tests and proxies
	Timeout   time.Duration
	RateLimit float64
	CacheTTL  time.Duration
	Transport http.RoundTripper
	Logger    logger.Logger
	Observer  Observer
}

// Response is the outcome of a single GET.
type Response struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Success reports whether the call completed with a 2xx status.
func (r *Response) Success() bool {
	return r != nil && r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v, or returns the call error.
func (r *Response) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Body) == 0 {
		return errors.Newf("empty reply from mailchimp").
			Category(errors.CategoryHTTP).
			Component("mailchimp").
			Build()
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Newf("malformed reply from mailchimp: %w", err).
			Category(errors.CategoryHTTP).
			Component("mailchimp").
			Build()
	}
	return nil
}

// Client talks to the MailChimp API. It is safe for concurrent use.
type Client struct {
	key      APIKey
	keyErr   error
	baseURL  string
	http     *httpclient.Client
	cache    *cache.Cache
	log      logger.Logger
	observer Observer
}

// NewClient creates a client. A malformed key does not fail construction:
// every call returns the key error so callers can treat it as a missing credential.
func NewClient(cfg Config) *Client {
	key, keyErr := ParseAPIKey(cfg.APIKey)

	baseURL := cfg.BaseURL
	if baseURL == "" && keyErr == nil {
		baseURL = key.BaseURL()
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	}

	return &Client{
		key:     key,
		keyErr:  keyErr,
		baseURL: baseURL,
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: cfg.Timeout,
			RateLimit:      cfg.RateLimit,
			Transport:      cfg.Transport,
		}),
		cache:    cache.New(ttl, 2*ttl),
		log:      log.Module("mailchimp"),
		observer: cfg.Observer,
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// Get performs GET {base}{path}?{params}. Successful replies are cached.
func (c *Client) Get(ctx context.Context, path string, params url.Values) *Response {
	return c.get(ctx, endpointFor(path), path, params, true)
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, useCache bool) *Response {
	if c.keyErr != nil {
		return &Response{Err: errors.New(c.keyErr).
			Category(errors.CategoryConfiguration).
			Component("mailchimp").
			Build()}
	}

	target := c.baseURL + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	if useCache {
		if cached, found := c.cache.Get(target); found {
			if body, ok := cached.([]byte); ok {
				c.log.Trace("mailchimp cache hit", logger.String("endpoint", endpoint))
				return &Response{StatusCode: http.StatusOK, Body: body}
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return &Response{Err: errors.Newf("failed to create mailchimp request: %w", err).
			Category(errors.CategoryNetwork).
			Component("mailchimp").
			Context("endpoint", endpoint).
			Build()}
	}
	req.SetBasicAuth("apikey", c.key.String())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.observe(endpoint, "error", start)
		c.log.Warn("mailchimp request failed",
			logger.String("endpoint", endpoint),
			logger.String("path", path),
			logger.Error(err))
		return &Response{Err: errors.Newf("mailchimp request failed: %w", err).
			Category(errors.CategoryNetwork).
			Component("mailchimp").
			Context("endpoint", endpoint).
			Build()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	c.observe(endpoint, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return &Response{StatusCode: resp.StatusCode, Err: errors.Newf("failed to read mailchimp reply: %w", err).
			Category(errors.CategoryNetwork).
			Component("mailchimp").
			Context("endpoint", endpoint).
			Context("status_code", resp.StatusCode).
			Build()}
	}

	c.log.Debug("mailchimp request",
		logger.String("endpoint", endpoint),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Response{StatusCode: resp.StatusCode, Body: body, Err: statusError(endpoint, resp.StatusCode, body)}
	}

	if useCache {
		c.cache.Set(target, body, cache.DefaultExpiration)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.observer != nil {
		c.observer.RecordRemoteRequest(endpoint, status, time.Since(start).Seconds())
	}
}

func statusError(endpoint string, status int, body []byte) error {
	var problem ProblemDetail
	var cause error
	if json.Unmarshal(body, &problem) == nil && problem.Title != "" {
		cause = problem
	} else {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody] + "..."
		}
		cause = errors.NewStd(text)
	}

	category := errors.CategoryHTTP
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		category = errors.CategoryConfiguration
	case http.StatusNotFound:
		category = errors.CategoryNotFound
	}

	return errors.Newf("mailchimp returned status %d: %w", status, cause).
		Category(category).
		Component("mailchimp").
		Context("endpoint", endpoint).
		Context("status_code", status).
		Build()
}

func endpointFor(path string) string {
	switch {
	case strings.Trim(path, "/") == "":
		return EndpointRoot
	case strings.HasSuffix(path, "/interests"):
		return EndpointInterests
	case strings.HasSuffix(path, "/interest-categories"):
		return EndpointCategories
	}
	return "other"
}

// ValidateKey confirms the key with a live request to the API root, which
// must answer 2xx with a non-empty account_id. The reply is never cached.
func (c *Client) ValidateKey(ctx context.Context) error {
	resp := c.get(ctx, EndpointRoot, "", nil, false)
	if !resp.Success() {
		if resp.Err != nil {
			return resp.Err
		}
		return statusError(EndpointRoot, resp.StatusCode, resp.Body)
	}

	var root Root
	if err := resp.Decode(&root); err != nil {
		return err
	}
	if root.AccountID == "" {
		return errors.Newf("mailchimp root reply has no account_id").
			Category(errors.CategoryConfiguration).
			Component("mailchimp").
			Build()
	}
	c.log.Info("mailchimp api key validated", logger.String("account_id", root.AccountID))
	return nil
}

// InterestCategories returns every interest category of a list in API order.
func (c *Client) InterestCategories(ctx context.Context, listID string) ([]InterestCategory, error) {
	path := fmt.Sprintf("lists/%s/interest-categories", url.PathEscape(listID))
	var all []InterestCategory

	for page := range maxPages {
		params := url.Values{}
		params.Set("exclude_fields", "_links,categories._links")
		params.Set("count", strconv.Itoa(PageSize))
		if page > 0 {
			params.Set("offset", strconv.Itoa(len(all)))
		}

		var reply categoriesPage
		if err := c.get(ctx, EndpointCategories, path, params, true).Decode(&reply); err != nil {
			return nil, err
		}
		if reply.Categories == nil {
			return nil, errors.Newf("interest categories reply for list %s has no categories", listID).
				Category(errors.CategoryHTTP).
				Component("mailchimp").
				Context("list_id", listID).
				Build()
		}

		all = append(all, reply.Categories...)
		if len(reply.Categories) < PageSize || (reply.TotalItems > 0 && len(all) >= reply.TotalItems) {
			return all, nil
		}
	}
	return all, nil
}

// Interests returns every interest of a category in API order.
// The fields filter strips total_items, so paging stops on the first short page.
func (c *Client) Interests(ctx context.Context, listID, categoryID string) ([]Interest, error) {
	path := fmt.Sprintf("lists/%s/interest-categories/%s/interests", url.PathEscape(listID), url.PathEscape(categoryID))
	var all []Interest

	for page := range maxPages {
		params := url.Values{}
		params.Set("fields", "interests")
		params.Set("exclude_fields", "interests._links")
		params.Set("count", strconv.Itoa(PageSize))
		if page > 0 {
			params.Set("offset", strconv.Itoa(len(all)))
		}

		var reply interestsPage
		if err := c.get(ctx, EndpointInterests, path, params, true).Decode(&reply); err != nil {
			return nil, err
		}
		if reply.Interests == nil {
			return nil, errors.Newf("interests reply for category %s has no interests", categoryID).
				Category(errors.CategoryHTTP).
				Component("mailchimp").
				Context("list_id", listID).
				Context("category_id", categoryID).
				Build()
		}

		for i := range reply.Interests {
			// older replies omit the parent ids
			if reply.Interests[i].CategoryID == "" {
				reply.Interests[i].CategoryID = categoryID
			}
			if reply.Interests[i].ListID == "" {
				reply.Interests[i].ListID = listID
			}
		}
		all = append(all, reply.Interests...)
		if len(reply.Interests) < PageSize {
			return all, nil
		}
	}
	return all, nil
}
