package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxPages     = 500
	defaultRetryBackoff = 500 * time.Millisecond
	maxBodyBytes        = 16 << 20
	pageParameter       = "page"
	firstPage           = 1
)

// Config describes how to reach the external catalog.
type Config struct {
	BaseURL           string
	HTTPClient        *http.Client
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	MaxPages          int
	RetryBackoff      time.Duration
	Logger            *zap.Logger
}

// Client retrieves every listing from a paginated catalog endpoint.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	limiter      *rate.Limiter
	validate     *validator.Validate
	maxRetries   int
	maxPages     int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	rawURL := strings.TrimSpace(cfg.BaseURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidConfig)
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base url %q is not absolute", ErrInvalidConfig, rawURL)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:      baseURL,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, 1),
		validate:     validator.New(),
		maxRetries:   cfg.MaxRetries,
		maxPages:     maxPages,
		retryBackoff: backoff,
		logger:       logger,
	}, nil
}

// FetchAll walks the catalog from page 1 until the response carries no next page.
// Records keep source order. Any failing page aborts the walk.
func (c *Client) FetchAll(ctx context.Context) ([]Record, error) {
	var records []Record
	for page := firstPage; ; page++ {
		if page > c.maxPages {
			return nil, &FetchError{Page: page, Err: fmt.Errorf("%w: limit %d", ErrTooManyPages, c.maxPages)}
		}

		response, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		records = append(records, *response.Results...)

		c.logger.Debug("catalog page fetched",
			zap.Int("page", page),
			zap.Int("records", len(*response.Results)))

		if !response.hasNext() {
			break
		}
	}

	c.logger.Info("catalog fetched", zap.Int("records", len(records)))
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) (pageResponse, error) {
	for attempt := 0; ; attempt++ {
		response, err := c.requestPage(ctx, page)
		if err == nil {
			return response, nil
		}

		var failure *attemptError
		if !errors.As(err, &failure) {
			return pageResponse{}, &FetchError{Page: page, Err: err}
		}
		if !failure.retryable || attempt >= c.maxRetries || ctx.Err() != nil {
			return pageResponse{}, &FetchError{Page: page, StatusCode: failure.statusCode, Err: failure.err}
		}

		delay := c.retryBackoff << attempt
		c.logger.Warn("catalog page request failed, retrying",
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(failure.err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pageResponse{}, &FetchError{Page: page, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (c *Client) requestPage(ctx context.Context, page int) (pageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return pageResponse{}, permanent(0, fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(page), http.NoBody)
	if err != nil {
		return pageResponse{}, permanent(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pageResponse{}, permanent(0, ctx.Err())
		}
		return pageResponse{}, transient(0, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return pageResponse{}, transient(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return pageResponse{}, transient(resp.StatusCode, ErrUnexpectedStatus)
	default:
		return pageResponse{}, permanent(resp.StatusCode, ErrUnexpectedStatus)
	}

	var response pageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return pageResponse{}, permanent(resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedPage, err))
	}
	if response.Results == nil {
		return pageResponse{}, permanent(resp.StatusCode, fmt.Errorf("%w: missing results", ErrMalformedPage))
	}
	for index, record := range *response.Results {
		if err := c.validate.Struct(record); err != nil {
			return pageResponse{}, permanent(resp.StatusCode, fmt.Errorf("%w: record %d: %v", ErrMalformedPage, index, err))
		}
	}
	return response, nil
}

func (c *Client) pageURL(page int) string {
	u := *c.baseURL
	query := u.Query()
	query.Set(pageParameter, strconv.Itoa(page))
	u.RawQuery = query.Encode()
	return u.String()
}
