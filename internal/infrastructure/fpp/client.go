package fpp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/infrastructure/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// LibraryVersion is reported in the User-Agent of every platform request
const LibraryVersion = "1.0.0"

const (
	defaultRetryWait   = time.Second
	deprecationWindow  = 5 * time.Minute
	defaultHTTPTimeout = 30 * time.Second
)

// RetryConfig controls the pause between attempts of a retried request
type RetryConfig struct {
	// Wait is used unless a throttled response carries Retry-After.
	Wait time.Duration
}

// DefaultRetryConfig returns the platform's recommended retry settings
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Wait: defaultRetryWait}
}

// Client issues requests against a single shop domain
type Client struct {
	domain          string
	httpClient      *http.Client
	retryConfig     RetryConfig
	userAgentPrefix string
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time

	mu                 sync.Mutex
	loggedDeprecations map[string]time.Time
}

// Option configures a Client
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithRetryConfig(retryConfig RetryConfig) Option {
	return func(c *Client) { c.retryConfig = retryConfig }
}

func WithUserAgentPrefix(prefix string) Option {
	return func(c *Client) { c.userAgentPrefix = prefix }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for shop, rejecting anything that is not a shop domain
func NewClient(shop string, opts ...Option) (*Client, error) {
	if !domain.ValidateShop(shop) {
		return nil, domain.NewError(domain.KindInvalidShop, "Domain %s is not valid", shop)
	}

	c := &Client{
		domain:             strings.TrimRight(shop, "/"),
		httpClient:         &http.Client{Timeout: defaultHTTPTimeout},
		retryConfig:        DefaultRetryConfig(),
		logger:             zerolog.Nop(),
		now:                time.Now,
		loggedDeprecations: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Domain returns the shop domain the client is bound to
func (c *Client) Domain() string {
	return c.domain
}

func (c *Client) Get(ctx context.Context, params domain.RequestParams) (*domain.Response, error) {
	params.Method = http.MethodGet
	return c.Request(ctx, params)
}

func (c *Client) Post(ctx context.Context, params domain.RequestParams) (*domain.Response, error) {
	params.Method = http.MethodPost
	return c.Request(ctx, params)
}

func (c *Client) Put(ctx context.Context, params domain.RequestParams) (*domain.Response, error) {
	params.Method = http.MethodPut
	return c.Request(ctx, params)
}

func (c *Client) Delete(ctx context.Context, params domain.RequestParams) (*domain.Response, error) {
	params.Method = http.MethodDelete
	return c.Request(ctx, params)
}

// Request sends params to the shop, retrying retriable failures up to params.Tries attempts
func (c *Client) Request(ctx context.Context, params domain.RequestParams) (*domain.Response, error) {
	tries := params.Tries
	if tries == 0 {
		tries = 1
	}
	if tries < 0 {
		return nil, domain.NewError(domain.KindHttpRequest, "Number of tries must be >= 0, got %d", tries)
	}

	method := params.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(method, params)
	if err != nil {
		return nil, err
	}

	reqURL := c.buildURL(params)
	headers := c.buildHeaders(params.ExtraHeaders, contentType)

	attempts := 0
	operation := func() (*domain.Response, error) {
		attempts++
		resp, err := c.do(ctx, method, reqURL, body, headers)
		if err == nil {
			return resp, nil
		}

		var apiErr *domain.Error
		if !errors.As(err, &apiErr) || !apiErr.Retriable {
			return nil, backoff.Permanent(err)
		}
		if apiErr.RetryAfter > 0 {
			return nil, errors.Join(apiErr, &backoff.RetryAfterError{Duration: apiErr.RetryAfter})
		}
		return nil, apiErr
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryConfig.Wait)),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.metrics.APIRetry()
			c.logger.Warn().
				Err(err).
				Str("shop", c.domain).
				Str("url", reqURL).
				Dur("wait", wait).
				Msg("Retrying Fpp API request")
		}),
	)
	if err == nil {
		return resp, nil
	}

	var apiErr *domain.Error
	if !errors.As(err, &apiErr) {
		return nil, domain.WrapError(domain.KindHttpRequest, err, "Failed to make Fpp HTTP request")
	}
	if apiErr.Retriable && tries > 1 && attempts >= tries {
		return nil, &domain.Error{
			Kind:    domain.KindHttpMaxRetries,
			Message: fmt.Sprintf("Exceeded maximum retry count of %d. Last message: %s", tries, apiErr.Message),
			Err:     apiErr,
		}
	}
	return nil, apiErr
}

func (c *Client) do(ctx context.Context, method, reqURL string, body []byte, headers http.Header) (*domain.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, domain.WrapError(domain.KindHttpRequest, err, "Failed to make Fpp HTTP request")
	}
	req.Header = headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.KindHttpRequest, err, "Failed to make Fpp HTTP request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.KindHttpRequest, err, "Failed to read Fpp response body")
	}

	c.metrics.APIRequest(method, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyResponse(resp, raw)
	}

	var parsed any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, domain.WrapError(domain.KindHttpRequest, err, "Failed to parse Fpp response body")
		}
	}

	if reason := resp.Header.Get(domain.HeaderDeprecatedReason); reason != "" {
		c.logDeprecation(reason, reqURL)
	}

	return &domain.Response{Body: parsed, Raw: raw, Headers: resp.Header}, nil
}

func classifyResponse(resp *http.Response, raw []byte) *domain.Error {
	statusText := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}

	var details []string
	var payload struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Errors) > 0 {
		details = append(details, string(payload.Errors))
	}
	if requestID := resp.Header.Get(domain.HeaderRequestID); requestID != "" {
		details = append(details, "If you report this error, please include this id: "+requestID)
	}
	suffix := ""
	if len(details) > 0 {
		suffix = ":\n" + strings.Join(details, "\n")
	}

	apiErr := &domain.Error{
		StatusCode: resp.StatusCode,
		StatusText: statusText,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = domain.KindHttpThrottling
		apiErr.Message = "Fpp is throttling requests" + suffix
		apiErr.Retriable = true
		if retryAfter := resp.Header.Get(domain.HeaderRetryAfter); retryAfter != "" {
			if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil && seconds > 0 {
				apiErr.RetryAfter = time.Duration(seconds * float64(time.Second))
			}
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		apiErr.Kind = domain.KindHttpInternal
		apiErr.Message = "Fpp internal error" + suffix
		apiErr.Retriable = true
	default:
		apiErr.Kind = domain.KindHttpResponse
		apiErr.Message = fmt.Sprintf("Received an error response (%d %s) from Fpp", resp.StatusCode, statusText) + suffix
	}

	return apiErr
}

func (c *Client) buildURL(params domain.RequestParams) string {
	u := url.URL{
		Scheme: "https",
		Host:   c.domain,
		Path:   "/" + strings.TrimLeft(params.Path, "/"),
	}
	if len(params.Query) > 0 {
		u.RawQuery = params.Query.Encode()
	}
	return u.String()
}

func (c *Client) buildHeaders(extra map[string]string, contentType string) http.Header {
	userAgent := fmt.Sprintf("Fpp API Library v%s | Go %s", LibraryVersion, runtime.Version())
	if c.userAgentPrefix != "" {
		userAgent = c.userAgentPrefix + " | " + userAgent
	}

	headers := make(http.Header)
	for key, value := range extra {
		if strings.EqualFold(key, domain.HeaderUserAgent) {
			userAgent = value + " | " + userAgent
			continue
		}
		headers.Set(key, value)
	}

	headers.Set(domain.HeaderUserAgent, userAgent)
	if contentType != "" {
		headers.Set(domain.HeaderContentType, contentType)
	}
	return headers
}

// encodeBody serializes Data for POST and PUT; other methods send no body
func encodeBody(method string, params domain.RequestParams) ([]byte, string, error) {
	if params.Data == nil || (method != http.MethodPost && method != http.MethodPut) {
		return nil, "", nil
	}

	dataType := params.Type
	if dataType == "" {
		dataType = domain.DataTypeJSON
	}

	switch dataType {
	case domain.DataTypeJSON:
		switch data := params.Data.(type) {
		case string:
			return []byte(data), string(dataType), nil
		case []byte:
			return data, string(dataType), nil
		default:
			body, err := json.Marshal(data)
			if err != nil {
				return nil, "", domain.WrapError(domain.KindHttpRequest, err, "Failed to encode JSON request body")
			}
			return body, string(dataType), nil
		}
	case domain.DataTypeURLEncoded:
		switch data := params.Data.(type) {
		case url.Values:
			return []byte(data.Encode()), string(dataType), nil
		case map[string]string:
			values := make(url.Values, len(data))
			for k, v := range data {
				values.Set(k, v)
			}
			return []byte(values.Encode()), string(dataType), nil
		case string:
			return []byte(data), string(dataType), nil
		}
	case domain.DataTypeGraphQL:
		switch data := params.Data.(type) {
		case string:
			return []byte(data), string(dataType), nil
		case []byte:
			return data, string(dataType), nil
		}
	default:
		return nil, "", domain.NewError(domain.KindHttpRequest, "Unsupported request data type %q", dataType)
	}

	return nil, "", domain.NewError(domain.KindHttpRequest, "Cannot encode %T as %s", params.Data, dataType)
}

func (c *Client) logDeprecation(reason, reqURL string) {
	key, _ := json.Marshal(struct {
		Message string `json:"message"`
		Path    string `json:"path"`
	}{reason, reqURL})
	sum := sha256.Sum256(key)
	hash := hex.EncodeToString(sum[:])

	now := c.now()

	c.mu.Lock()
	last, seen := c.loggedDeprecations[hash]
	if seen && now.Sub(last) < deprecationWindow {
		c.mu.Unlock()
		return
	}
	c.loggedDeprecations[hash] = now
	c.mu.Unlock()

	c.metrics.DeprecationNotice()
	c.logger.Warn().
		Str("shop", c.domain).
		Str("path", reqURL).
		Str("reason", reason).
		Msg("API Deprecation Notice")
}
