package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxRetries        = 3
	initialBackoff    = time.Second
	maxResponseBytes  = 10 << 20
	maxDownloadBytes  = 2 << 30
	defaultAPITimeout = 30 * time.Second
	tracerName        = "github.com/flemzord/tgbridge/modules/adapter/telegram"
)

// Client is the gateway to the Bot API. Every call is a POST to
// {baseURL}/bot{token}/{method}. Calls are traced and counted.
type Client struct {
	token       string
	baseURL     string
	http        *http.Client
	apiTimeout  time.Duration
	pollTimeout time.Duration
	tracer      trace.Tracer
	metrics     *Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its Timeout should be
// zero; deadlines are applied per call.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithAPITimeout sets the deadline of ordinary calls.
func WithAPITimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.apiTimeout = d }
}

// WithLongPollTimeout sets the server-side wait of getUpdates. Those calls
// get this much extra time on top of the API timeout.
func WithLongPollTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.pollTimeout = d }
}

// WithTracerProvider traces calls through tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithMetrics counts calls in m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Bot API client.
func NewClient(token, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{},
		apiTimeout: defaultAPITimeout,
		tracer:     otel.Tracer(tracerName),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MethodName converts a snake_case method name to the Bot API's
// camelCase. Names already in camelCase pass through.
func MethodName(name string) string {
	if !strings.Contains(name, "_") {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	upper := false
	for _, r := range name {
		switch {
		case r == '_':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InputFile is a file uploaded in a multipart call. Readers that are also
// io.Closers are closed once the call returns.
type InputFile struct {
	// Field is the form field name, e.g. "photo" or an attach:// name.
	Field  string
	Name   string
	Reader io.Reader
}

type requestBody struct {
	contentType string
	data        []byte
}

// CallAPI calls method with params encoded as JSON and returns the raw
// result. params may be nil.
func (c *Client) CallAPI(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var body requestBody
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
		body = requestBody{contentType: "application/json", data: data}
	}
	return c.call(ctx, method, body)
}

// CallMultipartAPI calls method with params and files encoded as
// multipart/form-data. Strings are sent as is, numbers are formatted and
// other values are JSON-encoded. Every file is closed before returning.
func (c *Client) CallMultipartAPI(ctx context.Context, method string, params map[string]any, files []InputFile) (json.RawMessage, error) {
	body, err := encodeMultipart(params, files)
	closeInputs(files)
	if err != nil {
		return nil, fmt.Errorf("telegram: encode %s request: %w", method, err)
	}
	return c.call(ctx, method, body)
}

// do calls method and decodes the result into T.
func do[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	raw, err := c.CallAPI(ctx, method, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &NetworkError{Msg: "decode " + method + " result", Err: err}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, body requestBody) (json.RawMessage, error) {
	method = MethodName(method)

	ctx, span := c.tracer.Start(ctx, "telegram."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("telegram.method", method)),
	)
	defer span.End()

	start := time.Now()
	result, err := c.send(ctx, method, body)
	c.metrics.observeCall(method, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errorOutcome(err))
		var failed *ActionFailed
		if errors.As(err, &failed) {
			span.SetAttributes(attribute.Int("telegram.error_code", failed.Code))
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, method string, body requestBody) (json.RawMessage, error) {
	timeout := c.apiTimeout
	if method == "getUpdates" {
		timeout += c.pollTimeout
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		status, respBody, err := c.post(ctx, method, timeout, body)
		if err != nil {
			return nil, err
		}

		if status < http.StatusOK || status >= http.StatusInternalServerError {
			return nil, &NetworkError{Msg: fmt.Sprintf("HTTP request received unexpected status code: %d", status)}
		}

		var resp apiResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, &NetworkError{Msg: fmt.Sprintf("malformed response body (status %d)", status), Err: err}
		}
		if resp.OK {
			return resp.Result, nil
		}

		failed := &ActionFailed{Code: resp.ErrorCode, Description: resp.Description}
		if resp.Parameters != nil {
			failed.RetryAfter = resp.Parameters.RetryAfter
		}

		if failed.Code != http.StatusTooManyRequests || attempt >= maxRetries-1 {
			return nil, failed
		}

		wait := backoff
		if failed.RetryAfter > 0 {
			wait = time.Duration(failed.RetryAfter) * time.Second
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &NetworkError{Msg: "interrupted while rate limited", Err: err}
		}
		backoff *= 2
	}
}

func (c *Client) post(ctx context.Context, method string, timeout time.Duration, body requestBody) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body.data != nil {
		reader = bytes.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, reader)
	if err != nil {
		return 0, nil, &NetworkError{Msg: "API root url invalid", Err: stripURL(err)}
	}
	if body.contentType != "" {
		req.Header.Set("Content-Type", body.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Msg: method + " request failed", Err: stripURL(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &NetworkError{Msg: "read " + method + " response", Err: stripURL(err)}
	}
	return resp.StatusCode, data, nil
}

// stripURL drops the token-bearing URL from *url.Error values.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func encodeMultipart(params map[string]any, files []InputFile) (requestBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v, ok := formValue(params[k])
		if !ok {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return requestBody{}, err
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return requestBody{}, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return requestBody{}, fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return requestBody{}, err
	}
	return requestBody{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}

// formValue renders a multipart field. Nil values and values that fail to
// encode are dropped.
func formValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

func closeInputs(files []InputFile) {
	for _, f := range files {
		if c, ok := f.Reader.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FileURL returns the download URL of a path returned by getFile.
func (c *Client) FileURL(filePath string) string {
	return c.baseURL + "/file/bot" + c.token + "/" + filePath
}

// GetUpdatesRequest is the request body of getUpdates.
type GetUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SetWebhookRequest is the request body of setWebhook.
type SetWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	u, err := do[User](ctx, c, "getMe", nil)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates fetches pending updates. Each one is returned raw so the
// classifier sees the exact payload.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]json.RawMessage, error) {
	return do[[]json.RawMessage](ctx, c, "getUpdates", req)
}

// SetWebhook points Telegram at url.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := c.CallAPI(ctx, "setWebhook", req)
	return err
}

// DeleteWebhook removes the webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.CallAPI(ctx, "deleteWebhook", nil)
	return err
}

// GetFile prepares a file for download.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := do[File](ctx, c, "getFile", map[string]string{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile fetches a file link built by FileURL.
func (c *Client) DownloadFile(ctx context.Context, link string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "telegram.downloadFile", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.apiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, &NetworkError{Msg: "file url invalid", Err: stripURL(err)}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(stripURL(err))
		return nil, &NetworkError{Msg: "download request failed", Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, &NetworkError{Msg: fmt.Sprintf("HTTP request received unexpected status code: %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, &NetworkError{Msg: "read download", Err: stripURL(err)}
	}
	return data, nil
}
