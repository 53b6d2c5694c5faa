package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

const (
	uploadField     = "file"
	maxResponseSize = 64 << 20
	defaultTimeout  = 30 * time.Second
)

// StatusError is a controller response that is not worth retrying.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: controller returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: controller returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsRejected reports whether err is a 400 answer, i.e. the controller refused the call
// because of the worker's current lease state.
func IsRejected(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest
}

// Options tune the HTTP client.
type Options struct {
	Token       string
	CACertFile  string
	Timeout     time.Duration
	Attempts    int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Client talks to the controller worker API. Transport failures and 502/503/504 answers are
// retried with capped jittered backoff: indefinitely for heartbeats, up to Attempts for every
// other call.
type Client struct {
	baseURL     *url.URL
	token       string
	httpClient  *http.Client
	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type requestFunc func(ctx context.Context) (*http.Request, error)

// NewClient creates a controller client for baseURL.
func NewClient(baseURL string, opts Options, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse controller url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("controller url must be absolute")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if opts.CACertFile != "" {
		transport, err := transportWithCA(opts.CACertFile)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = transport
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Client{
		baseURL:     parsed,
		token:       opts.Token,
		httpClient:  httpClient,
		attempts:    attempts,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		logger:      logger,
		sleep:       sleepContext,
	}, nil
}

// NewFromConfig creates a client from build worker configuration.
func NewFromConfig(cfg *config.WorkerConfig, logger *slog.Logger) (*Client, error) {
	return NewClient(cfg.ControllerURL, Options{
		Token:       cfg.Token,
		CACertFile:  cfg.CACertFile,
		Timeout:     cfg.RequestTimeout,
		Attempts:    cfg.LeaseAttempts,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
	}, logger)
}

func transportWithCA(file string) (*http.Transport, error) {
	pem, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read ca certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("ca certificate %s contains no certificates", file)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return transport, nil
}

// KeepAlive sends a heartbeat. It keeps retrying transient failures until ctx is done.
func (c *Client) KeepAlive(ctx context.Context) error {
	return c.call(ctx, "keep alive", 0, c.simple(http.MethodGet, "/keep-alive", nil), nil)
}

// ReceiveOrder leases the next binary order. A nil payload means the queue is empty. When the
// controller says a build has already started for this worker, the held order is returned.
func (c *Client) ReceiveOrder(ctx context.Context) (*dto.OrderPayload, error) {
	var order *dto.OrderPayload
	err := c.call(ctx, "receive order", c.attempts, c.simple(http.MethodGet, "/receive-order", nil), &order)
	if IsRejected(err) {
		c.logger.Warn("controller reports a held order, resuming it", slog.Any("error", err))
		return c.CurrentOrder(ctx)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CurrentOrder fetches the order leased by this worker.
func (c *Client) CurrentOrder(ctx context.Context) (*dto.OrderPayload, error) {
	var order *dto.OrderPayload
	if err := c.call(ctx, "get current order", c.attempts, c.simple(http.MethodGet, "/get-current-order", nil), &order); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("get current order: empty response")
	}
	return order, nil
}

// CompleteOrder uploads the built artifact for the leased order.
func (c *Client) CompleteOrder(ctx context.Context, artifactPath string) error {
	return c.call(ctx, "order completed", c.attempts, c.upload("/order-completed", nil, artifactPath), nil)
}

// FailOrder reports a failed build. An empty text sends no diagnostic.
func (c *Client) FailOrder(ctx context.Context, text string) error {
	var body []byte
	if text != "" {
		var err error
		body, err = json.Marshal(dto.FailureReport{ErrorText: &text})
		if err != nil {
			return fmt.Errorf("encode failure report: %w", err)
		}
	}
	return c.call(ctx, "order failed", c.attempts, c.simple(http.MethodPost, "/order-failed", body), nil)
}

// ReceiveSourcesOrder fetches the next sources-only order. A nil payload means none is waiting.
func (c *Client) ReceiveSourcesOrder(ctx context.Context) (*dto.OrderPayload, error) {
	var order *dto.OrderPayload
	if err := c.call(ctx, "receive sources order", c.attempts, c.simple(http.MethodGet, "/receive-sources-only-order", nil), &order); err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteSourcesOrder uploads the sources archive of orderID.
func (c *Client) CompleteSourcesOrder(ctx context.Context, orderID int64, archivePath string) error {
	query := url.Values{"order-id": []string{strconv.FormatInt(orderID, 10)}}
	return c.call(ctx, "sources order completed", c.attempts, c.upload("/sources-only-order-completed", query, archivePath), nil)
}

func (c *Client) endpoint(route string, query url.Values) string {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, route)
	endpoint.RawQuery = query.Encode()
	return endpoint.String()
}

func (c *Client) simple(method, route string, body []byte) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(route, nil), reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// upload streams file as the multipart "file" field. The file is reopened on every attempt.
func (c *Client) upload(route string, query url.Values, file string) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		src, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}

		pr, pw := io.Pipe()
		form := multipart.NewWriter(pw)
		go func() {
			defer src.Close()
			part, err := form.CreateFormFile(uploadField, filepath.Base(file))
			if err == nil {
				_, err = io.Copy(part, src)
			}
			if err == nil {
				err = form.Close()
			}
			pw.CloseWithError(err)
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(route, query), pr)
		if err != nil {
			pr.Close()
			return nil, err
		}
		req.Header.Set("Content-Type", form.FormDataContentType())
		return req, nil
	}
}

// call performs one logical request. attempts <= 0 retries until ctx is done.
func (c *Client) call(ctx context.Context, op string, attempts int, build requestFunc, out any) error {
	var delay time.Duration
	for attempt := 1; ; attempt++ {
		err := c.once(ctx, op, build, out)
		if err == nil {
			return nil
		}
		var retry *retryableError
		if !errors.As(err, &retry) {
			return err
		}
		if attempts > 0 && attempt >= attempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, retry.err)
		}

		delay = nextBackoff(delay, c.backoffBase, c.backoffMax, nil)
		c.logger.Warn("controller request failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", retry.err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func (c *Client) once(ctx context.Context, op string, build requestFunc, out any) error {
	req, err := build(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &retryableError{err: fmt.Errorf("%s: %w", op, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &retryableError{err: fmt.Errorf("%s: read response: %w", op, err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		if out == nil || len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return &retryableError{err: &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}}
	default:
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
}

// errorMessage extracts {"error": ...} or {"msg": ...} from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Msg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
