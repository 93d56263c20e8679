package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrTransport wraps every failure to obtain an origin response.
var ErrTransport = errors.New("upstream: transport error")

// Request describes one outbound fetch.
type Request struct {
	Method        string
	URL           string
	Header        http.Header
	Body          io.Reader
	ContentLength int64

	// ForwardedFor is the caller's address; set as X-Forwarded-For when
	// non-empty.
	ForwardedFor string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an outbound client with the given configuration.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.WithDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport:     defaultTransport(cfg),
			CheckRedirect: noRedirect,
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("upstream"),
	}
}

// Forward sends req to its URL and returns the origin response. The caller
// must close the response body. The configured timeout covers reading the
// body as well, so it is released together with the body.
func (c *Client) Forward(parentCtx context.Context, req *Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrTransport)
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)

	retryable := req.Body == nil || req.Body == http.NoBody
	doOnce := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := c.build(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(httpReq)
	}

	start := time.Now()
	var (
		resp *http.Response
		err  error
	)
	if retryable {
		resp, err = c.doWithRetry(ctx, doOnce)
	} else {
		resp, err = doOnce(ctx)
	}
	if err != nil {
		cancel()
		c.logger.Warn("upstream request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.logger.Debug("upstream response",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	body := req.Body
	if body == nil {
		body = http.NoBody
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build HTTP request: %w", err)
	}

	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if body != http.NoBody {
		httpReq.ContentLength = req.ContentLength
	}
	if req.ForwardedFor != "" {
		httpReq.Header.Set("X-Forwarded-For", req.ForwardedFor)
	}
	return httpReq, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
