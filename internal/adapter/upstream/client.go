package upstream

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/util"
)

const (
	DefaultStreamBufferSize = 8 * 1024

	DefaultSetNoDelay         = true
	DefaultDisableCompression = false

	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 60 * time.Second

	DefaultMaxIdleConns    = 20
	DefaultMaxConnsPerHost = 8

	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// Client is the pooled HTTP client for the single backend. One instance is
// shared by every handler; connections are reused across requests.
type Client struct {
	baseURL   *url.URL
	transport *http.Transport
	timeouts  config.TimeoutConfig
	logger    logger.StyledLogger
}

func NewClient(cfg config.UpstreamConfig, timeouts config.TimeoutConfig, log logger.StyledLogger) (*Client, error) {
	baseURL, err := url.Parse(util.NormaliseBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, domain.NewUpstreamError("configure", cfg.BaseURL, 0, 0, err)
	}

	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConns
	}
	maxPerHost := cfg.MaxConnsPerHost
	if maxPerHost <= 0 {
		maxPerHost = DefaultMaxConnsPerHost
	}
	idleTimeout := cfg.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleConnTimeout
	}
	connectTimeout := timeouts.UpstreamConnect
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	// TCP tuning for token streaming: Nagle's algorithm batches small writes,
	// which turns per-token chunks into bursty output.
	transport := &http.Transport{
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxPerHost,
		MaxConnsPerHost:     maxPerHost,
		IdleConnTimeout:     idleTimeout,
		DisableCompression:  DefaultDisableCompression,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: DefaultKeepAlive,
			}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if terr := tcpConn.SetNoDelay(DefaultSetNoDelay); terr != nil {
					log.Warn("failed to set NoDelay", "err", terr)
				}
			}
			return conn, nil
		},
	}

	return &Client{
		baseURL:   baseURL,
		transport: transport,
		timeouts:  timeouts,
		logger:    log,
	}, nil
}

// Forward sends one request to the backend. Transport failures come back as
// *domain.UpstreamError; HTTP error statuses come back on the handle for the
// caller to relay.
func (c *Client) Forward(ctx context.Context, req ports.UpstreamRequest) (*ports.ResponseHandle, error) {
	target := c.targetURL(req.Path, req.RawQuery)

	// Streaming responses are open-ended; the total-body timeout only applies
	// to calls that buffer the whole response.
	var reqCtx context.Context
	var cancel context.CancelFunc
	if !req.Streaming && c.timeouts.UpstreamResponse > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeouts.UpstreamResponse)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, target.String(), req.Body)
	if err != nil {
		cancel()
		return nil, domain.NewUpstreamError("build_request", target.String(), 0, 0, err)
	}

	if req.Header != nil {
		httpReq.Header = req.Header
	}

	c.logger.Debug("forwarding to upstream", "method", req.Method, "target", target.String(), "streaming", req.Streaming)

	start := time.Now()
	resp, err := c.transport.RoundTrip(httpReq)
	if err != nil {
		cancel()
		return nil, domain.NewUpstreamError("round_trip", target.String(), 0, time.Since(start), err)
	}

	return ports.NewResponseHandle(resp.StatusCode, resp.Header, resp.Body, cancel), nil
}

// targetURL joins the request path onto the configured base. Bases with a
// path prefix keep that prefix rather than letting an absolute request path
// discard it.
func (c *Client) targetURL(reqPath, rawQuery string) *url.URL {
	u := *c.baseURL

	if u.Path == "" || u.Path == "/" {
		u.Path = reqPath
	} else {
		u.Path = path.Join(u.Path, strings.TrimPrefix(reqPath, "/"))
	}

	u.RawQuery = rawQuery
	u.Fragment = ""

	return &u
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle pooled connections. In-flight requests are unaffected.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}
