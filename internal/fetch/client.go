package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 5 * time.Second
	// DefaultDelay is the minimum interval between two requests to one domain.
	DefaultDelay = 100 * time.Millisecond
	// DefaultMaxRedirects is the number of redirect hops followed per request.
	DefaultMaxRedirects = 5
	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 5 * 1024 * 1024
	// DefaultUserAgent identifies the crawler to site operators.
	DefaultUserAgent = "LeadCrawler/1.0 (+https://github.com/nao1215/leadcrawler)"
)

// Response is a successfully fetched and decoded page.
type Response struct {
	// StatusCode is the final HTTP status code.
	StatusCode int
	// URL is the final URL after redirects.
	URL string
	// ContentType is the media type without parameters.
	ContentType string
	// Body is the UTF-8 decoded body.
	Body string
	// Truncated is set when the body exceeded the size cap.
	Truncated bool
}

// Client fetches pages for one crawl job.
// It is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	transport    *http.Transport
	timeout      time.Duration
	delay        time.Duration
	maxRedirects int
	maxBodySize  int64
	userAgent    string
	cookie       string
	headers      map[string]string
	proxyAddress string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDelay sets the politeness delay between requests to the same domain.
// Zero disables the delay.
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

// WithMaxRedirects sets how many redirects are followed.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		c.maxRedirects = n
	}
}

// WithMaxBodySize sets the response body cap in bytes.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCookie sets a Cookie header value sent with every request.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithProxy routes all requests through a SOCKS5 proxy at host:port.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// NewClient builds a Client. It fails only for an invalid proxy address.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:      DefaultTimeout,
		delay:        DefaultDelay,
		maxRedirects: DefaultMaxRedirects,
		maxBodySize:  DefaultMaxBodySize,
		userAgent:    DefaultUserAgent,
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.transport = &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: c.timeout,
	}
	if c.proxyAddress != "" {
		dial, err := socks5DialContext(c.proxyAddress)
		if err != nil {
			return nil, err
		}
		c.transport.DialContext = dial
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	rt := &headerInjectingTransport{
		base:      c.transport,
		userAgent: c.userAgent,
		cookie:    c.cookie,
		headers:   c.headers,
	}

	c.httpClient = &http.Client{
		Transport: rt,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > c.maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
	return c, nil
}

func socks5DialContext(address string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if !isValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// Get waits for the domain's politeness slot and fetches rawURL.
// Cancellation of ctx is returned as ctx.Err(); every other failure is an *Error.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindConnection, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnection, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // drain for connection reuse
		return nil, &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, URL: rawURL}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(rawURL, err)
	}
	truncated := int64(len(raw)) > c.maxBodySize
	if truncated {
		raw = raw[:c.maxBodySize]
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(raw)
	}
	body, mediaType, err := decodeBody(raw, contentType)
	if err != nil {
		return nil, &Error{Kind: KindDecode, URL: rawURL, Err: err}
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		URL:         resp.Request.URL.String(),
		ContentType: mediaType,
		Body:        body,
		Truncated:   truncated,
	}, nil
}

// Close releases idle connections held by the transport.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	domain, err := urlnorm.DomainKey(rawURL)
	if err != nil {
		domain = rawURL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[domain]
	if !ok {
		limit := rate.Inf
		if c.delay > 0 {
			limit = rate.Every(c.delay)
		}
		l = rate.NewLimiter(limit, 1)
		c.limiters[domain] = l
	}
	return l
}

// decodeBody converts raw to UTF-8 according to contentType and the
// document's own meta charset declaration.
func decodeBody(raw []byte, contentType string) (body, mediaType string, err error) {
	mediaType, _, err = mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	if !isTextual(mediaType) {
		return "", mediaType, fmt.Errorf("%w: %s", ErrNotText, mediaType)
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return "", mediaType, fmt.Errorf("%w: binary content", ErrNotText)
	}

	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", mediaType, fmt.Errorf("charset: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", mediaType, fmt.Errorf("charset: %w", err)
	}
	return string(decoded), mediaType, nil
}

func isTextual(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/xml":
		return true
	}
	return false
}

func classifyTransportError(rawURL string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &Error{Kind: KindConnection, URL: rawURL, Err: err}
}

// headerInjectingTransport sets the user agent and the per-site cookie and
// headers on every request, including redirected ones.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
