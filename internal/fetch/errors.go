package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects is returned when a request exceeds the redirect limit.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrNotText is returned for responses that are not textual HTML.
	ErrNotText = errors.New("response is not text")

	// ErrInvalidProxyAddress is returned when the proxy address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyNotSOCKS5 is returned when the proxy does not speak SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when the proxy cannot be reached.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindTimeout is a request that exceeded its timeout.
	KindTimeout Kind = "timeout"
	// KindConnection covers DNS, TCP, TLS and redirect-loop failures.
	KindConnection Kind = "connection-error"
	// KindHTTP is a response with status 400 or above.
	KindHTTP Kind = "http-error"
	// KindDecode is a response whose body could not be decoded as text.
	KindDecode Kind = "decode-error"
)

// Error describes a failed fetch.
type Error struct {
	// Kind is the failure category.
	Kind Kind
	// StatusCode is set for KindHTTP.
	StatusCode int
	// URL is the requested URL.
	URL string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTP:
		return fmt.Sprintf("%s: %s: status %d", e.Kind, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
