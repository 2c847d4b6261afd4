package urlnorm

import "errors"

var (
	// ErrEmptyURL is returned when the input is empty after trimming.
	ErrEmptyURL = errors.New("empty URL")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrMissingHost is returned when the URL has no host component.
	ErrMissingHost = errors.New("URL has no host")
)
