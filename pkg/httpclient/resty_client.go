package httpclient

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// Package httpclient centralizes outbound HTTP client construction so every
// caller shares the same timeout discipline.

// NewRestyHTTPClient returns a configured resty.Client with the specified timeout.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetTimeout(timeout)
	return c
}
