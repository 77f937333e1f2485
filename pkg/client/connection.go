package client

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/flowerrors"
)

const (
	DefaultUrl            = "http://localhost:8080"
	DefaultApiPrefix      = "/api"
	DefaultRequestTimeout = 30 * time.Second
	defaultMaxConnections = 10
)

type ApiConnectionDetails struct {
	// Base url of the flow-db service, e.g. http://localhost:8080
	Url string
	// Path prefix of the API routes. Older deployments serve them at the root, use "/" for those.
	ApiPrefix string
	// Deadline for a single request, including reading the response
	RequestTimeout time.Duration
	// Upper bound on open connections to the service. Sized to the dispatch concurrency by the load tester.
	MaxConnections int
}

type ConnectionDetails func() *ApiConnectionDetails

func (c *ApiConnectionDetails) baseUrl() (*url.URL, error) {
	raw := c.Url
	if raw == "" {
		raw = DefaultUrl
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "url", Value: raw, Message: err.Error()})
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "url", Value: raw, Message: "scheme must be http or https"})
	}
	if u.Host == "" {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "url", Value: raw, Message: "host is missing"})
	}
	prefix := c.ApiPrefix
	if prefix == "" {
		prefix = DefaultApiPrefix
	}
	return u.JoinPath(strings.Trim(prefix, "/")), nil
}

// Validate checks the details describe a reachable http(s) endpoint.
func (c *ApiConnectionDetails) Validate() error {
	if _, err := c.baseUrl(); err != nil {
		return err
	}
	if c.RequestTimeout < 0 {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "requestTimeout", Value: c.RequestTimeout, Message: "must not be negative"})
	}
	return nil
}

// CreateHttpClient returns a client whose connection pool is bounded by MaxConnections,
// so concurrent dispatches reuse sockets rather than opening new ones.
func CreateHttpClient(config *ApiConnectionDetails) *http.Client {
	maxConnections := config.MaxConnections
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxConnections,
		MaxIdleConnsPerHost:   maxConnections,
		MaxConnsPerHost:       maxConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
