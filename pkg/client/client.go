package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/pkg/api"
)

// Bytes of an error response body kept on ResponseError.
const maxErrorBodyBytes = 512

// RequestIdHeader carries a per-request identifier so service logs can be correlated with driver logs.
const RequestIdHeader = "X-Request-Id"

// ResponseError is returned when the service answers with a non-2xx status.
type ResponseError struct {
	Method     string
	Url        string
	StatusCode int
	// Start of the response body, truncated
	Body string
}

func (e *ResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Url, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Url, e.StatusCode, e.Body)
}

// Client talks to the ingestion and query API of a flow-db service.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(config *ApiConnectionDetails) (*Client, error) {
	return NewClientWithHttpClient(config, CreateHttpClient(config))
}

func NewClientWithHttpClient(config *ApiConnectionDetails, httpClient *http.Client) (*Client, error) {
	base, err := config.baseUrl()
	if err != nil {
		return nil, err
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{base: base, httpClient: httpClient, timeout: timeout}, nil
}

// Endpoint returns the absolute url of an API route, escaping each path element.
func (c *Client) Endpoint(elem ...string) string {
	escaped := make([]string, len(elem))
	for i, e := range elem {
		escaped[i] = url.PathEscape(e)
	}
	return c.base.JoinPath(escaped...).String()
}

// Health checks the service reports itself as up.
func (c *Client) Health(ctx context.Context) error {
	status := api.HealthStatus{}
	if err := c.doJson(ctx, http.MethodGet, c.Endpoint("health"), nil, &status); err != nil {
		return err
	}
	if status.Status != api.HealthStatusUp {
		return errors.Errorf("service reports status %q", status.Status)
	}
	return nil
}

// ApplyConfiguration replaces the set of configured streams.
func (c *Client) ApplyConfiguration(ctx context.Context, command api.ConfigurationCommand) error {
	return c.doJson(ctx, http.MethodPost, c.Endpoint("configurations"), command, nil)
}

// CurrentConfiguration returns the names of the configured streams.
func (c *Client) CurrentConfiguration(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.doJson(ctx, http.MethodGet, c.Endpoint("configurations", "current"), nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) GetSchema(ctx context.Context, stream string) (api.Schema, error) {
	schema := api.Schema{}
	err := c.doJson(ctx, http.MethodGet, c.Endpoint("data-streams", stream, "schema"), nil, &schema)
	return schema, err
}

// GetRecent returns up to api.MaxRecentDocuments of the most recently ingested documents.
func (c *Client) GetRecent(ctx context.Context, stream string, order api.RecentOrder) ([]api.Document, error) {
	if order == "" {
		order = api.Descending
	}
	if order != api.Ascending && order != api.Descending {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{
			Name:    "order",
			Value:   order,
			Message: fmt.Sprintf("must be %s or %s", api.Ascending, api.Descending),
		})
	}
	endpoint := c.Endpoint("data-streams", stream, "recent") + "?" + url.Values{"order": {string(order)}}.Encode()
	var documents []api.Document
	if err := c.doJson(ctx, http.MethodGet, endpoint, nil, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

// GetRecentWithSchema fetches the schema and the recent documents of a stream concurrently.
func (c *Client) GetRecentWithSchema(ctx context.Context, stream string, order api.RecentOrder) (api.Schema, []api.Document, error) {
	var schema api.Schema
	var documents []api.Document
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schema, err = c.GetSchema(ctx, stream)
		return err
	})
	g.Go(func() error {
		var err error
		documents, err = c.GetRecent(ctx, stream, order)
		return err
	})
	if err := g.Wait(); err != nil {
		return api.Schema{}, nil, err
	}
	return schema, documents, nil
}

func (c *Client) GetDocument(ctx context.Context, stream string, id string) (api.Document, error) {
	document := api.Document{}
	err := c.doJson(ctx, http.MethodGet, c.Endpoint("data-streams", stream, "documents", id), nil, &document)
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return nil, errors.WithStack(&flowerrors.ErrNotFound{Type: "document", Value: id})
	}
	if err != nil {
		return nil, err
	}
	return document, nil
}

// Search runs a field:value query. The query is checked locally, since the service can't report a malformed one.
func (c *Client) Search(ctx context.Context, request api.SearchRequest) ([]api.Document, error) {
	if request.DataStream == "" {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "dataStream", Value: "", Message: "must be set"})
	}
	if _, err := api.ParseSearchQuery(request.Query); err != nil {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "query", Value: request.Query, Message: err.Error()})
	}
	if request.MaxResults != nil && *request.MaxResults < 1 {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "maxResults", Value: *request.MaxResults, Message: "must be at least 1"})
	}
	var documents []api.Document
	if err := c.doJson(ctx, http.MethodPost, c.Endpoint("search"), request, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

// PostDocuments sends an already encoded JSON array of records to a stream in a single request.
// It doesn't retry and doesn't apply the client timeout: the caller owns the deadline through ctx.
// It returns the response status. Non-2xx responses are returned as *ResponseError, any other error is a transport error.
func (c *Client) PostDocuments(ctx context.Context, stream string, body []byte, requestId string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint("data-streams", stream, "documents"), bytes.NewReader(body))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestId != "" {
		req.Header.Set(RequestIdHeader, requestId)
	}
	return c.send(req, nil)
}

func (c *Client) doJson(ctx context.Context, method string, endpoint string, in interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.WithStack(err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.WithStack(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	_, err = c.send(req, out)
	return err
}

func (c *Client) send(req *http.Request, out interface{}) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		// Drain so the connection goes back to the pool.
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, errors.WithStack(&ResponseError{
			Method:     req.Method,
			Url:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(head)),
		})
	}

	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, errors.WithStack(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, errors.Wrapf(err, "decoding response of %s %s", req.Method, req.URL)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
