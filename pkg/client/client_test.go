package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/pkg/api"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	c, err := NewClient(&ApiConnectionDetails{Url: server.URL, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func writeJson(t *testing.T, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient_InvalidUrl(t *testing.T) {
	tests := map[string]string{
		"bad scheme":   "ftp://localhost:8080",
		"missing host": "http://",
		"unparseable":  "http://[::1",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient(&ApiConnectionDetails{Url: raw})
			var invalid *flowerrors.ErrInvalidArgument
			require.True(t, errors.As(err, &invalid), "expected invalid argument, got %v", err)
			assert.Equal(t, "url", invalid.Name)
		})
	}
}

func TestEndpoint(t *testing.T) {
	tests := map[string]struct {
		details ApiConnectionDetails
		elem    []string
		want    string
	}{
		"default prefix": {
			details: ApiConnectionDetails{Url: "http://localhost:8080"},
			elem:    []string{"data-streams", "cars", "documents"},
			want:    "http://localhost:8080/api/data-streams/cars/documents",
		},
		"root prefix": {
			details: ApiConnectionDetails{Url: "http://localhost:8080", ApiPrefix: "/"},
			elem:    []string{"configurations"},
			want:    "http://localhost:8080/configurations",
		},
		"escaped element": {
			details: ApiConnectionDetails{Url: "http://localhost:8080/", ApiPrefix: "v1/api/"},
			elem:    []string{"data-streams", "my stream", "schema"},
			want:    "http://localhost:8080/v1/api/data-streams/my%20stream/schema",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := NewClient(&tc.details)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Endpoint(tc.elem...))
		})
	}
}

func TestApplyConfiguration(t *testing.T) {
	var received api.ConfigurationCommand
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/configurations", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	})
	c := newTestClient(t, mux)

	command := api.ConfigurationCommand{DataStreams: []api.StreamConfiguration{api.DefaultStreamConfiguration()}}
	require.NoError(t, c.ApplyConfiguration(context.Background(), command))
	assert.Equal(t, command, received)
}

func TestApplyConfiguration_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/configurations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad schema"}` + strings.Repeat(" ", 2000)))
	})
	c := newTestClient(t, mux)

	err := c.ApplyConfiguration(context.Background(), api.ConfigurationCommand{})
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	assert.Equal(t, `{"error":"bad schema"}`, respErr.Body)
	assert.Equal(t, http.MethodPost, respErr.Method)
}

func TestCurrentConfiguration(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/configurations/current", func(w http.ResponseWriter, r *http.Request) {
		writeJson(t, w, []string{"cars", "trucks"})
	})
	c := newTestClient(t, mux)

	names, err := c.CurrentConfiguration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cars", "trucks"}, names)
}

func TestHealth(t *testing.T) {
	status := api.HealthStatusUp
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJson(t, w, api.HealthStatus{Status: status})
	})
	c := newTestClient(t, mux)

	assert.NoError(t, c.Health(context.Background()))
	status = "DOWN"
	assert.Error(t, c.Health(context.Background()))
}

func TestGetSchema(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data-streams/{name}/schema", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cars", r.PathValue("name"))
		writeJson(t, w, api.DefaultStreamConfiguration().Schema)
	})
	c := newTestClient(t, mux)

	schema, err := c.GetSchema(context.Background(), "cars")
	require.NoError(t, err)
	assert.Equal(t, api.DefaultStreamConfiguration().Schema.FieldNames(), schema.FieldNames())
	assert.Equal(t, api.TypeInteger, schema.Properties["quantity"].Type)
}

func TestGetRecent(t *testing.T) {
	var order string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data-streams/{name}/recent", func(w http.ResponseWriter, r *http.Request) {
		order = r.URL.Query().Get("order")
		writeJson(t, w, []api.Document{{"_id": 2, "owner": "Hello-2"}, {"_id": 1, "owner": "Hello-1"}})
	})
	c := newTestClient(t, mux)

	documents, err := c.GetRecent(context.Background(), "cars", "")
	require.NoError(t, err)
	assert.Equal(t, "DESC", order)
	require.Len(t, documents, 2)
	assert.Equal(t, "Hello-2", documents[0]["owner"])

	_, err = c.GetRecent(context.Background(), "cars", api.Ascending)
	require.NoError(t, err)
	assert.Equal(t, "ASC", order)
}

func TestGetRecent_InvalidOrder(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	c := newTestClient(t, mux)

	_, err := c.GetRecent(context.Background(), "cars", "SIDEWAYS")
	var invalid *flowerrors.ErrInvalidArgument
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "order", invalid.Name)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGetRecentWithSchema(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data-streams/{name}/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJson(t, w, api.DefaultStreamConfiguration().Schema)
	})
	mux.HandleFunc("GET /api/data-streams/{name}/recent", func(w http.ResponseWriter, r *http.Request) {
		writeJson(t, w, []api.Document{{"_id": 1}})
	})
	c := newTestClient(t, mux)

	schema, documents, err := c.GetRecentWithSchema(context.Background(), "cars", api.Descending)
	require.NoError(t, err)
	assert.Len(t, schema.Properties, 4)
	assert.Len(t, documents, 1)
}

func TestGetRecentWithSchema_SchemaFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data-streams/{name}/schema", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /api/data-streams/{name}/recent", func(w http.ResponseWriter, r *http.Request) {
		writeJson(t, w, []api.Document{})
	})
	c := newTestClient(t, mux)

	_, _, err := c.GetRecentWithSchema(context.Background(), "cars", api.Descending)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusInternalServerError, respErr.StatusCode)
}

func TestGetDocument(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data-streams/{name}/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJson(t, w, api.Document{"_id": 7, "owner": "Hello-7"})
	})
	c := newTestClient(t, mux)

	document, err := c.GetDocument(context.Background(), "cars", "7")
	require.NoError(t, err)
	assert.Equal(t, float64(7), document.Id())

	_, err = c.GetDocument(context.Background(), "cars", "8")
	var notFound *flowerrors.ErrNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "8", notFound.Value)
}

func TestSearch(t *testing.T) {
	var received api.SearchRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		writeJson(t, w, []api.Document{{"quality": "AAA"}})
	})
	c := newTestClient(t, mux)

	max := 5
	documents, err := c.Search(context.Background(), api.SearchRequest{DataStream: "cars", Query: "quality:AAA", MaxResults: &max})
	require.NoError(t, err)
	assert.Len(t, documents, 1)
	assert.Equal(t, "cars", received.DataStream)
	require.NotNil(t, received.MaxResults)
	assert.Equal(t, 5, *received.MaxResults)
}

func TestSearch_InvalidRequest(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	c := newTestClient(t, mux)

	zero := 0
	tests := map[string]struct {
		request api.SearchRequest
		field   string
	}{
		"no stream":      {api.SearchRequest{Query: "a:b"}, "dataStream"},
		"no colon":       {api.SearchRequest{DataStream: "cars", Query: "quality"}, "query"},
		"zero maxResult": {api.SearchRequest{DataStream: "cars", Query: "a:b", MaxResults: &zero}, "maxResults"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Search(context.Background(), tc.request)
			var invalid *flowerrors.ErrInvalidArgument
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tc.field, invalid.Name)
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestPostDocuments(t *testing.T) {
	var body []byte
	var requestId string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/data-streams/{name}/documents", func(w http.ResponseWriter, r *http.Request) {
		var err error
		body, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		requestId = r.Header.Get(RequestIdHeader)
		w.WriteHeader(http.StatusCreated)
	})
	c := newTestClient(t, mux)

	status, err := c.PostDocuments(context.Background(), "cars", []byte(`[{"owner":"Hello-0"}]`), "abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `[{"owner":"Hello-0"}]`, string(body))
	assert.Equal(t, "abc", requestId)
}

func TestPostDocuments_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NewServeMux())
	c, err := NewClient(&ApiConnectionDetails{Url: server.URL})
	require.NoError(t, err)
	server.Close()

	_, err = c.PostDocuments(context.Background(), "cars", []byte(`[]`), "")
	require.Error(t, err)
	var respErr *ResponseError
	assert.False(t, errors.As(err, &respErr))
}

func TestCreateHttpClient_BoundsConnections(t *testing.T) {
	httpClient := CreateHttpClient(&ApiConnectionDetails{MaxConnections: 4})
	transport, ok := httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 4, transport.MaxConnsPerHost)
	assert.Equal(t, 4, transport.MaxIdleConnsPerHost)

	transport = CreateHttpClient(&ApiConnectionDetails{}).Transport.(*http.Transport)
	assert.Equal(t, defaultMaxConnections, transport.MaxConnsPerHost)
}
