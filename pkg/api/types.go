package api

// Record is a single document as sent to a data stream: a mapping from field name to value.
type Record map[string]interface{}

// Reserved fields added by the service to every stored document.
const (
	IdField         = "_id"
	DataStreamField = "_dataStream"
	TimestampField  = "_timestamp"
)

// Document is a stored record, annotated with the reserved fields.
type Document map[string]interface{}

// Id returns the service assigned identifier of the document, or nil if it hasn't got one.
func (d Document) Id() interface{} {
	return d[IdField]
}

// Record returns a copy of the document without the reserved fields.
func (d Document) Record() Record {
	r := make(Record, len(d))
	for k, v := range d {
		switch k {
		case IdField, DataStreamField, TimestampField:
		default:
			r[k] = v
		}
	}
	return r
}

// StreamConfiguration names a data stream and the JSON schema its documents must satisfy.
type StreamConfiguration struct {
	Name   string `json:"name"`
	Schema Schema `json:"schema"`
}

// ConfigurationCommand is the body accepted by the configurations endpoint.
type ConfigurationCommand struct {
	DataStreams []StreamConfiguration `json:"dataStreams"`
}

// RecentOrder is the sort order of the recent documents endpoint.
type RecentOrder string

const (
	Ascending  RecentOrder = "ASC"
	Descending RecentOrder = "DESC"
)

// MaxRecentDocuments is the number of documents the recent endpoint returns at most.
const MaxRecentDocuments = 100

// SearchRequest is the body accepted by the search endpoint.
type SearchRequest struct {
	DataStream string `json:"dataStream"`
	Query      string `json:"query"`
	MaxResults *int   `json:"maxResults,omitempty"`
}

// DefaultMaxSearchResults is used by the service when a search doesn't set MaxResults.
const DefaultMaxSearchResults = 100

// HealthStatus is the body returned by the health endpoint.
type HealthStatus struct {
	Status string `json:"status"`
}

const HealthStatusUp = "UP"
