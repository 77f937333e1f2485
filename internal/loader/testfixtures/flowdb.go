// Package testfixtures provides an in-memory flow-db service for exercising the load tester over real HTTP.
package testfixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/flow-db/flowload/internal/loader/generator"
	"github.com/flow-db/flowload/pkg/api"
)

// DocumentsRequest describes one POST of documents, as seen by the fake service.
type DocumentsRequest struct {
	Stream  string
	Records []api.Record
	// Arrival order of the request, starting at zero
	Sequence  int
	RequestId string
}

// FirstQuantity returns the quantity field of the first record as an int, or -1 if there is none.
// Deterministic records carry their global index in quantity, so this identifies the batch.
func (r DocumentsRequest) FirstQuantity() int {
	if len(r.Records) == 0 {
		return -1
	}
	return Quantity(r.Records[0])
}

// Quantity reads the quantity field of a record decoded from JSON.
func Quantity(record api.Record) int {
	switch v := record["quantity"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return -1
	}
}

// FlowDb is a fake flow-db service. Configure the exported fields before sending requests.
type FlowDb struct {
	// Status returned for a documents request instead of storing them, zero to accept the request.
	RespondWith func(r DocumentsRequest) int
	// Delay before answering a documents request
	Latency time.Duration
	// Status returned for configuration requests instead of applying them, zero to accept
	RejectConfiguration int
	// Alters the schema reported back for a stream, to simulate a service that doesn't apply what it's sent
	ReportSchema func(name string, schema api.Schema) api.Schema
	// Health status reported, api.HealthStatusUp if empty
	HealthStatus string
	// Accept documents requests for configured streams without validating or storing the documents
	DiscardDocuments bool

	server *httptest.Server

	mu                    sync.Mutex
	streams               map[string]api.Schema
	validators            map[string]*generator.JsonSchemaValidator
	documents             map[string][]api.Document
	requests              []DocumentsRequest
	configurationRequests int
	nextId                int
	inFlight              int
	peakInFlight          int
}

func NewFlowDb() *FlowDb {
	f := &FlowDb{
		streams:    map[string]api.Schema{},
		validators: map[string]*generator.JsonSchemaValidator{},
		documents:  map[string][]api.Document{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", f.health)
	mux.HandleFunc("POST /api/configurations", f.applyConfiguration)
	mux.HandleFunc("GET /api/configurations/current", f.currentConfiguration)
	mux.HandleFunc("POST /api/data-streams/{name}/documents", f.postDocuments)
	mux.HandleFunc("GET /api/data-streams/{name}/documents/{id}", f.getDocument)
	mux.HandleFunc("GET /api/data-streams/{name}/schema", f.getSchema)
	mux.HandleFunc("GET /api/data-streams/{name}/recent", f.getRecent)
	mux.HandleFunc("POST /api/search", f.search)
	f.server = httptest.NewUnstartedServer(mux)
	return f
}

// Start must be called after the exported fields are set.
func (f *FlowDb) Start() *FlowDb {
	f.server.Start()
	return f
}

func (f *FlowDb) Close() {
	f.server.Close()
}

func (f *FlowDb) Url() string {
	return f.server.URL
}

// Requests returns every documents request received so far, in arrival order.
func (f *FlowDb) Requests() []DocumentsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

func (f *FlowDb) ConfigurationRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configurationRequests
}

// PeakInFlight is the highest number of documents requests being served at the same time.
func (f *FlowDb) PeakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakInFlight
}

// Documents returns the stored documents of a stream in ingestion order.
func (f *FlowDb) Documents(stream string) []api.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.documents[stream])
}

func (f *FlowDb) health(w http.ResponseWriter, _ *http.Request) {
	status := f.HealthStatus
	if status == "" {
		status = api.HealthStatusUp
	}
	writeJson(w, http.StatusOK, api.HealthStatus{Status: status})
}

func (f *FlowDb) applyConfiguration(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.configurationRequests++
	f.mu.Unlock()

	if f.RejectConfiguration != 0 {
		writeJson(w, f.RejectConfiguration, map[string]string{"error": "configuration rejected"})
		return
	}
	command := api.ConfigurationCommand{}
	if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
		writeJson(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	validators := map[string]*generator.JsonSchemaValidator{}
	for _, stream := range command.DataStreams {
		validator, err := generator.NewJsonSchemaValidator(stream.Schema)
		if err != nil {
			writeJson(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		validators[stream.Name] = validator
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = map[string]api.Schema{}
	for _, stream := range command.DataStreams {
		f.streams[stream.Name] = stream.Schema
	}
	f.validators = validators
	w.WriteHeader(http.StatusAccepted)
}

func (f *FlowDb) currentConfiguration(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	names := make([]string, 0, len(f.streams))
	for name := range f.streams {
		names = append(names, name)
	}
	f.mu.Unlock()
	slices.Sort(names)
	writeJson(w, http.StatusOK, names)
}

func (f *FlowDb) postDocuments(w http.ResponseWriter, r *http.Request) {
	stream := r.PathValue("name")
	records, err := decodeRecords(r)
	if err != nil {
		writeJson(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.mu.Lock()
	request := DocumentsRequest{Stream: stream, Records: records, Sequence: len(f.requests), RequestId: r.Header.Get("X-Request-Id")}
	f.requests = append(f.requests, request)
	f.inFlight++
	if f.inFlight > f.peakInFlight {
		f.peakInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Latency > 0 {
		time.Sleep(f.Latency)
	}
	if f.RespondWith != nil {
		if status := f.RespondWith(request); status != 0 {
			writeJson(w, status, map[string]string{"error": "injected failure"})
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	validator, ok := f.validators[stream]
	if !ok {
		writeJson(w, http.StatusNotFound, map[string]string{"error": "unknown stream " + stream})
		return
	}
	if f.DiscardDocuments {
		writeJson(w, http.StatusCreated, map[string]string{"_id": "todo"})
		return
	}
	for _, record := range records {
		if err := validator.Validate(record); err != nil {
			writeJson(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	now := time.Now().Unix()
	for _, record := range records {
		document := api.Document{}
		for k, v := range record {
			document[k] = v
		}
		document[api.IdField] = f.nextId
		document[api.DataStreamField] = stream
		document[api.TimestampField] = now
		f.nextId++
		f.documents[stream] = append(f.documents[stream], document)
	}
	writeJson(w, http.StatusCreated, map[string]string{"_id": "todo"})
}

// decodeRecords accepts either a single record or an array of records.
func decodeRecords(r *http.Request) ([]api.Record, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		record := api.Record{}
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, err
		}
		return []api.Record{record}, nil
	}
	var records []api.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (f *FlowDb) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJson(w, http.StatusNotFound, map[string]string{"error": "no such document"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, document := range f.documents[r.PathValue("name")] {
		if document[api.IdField] == id {
			writeJson(w, http.StatusOK, document)
			return
		}
	}
	writeJson(w, http.StatusNotFound, map[string]string{"error": "no such document"})
}

func (f *FlowDb) getSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f.mu.Lock()
	schema, ok := f.streams[name]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if f.ReportSchema != nil {
		schema = f.ReportSchema(name, schema)
	}
	writeJson(w, http.StatusOK, schema)
}

func (f *FlowDb) getRecent(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	documents := slices.Clone(f.documents[r.PathValue("name")])
	f.mu.Unlock()

	if r.URL.Query().Get("order") == string(api.Descending) {
		for i, j := 0, len(documents)-1; i < j; i, j = i+1, j-1 {
			documents[i], documents[j] = documents[j], documents[i]
		}
	}
	if len(documents) > api.MaxRecentDocuments {
		documents = documents[:api.MaxRecentDocuments]
	}
	writeJson(w, http.StatusOK, documents)
}

func (f *FlowDb) search(w http.ResponseWriter, r *http.Request) {
	request := api.SearchRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJson(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	terms, err := api.ParseSearchQuery(request.Query)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	maxResults := api.DefaultMaxSearchResults
	if request.MaxResults != nil {
		maxResults = *request.MaxResults
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	results := []api.Document{}
	for _, document := range f.documents[request.DataStream] {
		if len(results) >= maxResults {
			break
		}
		for _, term := range terms {
			if valueString(document[term.Field]) == term.Value {
				results = append(results, document)
				break
			}
		}
	}
	writeJson(w, http.StatusOK, results)
}

func valueString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	default:
		data, _ := json.Marshal(value)
		return string(data)
	}
}

func writeJson(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
