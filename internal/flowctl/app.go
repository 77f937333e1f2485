// Package flowctl implements the query commands of the flowload CLI: each App method fetches from a
// flow-db service and renders the answer to App.Out.
package flowctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/util"
	"github.com/flow-db/flowload/pkg/api"
	"github.com/flow-db/flowload/pkg/client"
)

// QueryAPI is the part of client.Client used by the query commands.
type QueryAPI interface {
	CurrentConfiguration(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, stream string) (api.Schema, error)
	GetRecent(ctx context.Context, stream string, order api.RecentOrder) ([]api.Document, error)
	GetRecentWithSchema(ctx context.Context, stream string, order api.RecentOrder) (api.Schema, []api.Document, error)
	GetDocument(ctx context.Context, stream string, id string) (api.Document, error)
	Search(ctx context.Context, request api.SearchRequest) ([]api.Document, error)
}

type App struct {
	Params *Params
	// Destination for command output
	Out io.Writer
}

type Params struct {
	ApiConnectionDetails *client.ApiConnectionDetails
	QueryAPI             QueryAPI
	// jq expression applied to JSON output, if set
	Filter string
}

// New returns an app writing to stdout. Its parameters are filled in by Initialise, or directly by tests.
func New() *App {
	return &App{
		Params: &Params{},
		Out:    os.Stdout,
	}
}

// Initialise connects the app to the service given by the connection details.
func (a *App) Initialise() error {
	c, err := client.NewClient(a.Params.ApiConnectionDetails)
	if err != nil {
		return err
	}
	a.Params.QueryAPI = c
	return nil
}

// Streams lists the configured streams.
func (a *App) Streams(ctx context.Context) error {
	names, err := a.Params.QueryAPI.CurrentConfiguration(ctx)
	if err != nil {
		return errors.WithMessage(err, "error getting current configuration")
	}
	if a.Params.Filter != "" {
		return a.printJson(names)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(a.Out, name)
	}
	return nil
}

// Schema prints the properties of a stream, one per row.
func (a *App) Schema(ctx context.Context, stream string) error {
	schema, err := a.Params.QueryAPI.GetSchema(ctx, stream)
	if err != nil {
		return errors.WithMessagef(err, "error getting schema of stream %s", stream)
	}
	if a.Params.Filter != "" {
		return a.printJson(schema)
	}
	fmt.Fprint(a.Out, FormatSchema(schema))
	return nil
}

// Recent prints the most recent documents of a stream as JSON. With withSchema, the schema is printed alongside.
func (a *App) Recent(ctx context.Context, stream string, order api.RecentOrder, withSchema bool) error {
	if !withSchema {
		documents, err := a.Params.QueryAPI.GetRecent(ctx, stream, order)
		if err != nil {
			return errors.WithMessagef(err, "error getting recent documents of stream %s", stream)
		}
		return a.printJson(documents)
	}
	schema, documents, err := a.Params.QueryAPI.GetRecentWithSchema(ctx, stream, order)
	if err != nil {
		return errors.WithMessagef(err, "error getting recent documents of stream %s", stream)
	}
	return a.printJson(map[string]interface{}{"schema": schema, "documents": documents})
}

func (a *App) Document(ctx context.Context, stream string, id string) error {
	document, err := a.Params.QueryAPI.GetDocument(ctx, stream, id)
	if err != nil {
		return errors.WithMessagef(err, "error getting document %s of stream %s", id, stream)
	}
	return a.printJson(document)
}

// Search prints the documents of a stream matching any term of query.
func (a *App) Search(ctx context.Context, stream string, query string, maxResults int) error {
	request := api.SearchRequest{DataStream: stream, Query: query}
	if maxResults != 0 {
		request.MaxResults = &maxResults
	}
	documents, err := a.Params.QueryAPI.Search(ctx, request)
	if err != nil {
		return errors.WithMessagef(err, "error searching stream %s", stream)
	}
	return a.printJson(documents)
}

// printJson writes v as indented JSON, or each result of the filter if one is set.
func (a *App) printJson(v interface{}) error {
	if a.Params.Filter == "" {
		return writeJson(a.Out, v)
	}
	filter, err := client.NewFilter(a.Params.Filter)
	if err != nil {
		return err
	}
	results, err := filter.Apply(v)
	if err != nil {
		return err
	}
	for _, result := range results {
		if s, ok := result.(string); ok {
			fmt.Fprintln(a.Out, s)
			continue
		}
		if err := writeJson(a.Out, result); err != nil {
			return err
		}
	}
	return nil
}

func writeJson(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return errors.WithStack(encoder.Encode(v))
}

// FormatSchema renders a schema as a table of its properties in name order.
func FormatSchema(schema api.Schema) string {
	table := util.NewTable("FIELD", "TYPE", "REQUIRED", "CONSTRAINTS")
	for _, name := range schema.FieldNames() {
		property := schema.Properties[name]
		table.Row(name, property.Type, schema.IsRequired(name), constraints(property))
	}
	return table.String()
}

func constraints(property api.Property) string {
	var parts []string
	if len(property.Enum) > 0 {
		values := make([]string, len(property.Enum))
		for i, v := range property.Enum {
			values[i] = fmt.Sprintf("%v", v)
		}
		parts = append(parts, "one of "+strings.Join(values, "|"))
	}
	if property.Minimum != nil {
		parts = append(parts, fmt.Sprintf(">= %v", *property.Minimum))
	}
	if property.Maximum != nil {
		parts = append(parts, fmt.Sprintf("<= %v", *property.Maximum))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
