package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flow-db/flowload/internal/flowctl"
	"github.com/flow-db/flowload/pkg/api"
	"github.com/flow-db/flowload/pkg/client"
)

// initParams fills in the connection details and output options of a query command, then connects the app.
func initParams(cmd *cobra.Command, a *flowctl.App) error {
	a.Out = cmd.OutOrStdout()
	a.Params.ApiConnectionDetails = client.ExtractCommandlineApiConnectionDetails()
	filter, err := cmd.Flags().GetString("filter")
	if err != nil {
		return err
	}
	a.Params.Filter = filter
	return a.Initialise()
}

func addFilterFlag(cmd *cobra.Command) {
	cmd.Flags().String("filter", "", "jq expression applied to the JSON output, e.g. '.[]._id'")
}

func streamsCmd() *cobra.Command {
	a := flowctl.New()
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List the configured streams",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Streams(cmd.Context())
		},
	}
	addFilterFlag(cmd)
	return cmd
}

func schemaCmd() *cobra.Command {
	a := flowctl.New()
	cmd := &cobra.Command{
		Use:   "schema <stream>",
		Short: "Print the schema of a stream",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Schema(cmd.Context(), args[0])
		},
	}
	addFilterFlag(cmd)
	return cmd
}

func recentCmd() *cobra.Command {
	a := flowctl.New()
	cmd := &cobra.Command{
		Use:   "recent <stream>",
		Short: "Print the most recently ingested documents of a stream",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := cmd.Flags().GetString("order")
			if err != nil {
				return err
			}
			withSchema, err := cmd.Flags().GetBool("withSchema")
			if err != nil {
				return err
			}
			return a.Recent(cmd.Context(), args[0], api.RecentOrder(order), withSchema)
		},
	}
	cmd.Flags().String("order", string(api.Descending), "sort order: ASC or DESC")
	cmd.Flags().Bool("withSchema", false, "print the stream schema alongside the documents")
	addFilterFlag(cmd)
	return cmd
}

func documentCmd() *cobra.Command {
	a := flowctl.New()
	cmd := &cobra.Command{
		Use:   "document <stream> <id>",
		Short: "Print one document",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Document(cmd.Context(), args[0], args[1])
		},
	}
	addFilterFlag(cmd)
	return cmd
}

func searchCmd() *cobra.Command {
	a := flowctl.New()
	cmd := &cobra.Command{
		Use:   "search <stream> <query>",
		Short: "Print the documents of a stream matching a query",
		Long: `Print the documents of a stream matching a query of the form "field:value OR field:value".
A document matches if any of the terms matches.`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			maxResults, err := cmd.Flags().GetInt("maxResults")
			if err != nil {
				return err
			}
			return a.Search(cmd.Context(), args[0], args[1], maxResults)
		},
	}
	cmd.Flags().Int("maxResults", 0, "maximum number of documents returned, zero for the service default")
	addFilterFlag(cmd)
	return cmd
}
