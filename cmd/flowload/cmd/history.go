package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/flowctl"
)

func historyCmd() *cobra.Command {
	a := flowctl.New()
	cmd := &cobra.Command{
		Use:   "history [runId]",
		Short: "List recorded runs, or print the pass summaries of one run",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			filter, err := cmd.Flags().GetString("filter")
			if err != nil {
				return err
			}
			a.Params.Filter = filter
			return viper.BindPFlag("historyDb", cmd.Flags().Lookup("historyDb"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := viper.GetString("historyDb")
			if dbPath == "" {
				return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "historyDb", Value: dbPath, Message: "must be set"})
			}
			if len(args) == 1 {
				return a.HistoryRun(cmd.Context(), dbPath, args[0])
			}
			limit, err := cmd.Flags().GetUint("limit")
			if err != nil {
				return err
			}
			return a.History(cmd.Context(), dbPath, limit)
		},
	}
	cmd.Flags().String("historyDb", "", "sqlite database written by run --historyDb")
	cmd.Flags().Uint("limit", 20, "number of runs listed, most recent first")
	addFilterFlag(cmd)
	return cmd
}
