package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/common/logging"
	"github.com/flow-db/flowload/pkg/client"
)

// Exit status of a run interrupted by SIGINT or SIGTERM, following the shell convention for SIGINT.
const exitCodeCancelled = 130

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "flowload",
		Short: "flowload drives batched ingestion load against a flow-db service and queries what it stored.",
		Long: `
flowload drives batched ingestion load against a flow-db service and queries what it stored.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:

url: http://localhost:8080
requestTimeout: 30s
totalRecords: 100000
batchSize: 1000
maxConcurrency: 20
constants:
  type: cars

The location of this file can be passed in using --config argument or picked from $HOME/.flowload.yaml.
Every option can also be set with a FLOWLOAD_ prefixed environment variable, e.g. FLOWLOAD_BATCHSIZE.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := client.LoadCommandlineArgsFromConfigFile(cfgFile); err != nil {
				return err
			}
			return logging.ConfigureLogging(viper.GetString("logLevel"), viper.GetString("logFormat"))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowload.yaml)")
	cmd.PersistentFlags().String("logLevel", "", "log level: debug, info, warn or error")
	cmd.PersistentFlags().String("logFormat", "", "log format: cli, text or json")
	_ = viper.BindPFlag("logLevel", cmd.PersistentFlags().Lookup("logLevel"))
	_ = viper.BindPFlag("logFormat", cmd.PersistentFlags().Lookup("logFormat"))
	client.AddApiConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		runCmd(),
		streamsCmd(),
		schemaCmd(),
		recentCmd(),
		documentCmd(),
		searchCmd(),
		historyCmd(),
	)

	return cmd
}

// Execute builds the root command and runs it. This is called by main.main().
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Debug("command failed")
		if flowerrors.IsFatal(err) {
			log.Errorf("aborted: %s", err)
		} else {
			log.Error(err)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if flowerrors.IsCancelled(err) {
		return exitCodeCancelled
	}
	return 1
}
