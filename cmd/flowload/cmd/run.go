package cmd

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/flow-db/flowload/internal/common/app"
	"github.com/flow-db/flowload/internal/common/flowcontext"
	"github.com/flow-db/flowload/internal/common/logging"
	"github.com/flow-db/flowload/internal/common/serve"
	"github.com/flow-db/flowload/internal/loader/configuration"
	"github.com/flow-db/flowload/internal/loader/history"
	"github.com/flow-db/flowload/internal/loader/metrics"
	"github.com/flow-db/flowload/internal/loader/runner"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Configure a stream and ingest generated records into it",
		Long: `Configure a stream, then ingest totalRecords generated records into it in batches of batchSize,
with up to maxConcurrency batches in flight, once per pass.

Failed batches are reported in the pass summary and do not stop the run.
An interrupted run prints the passes it ran and exits with status 130.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configuration.Load(viper.GetViper())
			if err != nil {
				return err
			}
			ctx := flowcontext.New(app.CreateContextWithShutdown(), log.NewEntry(log.StandardLogger()))
			return runLoadTest(ctx, config, cmd.OutOrStdout())
		},
	}
	addLoadTestFlags(cmd.Flags())
	return cmd
}

func addLoadTestFlags(flags *pflag.FlagSet) {
	defaults := configuration.Default()
	flags.String("streamName", defaults.StreamName, "stream to configure and ingest into")
	flags.String("schemaFile", "", "YAML or JSON stream configuration, the built-in cars stream if empty")
	flags.Int("totalRecords", defaults.TotalRecords, "records ingested per pass")
	flags.Int("batchSize", defaults.BatchSize, "records per request")
	flags.Int("passes", defaults.Passes, "number of times the full record range is ingested")
	flags.Int("maxConcurrency", defaults.MaxConcurrency, "maximum number of requests in flight")
	flags.Int("maxRetries", defaults.MaxRetries, "retries of a batch after a timeout, 408, 429 or 5xx response")
	flags.Duration("retryBackoff", defaults.RetryBackoff, "delay before the first retry, doubled on each further retry")
	flags.Duration("maxRetryBackoff", defaults.MaxRetryBackoff, "upper bound of the retry delay, zero for none")
	flags.String("strategy", string(defaults.Strategy), "record generation strategy: deterministic or randomized")
	flags.Uint64("seed", 0, "seed of the randomized strategy, zero for a different sequence on every run")
	flags.String("constants", "", `fixed field values as a JSON object, e.g. '{"type":"cars"}'`)
	flags.Bool("validateRecords", false, "check every generated record against the full JSON schema before sending it")
	flags.Bool("checkHealth", defaults.CheckHealth, "probe the health endpoint before configuring the stream")
	flags.String("output", "", "write the run result to this file as JSON")
	flags.String("historyDb", "", "append the run to this sqlite database")
	flags.Uint16("metricsPort", 0, "serve Prometheus metrics on this port during the run")
}

// runLoadTest runs the load test described by config and prints its pass summaries to out.
// A cancelled run is still reported and recorded before its error is returned.
func runLoadTest(ctx *flowcontext.Context, config configuration.LoadTestConfig, out io.Writer) error {
	var m *metrics.Metrics
	if config.MetricsPort != 0 {
		if err := logging.InstallPrometheusHook(log.StandardLogger()); err != nil {
			return err
		}
		m = metrics.NewMetrics(prometheus.DefaultRegisterer)
		shutdown := serve.ServeMetrics(config.MetricsPort)
		defer shutdown()
	}

	r, err := runner.NewForConfig(config, m)
	if err != nil {
		return err
	}
	result, runErr := r.Run(ctx, config)
	if result == nil || len(result.Summaries) == 0 {
		return runErr
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, runner.FormatSummaries(result.Summaries))
	fmt.Fprintln(out, runner.FormatOutcome(result))

	if config.Output != "" {
		if err := result.WriteFile(config.Output); err != nil {
			log.WithError(err).Error("failed writing run result")
		} else {
			log.Infof("run result written to %s", config.Output)
		}
	}
	if config.HistoryDb != "" {
		if err := recordRun(ctx, config.HistoryDb, result); err != nil {
			log.WithError(err).Error("failed recording run history")
		}
	}
	return runErr
}

func recordRun(ctx *flowcontext.Context, dbPath string, result *runner.Result) error {
	// The run context may already be cancelled, the history of a cancelled run is still wanted.
	recordCtx := flowcontext.Detached(ctx)
	repository, err := history.Open(recordCtx, dbPath)
	if err != nil {
		return err
	}
	defer repository.Close()
	return repository.RecordRun(recordCtx, result.HistoryRun(), result.Summaries)
}
