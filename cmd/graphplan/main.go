// Command graphplan compiles graph query ASTs against a statistics snapshot
// and reports the phase order and cardinality estimates.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-graph/graph/compiler"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "graphplan: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the global flags.
type rootOptions struct {
	LogLevel     string
	LogFormat    string
	Config       string
	OTLPEndpoint string

	logger *logrus.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{logger: logrus.New()}

	cmd := &cobra.Command{
		Use:   "graphplan",
		Short: "Compile graph queries and estimate their cardinality",
		Long: `graphplan runs the phase-ordered compiler over query ASTs written as YAML
documents and prints the resulting phase order and row estimates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogging(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warning", "log level (trace|debug|info|warning|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "compiler options file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.OTLPEndpoint, "otlp-endpoint", "", "export compile traces to this OTLP/gRPC endpoint")

	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newPhasesCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func (o *rootOptions) setupLogging(w io.Writer) error {
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}
	o.logger.SetOutput(w)
	o.logger.SetLevel(level)

	switch o.LogFormat {
	case "text":
		o.logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		o.logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Newf("invalid --log-format %q: must be text or json", o.LogFormat)
	}
	return nil
}

// compilerOptions loads --config, or the defaults without one.
func (o *rootOptions) compilerOptions() (compiler.Options, error) {
	if o.Config == "" {
		return compiler.DefaultOptions(), nil
	}
	opts, err := compiler.LoadOptions(o.Config)
	if err != nil {
		return opts, err
	}
	o.logger.WithField("path", o.Config).Debug("loaded compiler options")
	return opts, nil
}
