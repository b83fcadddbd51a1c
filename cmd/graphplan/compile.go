package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wbrown/janus-graph/graph/annotations"
	"github.com/wbrown/janus-graph/graph/astio"
	"github.com/wbrown/janus-graph/graph/compiler"
	"github.com/wbrown/janus-graph/graph/stats"
)

type compileOptions struct {
	*rootOptions
	StatsFile  string
	DBPath     string
	Verbose    bool
	Check      bool
	NoEstimate bool
	Parallel   int
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "compile <query.yaml>...",
		Short: "Compile AST documents and print cardinality estimates",
		Long: `Compile every query document in the given files. Statistics come from a
YAML snapshot (--stats) or a badger statistics store (--db); without either the
documented defaults apply.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.StatsFile, "stats", "s", "", "statistics snapshot file (YAML)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "badger statistics store directory")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print compile annotations to stderr")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "assert phase conditions before and after every phase")
	cmd.Flags().BoolVar(&opts.NoEstimate, "no-estimate", false, "skip cardinality estimation")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "j", 4, "documents compiled concurrently")

	return cmd
}

func runCompile(ctx context.Context, opts *compileOptions, paths []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.StatsFile != "" && opts.DBPath != "" {
		return errors.New("--stats and --db are mutually exclusive")
	}
	if opts.Parallel < 1 {
		return errors.Newf("--parallel must be at least 1, got %d", opts.Parallel)
	}

	copts, err := opts.compilerOptions()
	if err != nil {
		return err
	}
	if opts.Check {
		copts.CheckConditions = true
	}
	if opts.NoEstimate {
		copts.EnableEstimation = false
	}
	if opts.Verbose {
		copts.AnnotateEstimates = true
	}

	src, closeSource, err := opts.statsSource()
	if err != nil {
		return err
	}
	defer closeSource()

	// Documents are read while the statistics load.
	start := time.Now()
	pending := stats.FetchAsync(ctx, src)
	defer pending.Cancel()

	var docs []astio.Document
	for _, path := range paths {
		d, err := readDocuments(path)
		if err != nil {
			return err
		}
		docs = append(docs, d...)
	}

	snap, err := pending.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "loading statistics")
	}

	var tracer trace.Tracer
	if opts.OTLPEndpoint != "" {
		shutdown, err := annotations.SetupTracing(ctx, opts.OTLPEndpoint, "graphplan")
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				opts.logger.WithError(err).Warn("flushing traces")
			}
		}()
		tracer = annotations.Tracer()
	}

	var console annotations.Handler
	if opts.Verbose {
		console = annotations.ConsoleHandler()
		console(annotations.Event{
			Name:    annotations.StatsFetched,
			Start:   start,
			End:     time.Now(),
			Latency: time.Since(start),
			Data:    map[string]interface{}{"snapshot": snap.String()},
		})
	}
	opts.logger.WithFields(logrus.Fields{
		"documents": len(docs),
		"snapshot":  snap.String(),
		"latency":   time.Since(start).String(),
	}).Info("statistics loaded")

	c, err := compiler.New(copts)
	if err != nil {
		return err
	}

	results := make([]*compiler.CompiledQuery, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			handler := opts.handlerFor(gctx, doc.Name, console, tracer)
			res, err := c.Compile(gctx, doc.Query, snap, compiler.WithHandler(handler))
			if err != nil {
				return errors.Wrapf(err, "document %s", doc.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return writeReport(out, docs, results, useColor(out))
}

// statsSource resolves the statistics flags. The returned func releases the
// source.
func (o *compileOptions) statsSource() (stats.Source, func(), error) {
	switch {
	case o.DBPath != "":
		store, err := stats.OpenBadgerStore(o.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				o.logger.WithError(err).Warn("closing statistics store")
			}
		}, nil
	case o.StatsFile != "":
		path := o.StatsFile
		return stats.SourceFunc(func(context.Context) (*stats.Snapshot, error) {
			return stats.LoadFile(path)
		}), func() {}, nil
	}
	o.logger.Warn("no statistics given, using defaults")
	return stats.Empty, func() {}, nil
}

// handlerFor builds the annotation sink of one document. Each document gets
// its own tracing handler so concurrent compilations keep separate spans.
func (o *compileOptions) handlerFor(ctx context.Context, doc string, console annotations.Handler, tracer trace.Tracer) annotations.Handler {
	handlers := []annotations.Handler{
		annotations.NewLogrusHandler(o.logger.WithField("document", doc)),
	}
	if console != nil {
		handlers = append(handlers, console)
	}
	if tracer != nil {
		handlers = append(handlers, annotations.NewTracingHandler(ctx, tracer))
	}
	return annotations.Multi(handlers...)
}

func readDocuments(path string) ([]astio.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening query file")
	}
	defer f.Close()

	docs, err := astio.DecodeAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	if len(docs) == 0 {
		return nil, errors.Newf("%s: no query documents", path)
	}
	return docs, nil
}
