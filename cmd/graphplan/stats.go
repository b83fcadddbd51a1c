package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-graph/graph/stats"
)

func newStatsCommand(root *rootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Manage the badger statistics store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setupLogging(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if dbPath == "" {
				return errors.New("--db is required")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "badger statistics store directory")

	withStore := func(fn func(ctx context.Context, store *stats.BadgerStore, args []string, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := stats.OpenBadgerStore(dbPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					root.logger.WithError(err).Warn("closing statistics store")
				}
			}()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return fn(ctx, store, args, cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <snapshot.yaml>",
		Short: "Replace the stored statistics with a YAML snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(_ context.Context, store *stats.BadgerStore, args []string, out io.Writer) error {
			snap, err := stats.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := store.Save(snap); err != nil {
				return err
			}
			root.logger.WithField("snapshot", snap.String()).Info("statistics imported")
			fmt.Fprintf(out, "imported %s\n", snap)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored statistics",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, store *stats.BadgerStore, _ []string, out io.Writer) error {
			snap, err := store.Snapshot(ctx)
			if err != nil {
				return err
			}
			return writeStats(out, snap)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <nodes|relationships|label:NAME|type:NAME> <count>",
		Short: "Set a single count",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(_ context.Context, store *stats.BadgerStore, args []string, _ io.Writer) error {
			n, err := strconv.ParseFloat(args[1], 64)
			if err != nil || n < 0 {
				return errors.Newf("invalid count %q", args[1])
			}
			kind, name, _ := strings.Cut(args[0], ":")
			switch {
			case kind == "nodes" && name == "":
				return store.SetNodeCount(n)
			case kind == "relationships" && name == "":
				return store.SetRelationshipCount(n)
			case kind == "label" && name != "":
				return store.SetLabelCount(name, n)
			case kind == "type" && name != "":
				return store.SetRelationshipTypeCount(name, n)
			}
			return errors.Newf("unknown statistic %q", args[0])
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop-index <name>",
		Short: "Remove an index descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(_ context.Context, store *stats.BadgerStore, args []string, _ io.Writer) error {
			return store.DropIndex(args[0])
		}),
	})

	return cmd
}

func writeStats(w io.Writer, snap *stats.Snapshot) error {
	d := snap.Data()

	counts := newTable(w, 2)
	counts.Header([]string{"Statistic", "Count"})
	rows := [][]string{
		{"nodes", humanize.Comma(int64(d.Nodes))},
		{"relationships", humanize.Comma(int64(d.Relationships))},
	}
	for _, l := range snap.Labels() {
		rows = append(rows, []string{"label:" + l, humanize.Comma(int64(d.Labels[l]))})
	}
	for _, t := range snap.RelationshipTypes() {
		rows = append(rows, []string{"type:" + t, humanize.Comma(int64(d.RelationshipTypes[t]))})
	}
	for _, r := range rows {
		if err := counts.Append(r); err != nil {
			return err
		}
	}
	if err := counts.Render(); err != nil {
		return err
	}
	if len(d.Indexes) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	indexes := newTable(w, 6)
	indexes.Header([]string{"Index", "Entity", "Token", "Properties", "Kind", "Selectivity"})
	for _, idx := range d.Indexes {
		sel := "-"
		if idx.ObservedSelectivity != nil {
			sel = strconv.FormatFloat(*idx.ObservedSelectivity, 'g', 3, 64)
		}
		row := []string{idx.Name, idx.Entity.String(), idx.Token, strings.Join(idx.Properties, ", "), idx.Kind.String(), sel}
		if err := indexes.Append(row); err != nil {
			return err
		}
	}
	return indexes.Render()
}
