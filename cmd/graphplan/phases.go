package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-graph/graph/compiler"
)

func newPhasesCommand(root *rootOptions) *cobra.Command {
	var noEstimate bool

	cmd := &cobra.Command{
		Use:   "phases",
		Short: "Print the sequenced compilation phases and their conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := root.compilerOptions()
			if err != nil {
				return err
			}
			if noEstimate {
				opts.EnableEstimation = false
			}
			return writePhases(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVar(&noEstimate, "no-estimate", false, "leave out cardinality estimation")
	return cmd
}

func writePhases(w io.Writer, opts compiler.Options) error {
	order, err := compiler.Sequence(compiler.RegistrationsFor(opts))
	if err != nil {
		return err
	}

	table := newTable(w, 5)
	table.Header([]string{"#", "Phase", "Requires", "Establishes", "Invalidates"})
	for i, p := range order {
		row := []string{
			strconv.Itoa(i + 1),
			p.Name(),
			conditionList(p.Requires()),
			conditionList(p.Establishes()),
			conditionList(p.Invalidates()),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func conditionList(conds []compiler.Condition) string {
	if len(conds) == 0 {
		return "-"
	}
	names := make([]string, len(conds))
	for i, c := range conds {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
