package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-graph/graph/annotations"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/astio"
	"github.com/wbrown/janus-graph/graph/compiler"
	"github.com/wbrown/janus-graph/graph/planner"
)

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func newTable(w io.Writer, columns int) *tablewriter.Table {
	alignment := make([]tw.Align, columns)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
}

// writeReport prints one section per document followed by a summary.
func writeReport(w io.Writer, docs []astio.Document, results []*compiler.CompiledQuery, color bool) error {
	pr := annotations.NewPatternRenderer(color)

	for i, doc := range docs {
		res := results[i]
		fmt.Fprintf(w, "## %s\n\n", doc.Name)
		fmt.Fprintf(w, "    %s\n\n", ast.Format(res.Query))
		fmt.Fprintf(w, "phases: %s\n\n", strings.Join(res.Order, " → "))

		if res.Estimates == nil {
			fmt.Fprintln(w, "_estimation disabled_")
			fmt.Fprintln(w)
			continue
		}
		if err := writeEstimates(w, res.Estimates); err != nil {
			return err
		}
		fmt.Fprintf(w, "\ntotal: %s\n\n", pr.RenderCardinality(res.Cardinality()))
	}

	table := newTable(w, 3)
	table.Header([]string{"Document", "Rows", "Fingerprint"})
	for i, doc := range docs {
		rows := "-"
		if results[i].Estimates != nil {
			rows = annotations.FormatRows(results[i].Cardinality())
		}
		if err := table.Append([]string{doc.Name, rows, results[i].Fingerprint[:12]}); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeEstimates(w io.Writer, est *planner.Estimates) error {
	table := newTable(w, 4)
	table.Header([]string{"Variable", "Rows", "Selectivity", "Index"})
	for _, v := range est.Variables() {
		sel := "-"
		if s, ok := est.Selectivities[v]; ok {
			sel = strconv.FormatFloat(s.Float(), 'g', 3, 64)
		}
		index := est.Indexes[v]
		if index == "" {
			index = "-"
		}
		row := []string{ast.Var(v).String(), annotations.FormatRows(est.Elements[v].Float()), sel, index}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
