package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printRecords writes recs as JSON or as an aligned table.
func (a *app) printRecords(w io.Writer, t table, recs []types.Record) error {
	if a.jsonMode {
		return printJSON(w, recs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.header(), "\t"))
	for _, r := range recs {
		fmt.Fprintln(tw, strings.Join(t.columns(r), "\t"))
	}
	return tw.Flush()
}

// printRecord writes a single record. Text mode prints every field as
// "key: value" lines.
func (a *app) printRecord(w io.Writer, rec types.Record) error {
	if a.jsonMode {
		return printJSON(w, rec)
	}
	row, err := types.RowOf(rec)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, k := range sortedKeys(row) {
		fmt.Fprintf(tw, "%s:\t%v\n", k, row[k])
	}
	return tw.Flush()
}

func sortedKeys(row types.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if _, ok := row["id"]; ok {
		keys = append([]string{"id"}, keys...)
	}
	return keys
}
