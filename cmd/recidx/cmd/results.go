package cmd

import (
	"github.com/Aman-CERP/recidx/internal/output"
	"github.com/Aman-CERP/recidx/internal/query"
)

func printResults(out *output.Writer, results []query.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.ID, r.Email, r.NetworkAddress, r.Source})
	}
	out.Table([]string{"ID", "EMAIL", "IP", "SOURCE"}, rows)
}

func printResult(out *output.Writer, r query.Result) {
	out.KeyValue(
		"id", r.ID,
		"email", r.Email,
		"ip", r.NetworkAddress,
		"encoded", r.Encoded,
		"source_file", r.Source,
		"match", string(r.Match),
		"origin", string(r.Origin),
	)
}
