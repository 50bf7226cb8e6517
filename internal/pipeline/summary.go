package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteSummary writes a table with one row per run and a total
func WriteSummary(w io.Writer, stats []Stats) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Run", "Status", "Spectra", "MS1 scans", "Anomalies", "Windows", "Picked", "Kept", "Elapsed"})

	var total Stats
	failed := 0
	for _, st := range stats {
		tbl.AppendRow(table.Row{
			st.Run,
			st.Status(),
			humanize.Comma(int64(st.Spectra)),
			humanize.Comma(int64(st.MS1Scans)),
			st.Anomalies,
			humanize.Comma(int64(st.Windows)),
			humanize.Comma(int64(st.Picked)),
			humanize.Comma(int64(st.Kept)),
			st.Elapsed.Round(time.Millisecond),
		})
		total.Spectra += st.Spectra
		total.MS1Scans += st.MS1Scans
		total.Anomalies += st.Anomalies
		total.Windows += st.Windows
		total.Picked += st.Picked
		total.Kept += st.Kept
		total.Elapsed += st.Elapsed
		if st.Err != nil {
			failed++
		}
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d runs", len(stats)),
		fmt.Sprintf("%d failed", failed),
		humanize.Comma(int64(total.Spectra)),
		humanize.Comma(int64(total.MS1Scans)),
		total.Anomalies,
		humanize.Comma(int64(total.Windows)),
		humanize.Comma(int64(total.Picked)),
		humanize.Comma(int64(total.Kept)),
		total.Elapsed.Round(time.Millisecond),
	})
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}
