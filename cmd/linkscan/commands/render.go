package commands

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"git.home.luguber.info/inful/linkscan/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func renderScans(out io.Writer, scans []model.ScanRecord) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Status", "Created", "Completed", "Pages", "Links", "Broken"})
	for _, s := range scans {
		completed := "-"
		if s.CompletedAt != nil {
			completed = s.CompletedAt.Local().Format(timeLayout)
		}
		t.AppendRow(table.Row{
			s.ID, s.Status, s.CreatedAt.Local().Format(timeLayout), completed,
			s.TotalPages, s.TotalLinks, s.BrokenLinks,
		})
	}
	t.Render()
}

func renderFindings(out io.Writer, findings []model.Finding) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Scan", "Source", "Target", "Text", "Status", "Error", "Fixed"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Source", WidthMax: 48},
		{Name: "Target", WidthMax: 48},
		{Name: "Text", WidthMax: 24},
		{Name: "Error", WidthMax: 32},
	})
	for _, f := range findings {
		t.AppendRow(table.Row{
			f.ID, f.ScanID, f.SourceURL, f.TargetURL, f.LinkText,
			statusText(f.StatusCode), f.ErrorMessage, f.IsFixed,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(findings)})
	t.Render()
}

// renderExportCSV writes rows in export column order as RFC 4180 CSV.
func renderExportCSV(out io.Writer, rows []model.ExportRow) error {
	w := csv.NewWriter(out)
	_ = w.Write([]string{"source_url", "target_url", "link_text", "status_code", "error_message", "found_at"})
	for _, r := range rows {
		_ = w.Write([]string{
			r.SourceURL, r.TargetURL, r.LinkText, strconv.Itoa(r.StatusCode), r.ErrorMessage,
			r.FoundAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	return w.Error()
}

func statusText(code int) string {
	if code == 0 {
		return "-"
	}
	return strconv.Itoa(code)
}
