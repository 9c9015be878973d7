package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/jobpipe/internal/model"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

var summaryHeaders = []string{"Tenant", "Phase", "Status", "Attempted", "OK", "Failed", "Rejected", "Seen", "Skipped sources"}

var summaryAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}

// summaryRows flattens run results into one row per tenant phase.
func summaryRows(results []model.TenantResult) [][]string {
	var rows [][]string
	for _, r := range results {
		if len(r.Phases) == 0 {
			rows = append(rows, []string{r.Tenant, "-", "failed", "", "", "", "", "", ""})
			continue
		}
		for _, p := range r.Phases {
			status := string(p.Status)
			if p.DryRun {
				status += " (dry run)"
			}
			rows = append(rows, []string{
				r.Tenant,
				p.Name,
				status,
				strconv.Itoa(p.Attempted),
				strconv.Itoa(p.Succeeded),
				strconv.Itoa(p.Failed),
				strconv.Itoa(p.Rejected),
				strconv.Itoa(p.AlreadySeen),
				skippedSources(p.SkippedSources),
			})
		}
	}
	return rows
}

func skippedSources(skips []model.SourceSkip) string {
	parts := make([]string, len(skips))
	for i, s := range skips {
		parts[i] = s.Source + " (" + s.Reason + ")"
	}
	return strings.Join(parts, ", ")
}

// printResults writes results as JSON or as the summary table followed by
// any tenant errors and dry-run listings.
func printResults(w io.Writer, results []model.TenantResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No active tenants.")
		return err
	}
	fmt.Fprintln(w, renderTable(summaryHeaders, summaryRows(results), summaryAligns))
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", r.Tenant, r.Error)
		}
		for _, p := range r.Phases {
			items, _ := p.Metadata["pending_items"].([]string)
			if !p.DryRun || len(items) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s %s would process %d item(s):\n", r.Tenant, p.Name, len(items))
			for _, it := range items {
				fmt.Fprintf(w, "  - %s\n", it)
			}
		}
	}
	return nil
}
