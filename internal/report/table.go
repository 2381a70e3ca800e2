package report

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/handiism/deck-media/internal/model"
)

// RenderSummary formats s as two tables: per-kind results and attempt outcomes.
func RenderSummary(s Summary) string {
	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	rows := make([][]string, 0, len(kinds)+1)
	var total KindStats
	for _, k := range kinds {
		ks := s.Kinds[model.AssetKind(k)]
		rows = append(rows, kindRow(k, ks))
		total.Requested += ks.Requested
		total.Acquired += ks.Acquired
		total.Failed += ks.Failed
		total.FromCache += ks.FromCache
		total.Unsupported += ks.Unsupported
		total.Bytes += ks.Bytes
	}
	rows = append(rows, kindRow("total", total))

	assets := RenderTable(
		[]string{"Kind", "Requested", "Acquired", "Cached", "Failed", "Unsupported", "Downloaded"},
		rows, 1)

	signals := make([]string, 0, len(s.Attempts))
	for sig := range s.Attempts {
		signals = append(signals, sig)
	}
	sort.Strings(signals)
	attemptRows := make([][]string, 0, len(signals))
	for _, sig := range signals {
		attemptRows = append(attemptRows, []string{sig, strconv.Itoa(s.Attempts[sig])})
	}
	attempts := RenderTable([]string{"Outcome", "Attempts"}, attemptRows, 1)

	return fmt.Sprintf("%s\n%s\nItems: %d complete, %d partial of %d. Retries: %d. Elapsed: %s.\n",
		assets, attempts, s.CompleteItems, s.PartialItems, s.Items, s.Retries,
		s.Elapsed.Round(time.Millisecond))
}

func kindRow(name string, ks KindStats) []string {
	return []string{
		name,
		strconv.Itoa(ks.Requested),
		strconv.Itoa(ks.Acquired),
		strconv.Itoa(ks.FromCache),
		strconv.Itoa(ks.Failed),
		strconv.Itoa(ks.Unsupported),
		humanize.Bytes(uint64(ks.Bytes)),
	}
}

// RenderTable draws a rounded table, right-aligning every column from firstNumeric on.
func RenderTable(headers []string, rows [][]string, firstNumeric int) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i >= firstNumeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
