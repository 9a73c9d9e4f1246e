// Package report ranks owned emblems by rarity and writes them out.
package report

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"raremblems/internal/collectibles"
	"raremblems/internal/rarity"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Row struct {
	Item   collectibles.OwnedItem
	Rarity rarity.Record
}

// Sort orders rows rarest first, rows with an unknown rarity go last in their
// original order.
func Sort(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		switch {
		case a.Rarity.Known() && b.Rarity.Known():
			return cmp.Compare(*a.Rarity.Percent, *b.Rarity.Percent)
		case a.Rarity.Known():
			return -1
		case b.Rarity.Known():
			return 1
		}
		return 0
	})
}

// FormatPercent renders a rarity for display, "Unknown" when there is none.
func FormatPercent(record rarity.Record) string {
	if !record.Known() {
		return "Unknown"
	}
	return fmt.Sprintf("%.4f%%", *record.Percent)
}

// PrintTop renders the first n rows as a table, all of them when n <= 0.
func PrintTop(w io.Writer, rows []Row, n int) {
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Rarest %d emblems you own by Community Rarity", n))
	t.AppendHeader(table.Row{"#", "Name", "Rarity", "Url"})
	for i, row := range rows[:n] {
		t.AppendRow(table.Row{i + 1, row.Item.Name, FormatPercent(row.Rarity), row.Rarity.SourceUrl})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var csvHeader = []string{"name", "itemHash", "community_rarity_percent", "lightgg_url"}

// WriteCSV writes every row, unknown rarities leave the percent and url columns empty.
func WriteCSV(w io.Writer, rows []Row) error {
	out := csv.NewWriter(w)
	err := out.Write(csvHeader)
	if err != nil {
		return err
	}
	for _, row := range rows {
		percent := ""
		if row.Rarity.Known() {
			percent = strconv.FormatFloat(*row.Rarity.Percent, 'f', -1, 64)
		}
		err = out.Write([]string{
			row.Item.Name,
			strconv.FormatUint(uint64(row.Item.ItemHash), 10),
			percent,
			row.Rarity.SourceUrl,
		})
		if err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
