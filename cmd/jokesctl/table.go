package main

import (
	"dadjokes-api/archive"
	"dadjokes-api/pkg/jokes"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const maxCellWidth = 48

// writeTable prints rows as aligned columns. Widths are display widths so
// wide runes and emoji line up.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	cells := make([][]string, 0, len(rows)+1)
	for _, row := range append([][]string{header}, rows...) {
		line := make([]string, len(header))
		for i := range line {
			if i < len(row) {
				line[i] = runewidth.Truncate(strings.Join(strings.Fields(row[i]), " "), maxCellWidth, "…")
			}
			widths[i] = max(widths[i], runewidth.StringWidth(line[i]))
		}
		cells = append(cells, line)
	}

	var sb strings.Builder
	for _, row := range cells {
		for i, content := range row {
			if i == len(row)-1 {
				sb.WriteString(content)
				break
			}
			sb.WriteString(runewidth.FillRight(content, widths[i]))
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeItems(w io.Writer, items []jokes.Item) error {
	rows := make([][]string, 0, len(items))
	for _, x := range items {
		rows = append(rows, []string{x.ID, x.CreatedAt, x.Source, x.Title, x.Body})
	}
	return writeTable(w, []string{"ID", "CREATED", "SOURCE", "TITLE", "BODY"}, rows)
}

func writeEntries(w io.Writer, entries []archive.Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.Version, 10),
			e.Updated.UTC().Format(jokes.TimeFormat),
			strconv.FormatInt(e.Size, 10),
			e.Key,
		})
	}
	return writeTable(w, []string{"VERSION", "ARCHIVED", "BYTES", "KEY"}, rows)
}
