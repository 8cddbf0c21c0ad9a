package query

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

type TableStyle int

const (
	// TableMarkdown renders a pipe table suitable for prompts and Markdown views.
	TableMarkdown TableStyle = iota
	// TableBoxed renders a bordered table for terminals.
	TableBoxed
)

// WriteTable renders r to w. A relation without columns renders nothing.
func WriteTable(w io.Writer, r Relation, style TableStyle) {
	if len(r.Columns) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(r.Columns)
	switch style {
	case TableMarkdown:
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
	default:
		table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
		table.SetBorder(true)
	}
	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = FormatValue(row[i])
			}
		}
		table.Append(cells)
	}
	table.Render()
}

// Table returns r rendered with style.
func Table(r Relation, style TableStyle) string {
	var b strings.Builder
	WriteTable(&b, r, style)
	return b.String()
}

// FormatValue renders a single cell the way result tables show it.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format("2006-01-02")
		}
		return typed.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(typed)
	}
}
