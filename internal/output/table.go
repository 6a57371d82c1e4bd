package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/aryankumar/shardexec/internal/executor"
)

// TableFormatter formats output as a borderless table
type TableFormatter struct {
	options *Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(opts *Options) *TableFormatter {
	if opts == nil {
		opts = &Options{}
	}
	return &TableFormatter{
		options: opts,
	}
}

// Format outputs a single data item as a table
func (f *TableFormatter) Format(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case Tabular:
		return f.formatTabular(w, v)
	case map[string]interface{}:
		return f.formatMap(w, v)
	case nil:
		return nil
	case string:
		fmt.Fprintln(w, v)
		return nil
	default:
		fmt.Fprintln(w, v)
		return nil
	}
}

// FormatResults outputs per-shard outcomes as a table followed by a summary
func (f *TableFormatter) FormatResults(w io.Writer, results []executor.Result) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return nil
	}

	colors := NewColorScheme(w, f.options.NoColor)
	table := f.createTable(w)

	headers := []string{"SHARD", "STATUS", "DURATION"}
	if f.options.Wide {
		headers = append(headers, "DATA")
	}
	f.setHeaders(table, headers, colors)

	for _, result := range results {
		table.Append(f.formatResultRow(result, colors))
	}

	table.Render()

	f.printSummary(w, results, colors)

	return nil
}

// formatResultRow formats a single result as a table row
func (f *TableFormatter) formatResultRow(result executor.Result, colors *ColorScheme) []string {
	shardName := result.Target
	if !colors.Disabled {
		shardName = colors.Shard(shardName)
	}

	status := "Success"
	if result.Error != nil {
		status = "Failed"
	}
	if !colors.Disabled {
		status = colors.StatusColor(result.Error != nil)(status)
	}

	duration := result.Duration.String()
	if !colors.Disabled {
		duration = colors.Duration(duration)
	}

	row := []string{shardName, status, duration}

	if f.options.Wide {
		dataStr := ""
		if result.Error != nil {
			dataStr = result.Error.Error()
		} else if result.Data != nil {
			dataStr = truncate(fmt.Sprintf("%v", result.Data), 50)
		}
		row = append(row, dataStr)
	}

	return row
}

// formatTabular renders anything that lays itself out in rows
func (f *TableFormatter) formatTabular(w io.Writer, data Tabular) error {
	rows := data.Rows()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No rows")
		return nil
	}

	colors := NewColorScheme(w, f.options.NoColor)
	headers := data.Headers()

	table := f.createTable(w)
	f.setHeaders(table, headers, colors)
	table.AppendBulk(colors.paint(headers, rows))
	table.Render()
	return nil
}

// formatMap formats a map as a two-column table (key-value pairs), sorted by key
func (f *TableFormatter) formatMap(w io.Writer, data map[string]interface{}) error {
	table := f.createTable(w)
	f.setHeaders(table, []string{"KEY", "VALUE"}, NewColorScheme(w, f.options.NoColor))

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		table.Append([]string{k, cellString(data[k])})
	}

	table.Render()
	return nil
}

func (f *TableFormatter) setHeaders(table *tablewriter.Table, headers []string, colors *ColorScheme) {
	if f.options.NoHeaders {
		return
	}
	if colors.Disabled {
		table.SetHeader(headers)
		return
	}
	coloredHeaders := make([]string, len(headers))
	for i, h := range headers {
		coloredHeaders[i] = colors.Header(h)
	}
	table.SetHeader(coloredHeaders)
}

// createTable creates a borderless, tab-padded table
func (f *TableFormatter) createTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	return table
}

// printSummary prints a summary of the results
func (f *TableFormatter) printSummary(w io.Writer, results []executor.Result, colors *ColorScheme) {
	summary := executor.Summarize(results)

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Summary: ")

	successText := fmt.Sprintf("%d successful", summary.Successful)
	if !colors.Disabled {
		successText = colors.Success(successText)
	}

	failedText := fmt.Sprintf("%d failed", summary.Failed)
	if !colors.Disabled && summary.Failed > 0 {
		failedText = colors.Error(failedText)
	}

	durationText := fmt.Sprintf("avg=%s", summary.AvgDuration.Round(1000))
	if !colors.Disabled {
		durationText = colors.Duration(durationText)
	}

	fmt.Fprintf(w, "%s, %s, %s\n", successText, failedText, durationText)
}
