package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// SprintfFunc colors a formatted string
type SprintfFunc func(format string, a ...interface{}) string

// ColorScheme holds the color of every kind of cell shardexec prints
type ColorScheme struct {
	Shard    SprintfFunc
	Success  SprintfFunc
	Error    SprintfFunc
	Warning  SprintfFunc
	Header   SprintfFunc
	Duration SprintfFunc

	// Null marks SQL NULL cells
	Null SprintfFunc

	// Disabled is set when the writer is not a terminal or --no-color was given.
	// All functions are then plain Sprintf.
	Disabled bool
}

// NewColorScheme creates the scheme for w
func NewColorScheme(w io.Writer, noColor bool) *ColorScheme {
	if noColor || !isTTY(w) {
		plain := color.New().Sprintf
		return &ColorScheme{
			Shard:    plain,
			Success:  plain,
			Error:    plain,
			Warning:  plain,
			Header:   plain,
			Duration: plain,
			Null:     plain,
			Disabled: true,
		}
	}

	return &ColorScheme{
		Shard:    color.New(color.FgCyan, color.Bold).Sprintf,
		Success:  color.New(color.FgGreen).Sprintf,
		Error:    color.New(color.FgRed, color.Bold).Sprintf,
		Warning:  color.New(color.FgYellow).Sprintf,
		Header:   color.New(color.FgWhite, color.Bold).Sprintf,
		Duration: color.New(color.FgBlue).Sprintf,
		Null:     color.New(color.Faint).Sprintf,
	}
}

func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// StatusColor returns Error for failures and Success otherwise
func (cs *ColorScheme) StatusColor(hasError bool) SprintfFunc {
	if hasError {
		return cs.Error
	}
	return cs.Success
}

// Cell colors one table cell by the column it sits in. Shard names, event
// phases, health flags and error text get their own colors; NULLs are dimmed.
func (cs *ColorScheme) Cell(header, value string) string {
	if cs.Disabled || value == "" {
		return value
	}
	if value == nullCell {
		return cs.Null("%s", value)
	}

	switch header {
	case "SHARD", "NAME":
		return cs.Shard("%s", value)
	case "PHASE":
		switch value {
		case "failure":
			return cs.Error("%s", value)
		case "success":
			return cs.Success("%s", value)
		default:
			return cs.Warning("%s", value)
		}
	case "HEALTHY", "ENABLED":
		return cs.StatusColor(value == "false")("%s", value)
	case "ERROR":
		return cs.Error("%s", value)
	case "DURATION", "LATENCY":
		return cs.Duration("%s", value)
	}
	return value
}

// paint returns a colored copy of rows
func (cs *ColorScheme) paint(headers []string, rows [][]string) [][]string {
	if cs.Disabled {
		return rows
	}

	painted := make([][]string, len(rows))
	for i, row := range rows {
		painted[i] = make([]string, len(row))
		for j, cell := range row {
			header := ""
			if j < len(headers) {
				header = headers[j]
			}
			painted[i][j] = cs.Cell(header, cell)
		}
	}
	return painted
}
