package output

import (
	"fmt"
	"io"

	"github.com/aryankumar/shardexec/internal/executor"
)

// Format represents the output format type
type Format string

const (
	// FormatTable outputs data in a borderless, tab-separated table
	FormatTable Format = "table"
	// FormatJSON outputs data in JSON format
	FormatJSON Format = "json"
	// FormatYAML outputs data in YAML format
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected table, json or yaml)", s)
	}
}

// Formatter defines the interface for output formatting
type Formatter interface {
	// Format outputs a single data item to the writer
	Format(w io.Writer, data interface{}) error

	// FormatResults outputs per-shard outcomes to the writer
	FormatResults(w io.Writer, results []executor.Result) error
}

// Option is a functional option for configuring formatters
type Option func(*Options)

// Options holds configuration for formatters
type Options struct {
	// NoColor disables color output
	NoColor bool

	// NoHeaders disables table headers
	NoHeaders bool

	// Wide enables wide output with additional columns
	Wide bool
}

// WithNoColor disables color output
func WithNoColor(noColor bool) Option {
	return func(o *Options) {
		o.NoColor = noColor
	}
}

// WithNoHeaders disables table headers
func WithNoHeaders(noHeaders bool) Option {
	return func(o *Options) {
		o.NoHeaders = noHeaders
	}
}

// WithWide enables wide output
func WithWide(wide bool) Option {
	return func(o *Options) {
		o.Wide = wide
	}
}

// NewFormatter creates a new formatter based on the specified format
func NewFormatter(format Format, opts ...Option) Formatter {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	switch format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	case FormatTable:
		fallthrough
	default:
		return NewTableFormatter(options)
	}
}

// resultObjects converts results to the list shape shared by JSON and YAML
func resultObjects(results []executor.Result) []map[string]interface{} {
	objects := make([]map[string]interface{}, len(results))

	for i, result := range results {
		item := map[string]interface{}{
			"shard":    result.Target,
			"duration": result.Duration.String(),
		}

		if result.Error != nil {
			item["status"] = "failed"
			item["error"] = result.Error.Error()
		} else {
			item["status"] = "success"
			item["data"] = result.Data
		}

		objects[i] = item
	}

	return objects
}

// encodable unwraps values that have a dedicated serialized shape
func encodable(data interface{}) interface{} {
	if t, ok := data.(*RowTable); ok {
		return t.Objects()
	}
	return data
}
