package output

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/aryankumar/shardexec/internal/executor"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	options *Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(opts *Options) *JSONFormatter {
	if opts == nil {
		opts = &Options{}
	}
	return &JSONFormatter{
		options: opts,
	}
}

// Format outputs a single data item as JSON
func (f *JSONFormatter) Format(w io.Writer, data interface{}) error {
	return f.encode(w, encodable(data))
}

// FormatResults outputs per-shard outcomes as a JSON array
func (f *JSONFormatter) FormatResults(w io.Writer, results []executor.Result) error {
	return f.encode(w, resultObjects(results))
}

func (f *JSONFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
