package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/aryankumar/shardexec/internal/executor"
)

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	options *Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(opts *Options) *YAMLFormatter {
	if opts == nil {
		opts = &Options{}
	}
	return &YAMLFormatter{
		options: opts,
	}
}

// Format outputs a single data item as YAML
func (f *YAMLFormatter) Format(w io.Writer, data interface{}) error {
	return f.encode(w, encodable(data))
}

// FormatResults outputs per-shard outcomes as a YAML list
func (f *YAMLFormatter) FormatResults(w io.Writer, results []executor.Result) error {
	return f.encode(w, resultObjects(results))
}

func (f *YAMLFormatter) encode(w io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	return encoder.Encode(v)
}
