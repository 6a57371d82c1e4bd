// Package output renders shardexec command results as tables, JSON or YAML.
//
// # Basic Usage
//
//	formatter := output.NewFormatter(output.FormatTable, output.WithNoColor(true))
//
//	// Rows returned by a query on several shards
//	table, err := output.NewRowTable(shards, rowSets)
//	formatter.Format(os.Stdout, table)
//
//	// Per-shard outcomes, e.g. from executor.Collect
//	formatter.FormatResults(os.Stdout, results)
//
// # Formatters
//
// The table formatter prints borderless, tab-separated tables and understands
// any value implementing Tabular. FormatResults adds a summary line. The JSON
// and YAML formatters encode the same data for scripting; a RowTable becomes a
// list of column-keyed objects.
//
// # Color Support
//
// Colors are enabled only when the writer is a terminal and WithNoColor is
// not set. Shard names are cyan, success is green, errors are red, durations
// are blue.
package output
