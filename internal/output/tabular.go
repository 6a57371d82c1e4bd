package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/aryankumar/shardexec/internal/statement"
)

// Tabular is data that knows how to lay itself out as a table
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// RowTable is a materialized result set, optionally spanning several shards
type RowTable struct {
	Columns []string
	Records [][]interface{}
}

// shardColumn is prepended to rows merged from several shards
const shardColumn = "shard"

// NewRowTable drains the row sets of one query, one per shard, into a single
// table whose first column names the shard. A nil row set (a suppressed
// failure) contributes no rows. Every row set is closed.
func NewRowTable(shards []string, sets []statement.RowSet) (*RowTable, error) {
	if len(shards) != len(sets) {
		return nil, fmt.Errorf("got %d row sets for %d shards", len(sets), len(shards))
	}

	table := &RowTable{}
	defer func() {
		for _, rs := range sets {
			if rs != nil {
				rs.Close()
			}
		}
	}()

	for i, rs := range sets {
		if rs == nil {
			continue
		}

		columns, err := rs.Columns()
		if err != nil {
			return nil, fmt.Errorf("shard %s: %w", shards[i], err)
		}
		if table.Columns == nil {
			table.Columns = append([]string{shardColumn}, columns...)
		} else if len(columns) != len(table.Columns)-1 {
			return nil, fmt.Errorf("shard %s returned %d columns, expected %d", shards[i], len(columns), len(table.Columns)-1)
		}

		for rs.Next() {
			values := make([]interface{}, len(columns))
			dest := make([]interface{}, len(columns))
			for j := range values {
				dest[j] = &values[j]
			}
			if err := rs.Scan(dest...); err != nil {
				return nil, fmt.Errorf("shard %s: %w", shards[i], err)
			}
			table.Records = append(table.Records, append([]interface{}{shards[i]}, values...))
		}
		if err := rs.Err(); err != nil {
			return nil, fmt.Errorf("shard %s: %w", shards[i], err)
		}
	}

	return table, nil
}

// Len returns the number of rows
func (t *RowTable) Len() int {
	return len(t.Records)
}

// Headers implements Tabular
func (t *RowTable) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = strings.ToUpper(c)
	}
	return headers
}

// Rows implements Tabular
func (t *RowTable) Rows() [][]string {
	rows := make([][]string, len(t.Records))
	for i, record := range t.Records {
		row := make([]string, len(record))
		for j, v := range record {
			row[j] = cellString(v)
		}
		rows[i] = row
	}
	return rows
}

// Objects returns one column-keyed map per row
func (t *RowTable) Objects() []map[string]interface{} {
	objects := make([]map[string]interface{}, len(t.Records))
	for i, record := range t.Records {
		obj := make(map[string]interface{}, len(t.Columns))
		for j, c := range t.Columns {
			if j < len(record) {
				obj[c] = record[j]
			}
		}
		objects[i] = obj
	}
	return objects
}

// MarshalJSON encodes the table as its column-keyed rows
func (t *RowTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Objects())
}

// MarshalYAML encodes the table as its column-keyed rows
func (t *RowTable) MarshalYAML() (interface{}, error) {
	return t.Objects(), nil
}

// Outcome is the merged result of one logical statement
type Outcome struct {
	// Statement is the SQL text that was routed
	Statement string `json:"statement" yaml:"statement"`

	// Shards lists the shards the statement ran on, in dispatch order
	Shards []string `json:"shards" yaml:"shards"`

	// RowsAffected is the summed update count of an update
	RowsAffected *int64 `json:"rowsAffected,omitempty" yaml:"rowsAffected,omitempty"`

	// HasResultSet is the merged answer of an execute
	HasResultSet *bool `json:"hasResultSet,omitempty" yaml:"hasResultSet,omitempty"`

	// BatchCounts is the reassembled per-statement count of a batch
	BatchCounts []int64 `json:"batchCounts,omitempty" yaml:"batchCounts,omitempty"`

	// GeneratedKeys holds one row per key a shard reported, led by the shard column
	GeneratedKeys *RowTable `json:"generatedKeys,omitempty" yaml:"generatedKeys,omitempty"`

	// Duration covers dispatch through merge
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Headers implements Tabular
func (o *Outcome) Headers() []string {
	headers := []string{"STATEMENT", "SHARDS", "RESULT", "DURATION"}
	if o.hasKeys() {
		headers = append(headers, "KEYS")
	}
	return headers
}

// Rows implements Tabular
func (o *Outcome) Rows() [][]string {
	row := []string{
		truncate(o.Statement, 60),
		strings.Join(o.Shards, ","),
		o.result(),
		o.Duration.Round(time.Microsecond).String(),
	}
	if o.hasKeys() {
		row = append(row, o.keys())
	}
	return [][]string{row}
}

func (o *Outcome) hasKeys() bool {
	return o.GeneratedKeys != nil && o.GeneratedKeys.Len() > 0
}

// keys renders every generated key as shard:column=value, one key per entry
func (o *Outcome) keys() string {
	entries := make([]string, 0, o.GeneratedKeys.Len())
	for _, record := range o.GeneratedKeys.Records {
		if len(record) == 0 {
			continue
		}
		pairs := make([]string, 0, len(record)-1)
		for j := 1; j < len(record) && j < len(o.GeneratedKeys.Columns); j++ {
			pairs = append(pairs, o.GeneratedKeys.Columns[j]+"="+cellString(record[j]))
		}
		entries = append(entries, cellString(record[0])+":"+strings.Join(pairs, ","))
	}
	return strings.Join(entries, " ")
}

func (o *Outcome) result() string {
	switch {
	case o.RowsAffected != nil:
		return strconv.FormatInt(*o.RowsAffected, 10) + " rows affected"
	case o.HasResultSet != nil:
		if *o.HasResultSet {
			return "result set"
		}
		return "no result set"
	case o.BatchCounts != nil:
		return fmt.Sprint(o.BatchCounts)
	default:
		return ""
	}
}

// nullCell is how SQL NULL is printed
const nullCell = "<null>"

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return nullCell
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
