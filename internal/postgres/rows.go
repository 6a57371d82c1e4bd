package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Rows is a fully read result set. It implements statement.RowSet.
type Rows struct {
	columns []string
	data    [][]any
	pos     int
	closed  bool
}

// NewRows builds a result set from already materialized values.
func NewRows(columns []string, data [][]any) *Rows {
	return &Rows{columns: columns, data: data}
}

// bufferRows drains and closes rows. []byte values are converted to strings.
func bufferRows(rows *sql.Rows) (*Rows, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, TranslateError(err)
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, TranslateError(err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateError(err)
	}

	return NewRows(columns, data), nil
}

// Columns returns the column names.
func (r *Rows) Columns() ([]string, error) {
	if r.closed {
		return nil, errors.New("rows are closed")
	}
	return r.columns, nil
}

// Next advances to the next row.
func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

// Scan copies the current row into dest. Each destination must be a pointer
// that the value is assignable or convertible to, or an sql.Scanner.
func (r *Rows) Scan(dest ...any) error {
	if r.closed {
		return errors.New("rows are closed")
	}
	if r.pos == 0 {
		return errors.New("Scan called without calling Next")
	}
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destination arguments in Scan, not %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("column %d (%s): %w", i, r.columns[i], err)
		}
	}
	return nil
}

// Err always returns nil; read errors surface when the rows are buffered.
func (r *Rows) Err() error {
	return nil
}

// Close releases the buffered data.
func (r *Rows) Close() error {
	r.closed = true
	r.data = nil
	return nil
}

// Len returns the number of buffered rows.
func (r *Rows) Len() int {
	return len(r.data)
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *any:
		*d = value
		return nil
	case sql.Scanner:
		return d.Scan(value)
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return errors.New("destination is not a non-nil pointer")
	}
	target := dv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(target.Type()):
		target.Set(v)
		return nil
	case target.Kind() == reflect.String:
		target.SetString(fmt.Sprint(value))
		return nil
	}

	// numbers go through their text form so truncation and overflow fail
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s := asString(value)
		n, err := strconv.ParseInt(s, 10, target.Type().Bits())
		if err != nil {
			return convertError(value, s, target.Type(), err)
		}
		target.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s := asString(value)
		n, err := strconv.ParseUint(s, 10, target.Type().Bits())
		if err != nil {
			return convertError(value, s, target.Type(), err)
		}
		target.SetUint(n)
	case reflect.Float32, reflect.Float64:
		s := asString(value)
		f, err := strconv.ParseFloat(s, target.Type().Bits())
		if err != nil {
			return convertError(value, s, target.Type(), err)
		}
		target.SetFloat(f)
	default:
		if !v.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("cannot assign %T to %s", value, target.Type())
		}
		target.Set(v.Convert(target.Type()))
	}
	return nil
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return fmt.Sprint(value)
}

func convertError(value any, s string, to reflect.Type, err error) error {
	if ne, ok := err.(*strconv.NumError); ok {
		err = ne.Err
	}
	return fmt.Errorf("converting %T (%q) to %s: %w", value, s, to, err)
}
