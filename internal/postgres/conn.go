package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/aryankumar/shardexec/internal/statement"
	"github.com/aryankumar/shardexec/internal/util"
)

// Conn is one reserved physical connection. It implements statement.Connection;
// the embedded mutex is the connection lock the executors hold around each call.
type Conn struct {
	sync.Mutex

	conn *sql.Conn
	keys *Rows
}

// Query runs sql and buffers the whole result, so the connection is free for
// the next unit as soon as the call returns.
func (c *Conn) Query(ctx context.Context, query string) (statement.RowSet, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, TranslateError(err)
	}
	buffered, err := bufferRows(rows)
	if err != nil {
		return nil, err
	}
	return buffered, nil
}

// Update runs a data-modifying statement and returns the affected row count.
// Generated keys are collected through a RETURNING clause and kept until the
// next call (see GeneratedKeys).
func (c *Conn) Update(ctx context.Context, query string, keys statement.GeneratedKeys) (int64, error) {
	c.keys = nil

	rewritten, returning, err := withReturning(query, keys)
	if err != nil {
		return 0, err
	}
	if !returning {
		res, err := c.conn.ExecContext(ctx, rewritten)
		if err != nil {
			return 0, TranslateError(err)
		}
		return res.RowsAffected()
	}

	rows, err := c.conn.QueryContext(ctx, rewritten)
	if err != nil {
		return 0, TranslateError(err)
	}
	buffered, err := bufferRows(rows)
	if err != nil {
		return 0, err
	}
	c.keys = buffered
	return int64(buffered.Len()), nil
}

// Execute runs any statement and reports whether it produced a row set.
// Statements are classified by their leading keyword.
func (c *Conn) Execute(ctx context.Context, query string, keys statement.GeneratedKeys) (bool, error) {
	c.keys = nil
	if statement.ParseType(query) != statement.TypeSelect {
		_, err := c.Update(ctx, query, keys)
		return false, err
	}

	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return false, TranslateError(err)
	}
	if err := rows.Close(); err != nil {
		return false, TranslateError(err)
	}
	return true, nil
}

// ExecBatch runs each statement in order and returns their affected row
// counts. It stops at the first failing statement.
func (c *Conn) ExecBatch(ctx context.Context, queries []string) ([]int64, error) {
	counts := make([]int64, 0, len(queries))
	for i, q := range queries {
		res, err := c.conn.ExecContext(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("batch statement %d: %w", i, TranslateError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("batch statement %d: %w", i, err)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// GeneratedKeys returns the rows produced by the RETURNING clause of the last
// update on the connection, through Conn or a Stmt prepared on it. It is nil
// when that call requested no generated keys. Each call returns a fresh cursor
// over the same rows; they stay valid until the next update on the connection.
func (c *Conn) GeneratedKeys() *Rows {
	if c.keys == nil {
		return nil
	}
	return NewRows(c.keys.columns, c.keys.data)
}

func (c *Conn) appendKeys(rows *Rows) {
	if c.keys == nil {
		c.keys = rows
		return
	}
	c.keys.data = append(c.keys.data, rows.data...)
}

// Close returns the connection to its pool.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// withReturning rewrites query to report generated keys the way the
// PostgreSQL JDBC driver does, by appending a RETURNING clause.
func withReturning(query string, keys statement.GeneratedKeys) (string, bool, error) {
	switch keys.Mode {
	case statement.KeysDefault:
		return query, false, nil

	case statement.KeysAuto:
		switch keys.Flag {
		case statement.NoGeneratedKeys:
			return query, false, nil
		case statement.ReturnGeneratedKeys:
			return appendReturning(query, "*")
		default:
			return "", false, fmt.Errorf("invalid generated keys flag %d", keys.Flag)
		}

	case statement.KeysColumnIndexes:
		if len(keys.ColumnIndexes) == 0 {
			return query, false, nil
		}
		return "", false, fmt.Errorf("returning generated keys by column index: %w", util.ErrUnsupported)

	case statement.KeysColumnNames:
		if len(keys.ColumnNames) == 0 {
			return query, false, nil
		}
		quoted := make([]string, len(keys.ColumnNames))
		for i, name := range keys.ColumnNames {
			quoted[i] = pq.QuoteIdentifier(name)
		}
		return appendReturning(query, strings.Join(quoted, ", "))

	default:
		return "", false, fmt.Errorf("unknown generated keys mode %d", keys.Mode)
	}
}

var returningClause = regexp.MustCompile(`(?i)\bRETURNING\b`)

func appendReturning(query, columns string) (string, bool, error) {
	switch statement.ParseType(query) {
	case statement.TypeInsert, statement.TypeUpdate, statement.TypeDelete:
	default:
		return query, false, nil
	}
	if returningClause.MatchString(query) {
		return query, true, nil
	}
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	return trimmed + " RETURNING " + columns, true, nil
}
