package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/aryankumar/shardexec/internal/statement"
)

// Stmt is a statement prepared on one Conn. It implements
// statement.PreparedHandle. Query, Update and Execute bind the first argument
// set; ExecBatch runs once per argument set.
//
// A statement prepared with generated keys leaves the rows of its RETURNING
// clause on the connection, see Conn.GeneratedKeys.
type Stmt struct {
	conn      *Conn
	stmt      *sql.Stmt
	query     string
	returning bool
	argSets   [][]any
}

// Prepare prepares query on conn. Generated keys, if wanted, are requested by
// rewriting query with keys before it is prepared.
func Prepare(ctx context.Context, conn *Conn, query string, keys statement.GeneratedKeys, argSets ...[]any) (*Stmt, error) {
	rewritten, returning, err := withReturning(query, keys)
	if err != nil {
		return nil, err
	}

	conn.Lock()
	defer conn.Unlock()

	stmt, err := conn.conn.PrepareContext(ctx, rewritten)
	if err != nil {
		return nil, TranslateError(err)
	}
	return &Stmt{
		conn:      conn,
		stmt:      stmt,
		query:     rewritten,
		returning: returning,
		argSets:   argSets,
	}, nil
}

// Conn returns the lock of the connection the statement is bound to.
func (s *Stmt) Conn() sync.Locker {
	return s.conn
}

// Query runs the statement with the first argument set.
func (s *Stmt) Query(ctx context.Context) (statement.RowSet, error) {
	rows, err := s.stmt.QueryContext(ctx, s.args()...)
	if err != nil {
		return nil, TranslateError(err)
	}
	buffered, err := bufferRows(rows)
	if err != nil {
		return nil, err
	}
	return buffered, nil
}

// Update runs the statement with the first argument set and returns the
// affected row count.
func (s *Stmt) Update(ctx context.Context) (int64, error) {
	s.conn.keys = nil
	return s.exec(ctx, s.args())
}

// Execute runs the statement and reports whether it produced a row set.
func (s *Stmt) Execute(ctx context.Context) (bool, error) {
	s.conn.keys = nil
	if statement.ParseType(s.query) != statement.TypeSelect {
		_, err := s.exec(ctx, s.args())
		return false, err
	}
	rows, err := s.stmt.QueryContext(ctx, s.args()...)
	if err != nil {
		return false, TranslateError(err)
	}
	return true, TranslateError(rows.Close())
}

// ExecBatch runs the statement once per argument set, in order.
func (s *Stmt) ExecBatch(ctx context.Context) ([]int64, error) {
	s.conn.keys = nil
	counts := make([]int64, 0, len(s.argSets))
	for i, args := range s.argSets {
		n, err := s.exec(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("batch parameters %d: %w", i, err)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// Close releases the prepared statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

func (s *Stmt) args() []any {
	if len(s.argSets) == 0 {
		return nil
	}
	return s.argSets[0]
}

// exec runs the statement with args and returns the affected row count. With
// a RETURNING clause the count is the number of rows it produced.
func (s *Stmt) exec(ctx context.Context, args []any) (int64, error) {
	if !s.returning {
		res, err := s.stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, TranslateError(err)
		}
		return res.RowsAffected()
	}

	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return 0, TranslateError(err)
	}
	buffered, err := bufferRows(rows)
	if err != nil {
		return 0, err
	}
	s.conn.appendKeys(buffered)
	return int64(buffered.Len()), nil
}

var (
	_ statement.Connection     = (*Conn)(nil)
	_ statement.PreparedHandle = (*Stmt)(nil)
	_ statement.RowSet         = (*Rows)(nil)
)
