// Package statement runs one logical SQL statement across the physical units
// it was routed to, through either ad-hoc text or precompiled handles.
package statement

import (
	"context"
	"strings"
	"sync"

	"github.com/aryankumar/shardexec/internal/event"
)

// Type is the kind of SQL statement a logical operation carries.
type Type int

const (
	TypeUnknown Type = iota
	TypeSelect
	TypeInsert
	TypeUpdate
	TypeDelete
	TypeDDL
)

// String returns the statement keyword
func (t Type) String() string {
	switch t {
	case TypeSelect:
		return "SELECT"
	case TypeInsert:
		return "INSERT"
	case TypeUpdate:
		return "UPDATE"
	case TypeDelete:
		return "DELETE"
	case TypeDDL:
		return "DDL"
	default:
		return "UNKNOWN"
	}
}

// EventKind maps the statement type to the lifecycle event kind: SELECT
// statements report query events, everything else reports update events.
func (t Type) EventKind() event.Kind {
	if t == TypeSelect {
		return event.KindQuery
	}
	return event.KindUpdate
}

// ParseType classifies sql by its leading keyword. Leading whitespace,
// comments and opening parentheses are skipped.
func ParseType(sql string) Type {
	switch leadingKeyword(sql) {
	case "SELECT", "WITH", "SHOW", "VALUES", "TABLE", "EXPLAIN":
		return TypeSelect
	case "INSERT":
		return TypeInsert
	case "UPDATE":
		return TypeUpdate
	case "DELETE":
		return TypeDelete
	case "CREATE", "ALTER", "DROP", "TRUNCATE", "COMMENT":
		return TypeDDL
	default:
		return TypeUnknown
	}
}

func leadingKeyword(sql string) string {
	s := strings.TrimLeft(sql, " \t\r\n(")
	for strings.HasPrefix(s, "--") || strings.HasPrefix(s, "/*") {
		var rest int
		if strings.HasPrefix(s, "--") {
			rest = strings.IndexByte(s, '\n') + 1
		} else if i := strings.Index(s, "*/"); i >= 0 {
			rest = i + 2
		}
		if rest <= 0 {
			return ""
		}
		s = strings.TrimLeft(s[rest:], " \t\r\n(")
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// Unit is one physical command routed to one backend. It is immutable.
type Unit struct {
	Backend string
	SQL     string
}

// Target names the backend the unit runs against.
func (u Unit) Target() string {
	return u.Backend
}

// RowSet is the cursor returned by a physical query. *sql.Rows satisfies it.
type RowSet interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// KeysMode selects how a data-modifying call reports generated keys.
type KeysMode int

const (
	KeysDefault KeysMode = iota
	KeysAuto
	KeysColumnIndexes
	KeysColumnNames
)

// Flags accepted by AutoKeys.
const (
	ReturnGeneratedKeys = 1
	NoGeneratedKeys     = 2
)

// GeneratedKeys is the strategy value passed to Connection.Update and
// Connection.Execute. Exactly one of the fields beyond Mode is meaningful.
type GeneratedKeys struct {
	Mode          KeysMode
	Flag          int
	ColumnIndexes []int
	ColumnNames   []string
}

// DefaultKeys leaves generated-key handling to the backend.
func DefaultKeys() GeneratedKeys {
	return GeneratedKeys{Mode: KeysDefault}
}

// AutoKeys requests generated keys according to flag.
func AutoKeys(flag int) GeneratedKeys {
	return GeneratedKeys{Mode: KeysAuto, Flag: flag}
}

// ColumnIndexes requests the generated values of the given 1-based columns.
func ColumnIndexes(indexes []int) GeneratedKeys {
	return GeneratedKeys{Mode: KeysColumnIndexes, ColumnIndexes: indexes}
}

// ColumnNames requests the generated values of the named columns.
func ColumnNames(names []string) GeneratedKeys {
	return GeneratedKeys{Mode: KeysColumnNames, ColumnNames: names}
}

// Connection is a live connection to one backend, addressed with command text.
// Callers hold the embedded lock for the duration of each call; implementations
// need not be safe for concurrent use beyond that.
type Connection interface {
	sync.Locker

	Query(ctx context.Context, sql string) (RowSet, error)
	Update(ctx context.Context, sql string, keys GeneratedKeys) (int64, error)
	// Execute reports true when sql produced a row set
	Execute(ctx context.Context, sql string, keys GeneratedKeys) (bool, error)
	ExecBatch(ctx context.Context, sqls []string) ([]int64, error)
}

// PreparedHandle is a precompiled command bound to one backend connection.
// Conn returns the lock of that connection.
type PreparedHandle interface {
	Conn() sync.Locker

	Query(ctx context.Context) (RowSet, error)
	Update(ctx context.Context) (int64, error)
	Execute(ctx context.Context) (bool, error)
	ExecBatch(ctx context.Context) ([]int64, error)
}
