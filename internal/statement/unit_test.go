package statement

import (
	"testing"

	"github.com/aryankumar/shardexec/internal/event"
	"github.com/stretchr/testify/assert"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		sql      string
		expected Type
	}{
		{"SELECT * FROM t_order", TypeSelect},
		{"  select 1", TypeSelect},
		{"(SELECT 1) UNION (SELECT 2)", TypeSelect},
		{"WITH x AS (SELECT 1) SELECT * FROM x", TypeSelect},
		{"-- comment\nSELECT 1", TypeSelect},
		{"/* hint */ UPDATE t SET a = 1", TypeUpdate},
		{"insert into t values (1)", TypeInsert},
		{"DELETE FROM t", TypeDelete},
		{"CREATE TABLE t (id int)", TypeDDL},
		{"TRUNCATE t", TypeDDL},
		{"VACUUM", TypeUnknown},
		{"", TypeUnknown},
		{"-- only a comment", TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseType(tt.sql))
		})
	}
}

func TestType_EventKind(t *testing.T) {
	assert.Equal(t, event.KindQuery, TypeSelect.EventKind())
	for _, typ := range []Type{TypeInsert, TypeUpdate, TypeDelete, TypeDDL, TypeUnknown} {
		assert.Equal(t, event.KindUpdate, typ.EventKind(), typ.String())
	}
}

func TestUnit_Target(t *testing.T) {
	u := Unit{Backend: "ds_3", SQL: "SELECT 1"}
	assert.Equal(t, "ds_3", u.Target())
}

func TestGeneratedKeys(t *testing.T) {
	assert.Equal(t, KeysDefault, DefaultKeys().Mode)
	assert.Equal(t, GeneratedKeys{Mode: KeysAuto, Flag: ReturnGeneratedKeys}, AutoKeys(ReturnGeneratedKeys))
	assert.Equal(t, []int{1}, ColumnIndexes([]int{1}).ColumnIndexes)
	assert.Equal(t, []string{"id"}, ColumnNames([]string{"id"}).ColumnNames)
}
