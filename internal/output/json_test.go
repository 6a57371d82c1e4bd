package output

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/aryankumar/shardexec/internal/executor"
)

func TestJSONFormatter_Format(t *testing.T) {
	formatter := NewJSONFormatter(nil)

	t.Run("row table becomes objects", func(t *testing.T) {
		var buf bytes.Buffer
		table := &RowTable{
			Columns: []string{"shard", "order_id"},
			Records: [][]interface{}{{"ds_0", 1001}, {"ds_1", 1002}},
		}

		if err := formatter.Format(&buf, table); err != nil {
			t.Fatalf("Format() error = %v", err)
		}

		var got []map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
		}
		if len(got) != 2 || got[1]["shard"] != "ds_1" || got[1]["order_id"] != float64(1002) {
			t.Errorf("unexpected objects: %v", got)
		}
	})

	t.Run("outcome", func(t *testing.T) {
		var buf bytes.Buffer
		affected := int64(4)

		err := formatter.Format(&buf, &Outcome{
			Statement:    "UPDATE t_order SET status = 'x'",
			Shards:       []string{"ds_0"},
			RowsAffected: &affected,
		})
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}

		var got map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got["rowsAffected"] != float64(4) {
			t.Errorf("got rowsAffected %v", got["rowsAffected"])
		}
		if _, ok := got["batchCounts"]; ok {
			t.Error("empty batchCounts should be omitted")
		}
	})

	t.Run("indented", func(t *testing.T) {
		var buf bytes.Buffer
		if err := formatter.Format(&buf, map[string]int{"a": 1}); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if !bytes.Contains(buf.Bytes(), []byte("\n  \"a\": 1")) {
			t.Errorf("expected two-space indentation, got %q", buf.String())
		}
	})
}

func TestJSONFormatter_FormatResults(t *testing.T) {
	formatter := NewJSONFormatter(&Options{})
	var buf bytes.Buffer

	results := []executor.Result{
		{Target: "ds_0", Data: "16.2", Duration: 200 * time.Millisecond},
		{Target: "ds_1", Error: errors.New("connection timeout"), Duration: 50 * time.Millisecond},
	}

	if err := formatter.FormatResults(&buf, results); err != nil {
		t.Fatalf("FormatResults() error = %v", err)
	}

	var got []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[0]["shard"] != "ds_0" || got[0]["status"] != "success" || got[0]["data"] != "16.2" {
		t.Errorf("unexpected first item: %v", got[0])
	}
	if got[1]["status"] != "failed" || got[1]["error"] != "connection timeout" {
		t.Errorf("unexpected second item: %v", got[1])
	}
	if _, ok := got[1]["data"]; ok {
		t.Error("failed item should not carry data")
	}
	if got[0]["duration"] != "200ms" {
		t.Errorf("got duration %v", got[0]["duration"])
	}
}

func TestJSONFormatter_FormatResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(nil).FormatResults(&buf, nil); err != nil {
		t.Fatalf("FormatResults() error = %v", err)
	}
	if got := bytes.TrimSpace(buf.Bytes()); string(got) != "[]" {
		t.Errorf("got %q, want []", got)
	}
}
