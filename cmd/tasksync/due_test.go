package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
)

func TestParseDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"  ", "", false},
		{"2026-03-12", "2026-03-12", false},
		{"2026-03-12T09:00:00Z", "2026-03-12T09:00:00Z", false},
		{"tomorrow", "2026-03-11", false},
		{"qwzx", "", true},
	}
	for _, tt := range tests {
		got, err := parseDue(tt.in, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDue(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWritePage(t *testing.T) {
	page := schema.Page{
		Items: []schema.Task{
			{ID: "42", Title: "Buy milk", Status: schema.StatusTodo, PriorityLevel: schema.PriorityLow, Priority: schema.Ptr(1)},
			{ID: "local-7", Title: "Call back", Status: schema.StatusInProgress},
		},
		Total: 2,
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePage(&buf, page, "json", false); err != nil {
			t.Fatal(err)
		}
		var got schema.Page
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid json: %v\n%s", err, buf.String())
		}
		if got.Total != 2 || len(got.Items) != 2 || got.Items[0].Title != "Buy milk" {
			t.Errorf("decoded = %+v", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePage(&buf, page, "yaml", false); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"total: 2", "priorityLevel: low", "title: Buy milk", "id: local-7"} {
			if !strings.Contains(out, want) {
				t.Errorf("yaml missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePage(&buf, page, "table", false); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "local-7*") {
			t.Errorf("temp id not marked:\n%s", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := writePage(&bytes.Buffer{}, page, "xml", false); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
