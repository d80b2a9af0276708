package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/amolpatilofficial/gdp-dashboard/internal/analyzer"
	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
)

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"  select * from sales.orders;  ", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"show tables", true},
		{"DELETE FROM orders", false},
		{"SELECT 1; DROP TABLE orders", false},
		{"SELECT 'a;b'", false},
		{"SELECT CHR(59)", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := isReadOnly(tt.query); got != tt.want {
			t.Errorf("isReadOnly(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer

	if err := report(&buf, "summary", connector.NewEmptyResultError("SELECT 1")); err != nil {
		t.Errorf("expected an empty result to be shown without failing, got %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected a notice for the empty result")
	}

	buf.Reset()
	failure := &connector.QueryError{Kind: connector.KindConnectivity, Err: errors.New("no route to host")}
	if err := report(&buf, "summary", failure); !errors.Is(err, errReported) {
		t.Errorf("expected errReported, got %v", err)
	}

	buf.Reset()
	noTables := fmt.Errorf("%w: %w: no tables in schema STAGING", connector.ErrUnavailable, connector.ErrEmptyResult)
	if err := report(&buf, "summary of STAGING", noTables); err != nil {
		t.Errorf("expected an empty schema to be shown without failing, got %v", err)
	}
	if !strings.Contains(buf.String(), "No data available for summary of STAGING") {
		t.Errorf("expected a notice for the empty schema, got %q", buf.String())
	}

	buf.Reset()
	allFailed := fmt.Errorf("%w: every table count in STAGING failed: %w", connector.ErrUnavailable, failure)
	if err := report(&buf, "summary of STAGING", allFailed); !errors.Is(err, errReported) {
		t.Errorf("expected errReported when no count succeeded, got %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected a notice when no count succeeded")
	}

	buf.Reset()
	if err := report(&buf, "summary", analyzer.ErrSchemaNotAllowed); !errors.Is(err, analyzer.ErrSchemaNotAllowed) {
		t.Errorf("expected usage errors to pass through, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no notice for usage errors, got %q", buf.String())
	}
}
