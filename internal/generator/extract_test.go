package generator_test

import (
	"testing"

	"github.com/sqlforge/sqlforge/internal/generator"
	"github.com/sqlforge/sqlforge/internal/tools"
)

func TestRemoveMarkdown(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"Here you go:\n```sql\nSELECT a FROM b\n```\nDone.", "SELECT a FROM b"},
		{"SELECT 1", "SELECT 1"},
		{"```sql\nSELECT 1\n```\n```sql\nSELECT 2\n```", "SELECT 1"},
	}
	for _, c := range cases {
		if got := generator.RemoveMarkdown(c.in); got != c.want {
			t.Errorf("RemoveMarkdown(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeQuery(t *testing.T) {
	got := generator.SanitizeQuery("  SELECT user\\_id FROM events  ")
	want := "SELECT user_id FROM events"
	if got != want {
		t.Errorf("SanitizeQuery = %q, want %q", got, want)
	}
}

func TestExtractPrefersLastExecutedQuery(t *testing.T) {
	var x generator.SQLExtractor
	steps := []generator.AgentStep{
		{Action: tools.ExecuteSQLName, ActionInput: "SELECT 1"},
		{Action: "get_table_schema", ActionInput: "users"},
		{Action: tools.ExecuteSQLName, ActionInput: "SELECT id FROM users"},
	}
	if got := x.Extract(steps); got != "SELECT id FROM users" {
		t.Errorf("Extract = %q, want last executed query", got)
	}
}

func TestExtractSkipsNonSelectExecutions(t *testing.T) {
	var x generator.SQLExtractor
	steps := []generator.AgentStep{
		{Action: tools.ExecuteSQLName, ActionInput: "SELECT id FROM users"},
		{Action: tools.ExecuteSQLName, ActionInput: "EXPLAIN users"},
	}
	if got := x.Extract(steps); got != "SELECT id FROM users" {
		t.Errorf("Extract = %q, want the SELECT execution", got)
	}
}

func TestExtractIgnoresSelectHiddenInComment(t *testing.T) {
	var x generator.SQLExtractor
	steps := []generator.AgentStep{
		{Action: tools.ExecuteSQLName, ActionInput: "EXPLAIN users -- then select the rest"},
	}
	if got := x.Extract(steps); got != "" {
		t.Errorf("Extract = %q, want empty: SELECT only appears in a comment", got)
	}
}

func TestExtractFallsBackToOtherSteps(t *testing.T) {
	var x generator.SQLExtractor
	steps := []generator.AgentStep{
		{Action: "get_table_schema", ActionInput: "```sql\nSELECT id FROM users\n```"},
	}
	if got := x.Extract(steps); got != "SELECT id FROM users" {
		t.Errorf("Extract = %q, want fenced fallback candidate", got)
	}
}

func TestExtractFallbackRequiresLeadingSelect(t *testing.T) {
	var x generator.SQLExtractor
	steps := []generator.AgentStep{
		{Action: "get_table_schema", ActionInput: "the table supports SELECT access"},
	}
	if got := x.Extract(steps); got != "" {
		t.Errorf("Extract = %q, want empty for non-query text", got)
	}
}

func TestExtractEmptySteps(t *testing.T) {
	var x generator.SQLExtractor
	if got := x.Extract(nil); got != "" {
		t.Errorf("Extract(nil) = %q, want empty", got)
	}
}
