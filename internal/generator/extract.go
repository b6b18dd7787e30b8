// Package generator contains the SQL generation pipeline: the agent
// variants that produce a candidate query, the extractor and trace
// formatter that parse the agent's free-form reasoning, the validator that
// classifies the candidate against the live database, and the streaming
// coordinator that relays incremental progress.
package generator

import (
	"regexp"
	"strings"

	"github.com/sqlforge/sqlforge/internal/tools"
)

// AgentStep is one raw reasoning step from the agent execution engine.
type AgentStep struct {
	Action      string // tool name
	ActionInput string // tool argument, typically SQL or a lookup key
	Log         string // assistant text preceding the action
	Observation string // tool result
}

var (
	fencedSQL   = regexp.MustCompile("(?s)```sql(.*?)```")
	lineComment = regexp.MustCompile(`--[^\n]*`)
)

// RemoveMarkdown returns the body of the first ```sql fenced block, or the
// input unchanged when no fence is present.
func RemoveMarkdown(query string) string {
	if m := fencedSQL.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	return query
}

// SanitizeQuery strips surrounding whitespace and unescapes identifiers the
// model tends to mangle.
func SanitizeQuery(query string) string {
	return strings.ReplaceAll(strings.TrimSpace(query), `\_`, "_")
}

// formatQuery strips line comments and reflows whitespace so the SELECT
// check runs on the statement body, not on commentary.
func formatQuery(query string) string {
	withoutComments := lineComment.ReplaceAllString(query, "")
	return strings.Join(strings.Fields(withoutComments), " ")
}

// SQLExtractor pulls the most plausible final SQL statement out of an
// ordered sequence of agent steps.
type SQLExtractor struct{}

// Extract scans query-execution steps first; when none of them carries a
// SELECT it falls back to raw step inputs, accepting a candidate only if it
// starts with SELECT after fence stripping. Empty is a valid, expected
// outcome.
func (SQLExtractor) Extract(steps []AgentStep) string {
	sqlQuery := ""
	for _, step := range steps {
		if step.Action != tools.ExecuteSQLName {
			continue
		}
		if strings.Contains(strings.ToUpper(formatQuery(step.ActionInput)), "SELECT") {
			sqlQuery = RemoveMarkdown(step.ActionInput)
		}
	}
	if sqlQuery == "" {
		for _, step := range steps {
			if !strings.Contains(strings.ToUpper(step.ActionInput), "SELECT") {
				continue
			}
			sqlQuery = RemoveMarkdown(step.ActionInput)
			if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlQuery)), "SELECT") {
				sqlQuery = ""
			}
		}
	}
	return sqlQuery
}
