// Package tools defines the Tool interface and the SQL exploration tools
// the reasoning agent can invoke against a target connection.
package tools

import "context"

// Tool represents a callable function the LLM can invoke
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Execute     func(ctx context.Context, input map[string]interface{}) (string, error)
}

// ExecuteSQLName is the query-execution action. The trace formatter redacts
// its observations and the extractor treats it as the primary SQL source.
const ExecuteSQLName = "execute_sql"
