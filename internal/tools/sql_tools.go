package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/models"
)

// ListTablesTool returns the names of the tables visible on the target.
func ListTablesTool(eng engine.Engine, conn *models.DatabaseConnection) Tool {
	return Tool{
		Name:        "list_tables",
		Description: "List the tables available in the target database. Takes no input.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			tables, err := eng.DescribeTables(ctx, conn)
			if err != nil {
				return "", fmt.Errorf("list tables: %w", err)
			}
			names := make([]string, 0, len(tables))
			for _, t := range tables {
				names = append(names, t.Name)
			}
			return strings.Join(names, ", "), nil
		},
	}
}

// TableSchemaTool returns column names and types for the named tables.
func TableSchemaTool(eng engine.Engine, conn *models.DatabaseConnection) Tool {
	return Tool{
		Name:        "get_table_schema",
		Description: "Get the columns and types of one or more tables. Input is a comma-separated list of table names.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tables": map[string]interface{}{
					"type":        "string",
					"description": "Comma-separated table names",
				},
			},
			"required": []string{"tables"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			want, _ := input["tables"].(string)
			if want == "" {
				return "", fmt.Errorf("tables is required")
			}
			requested := map[string]bool{}
			for _, name := range strings.Split(want, ",") {
				requested[strings.TrimSpace(name)] = true
			}
			tables, err := eng.DescribeTables(ctx, conn)
			if err != nil {
				return "", fmt.Errorf("describe tables: %w", err)
			}
			var sb strings.Builder
			for _, t := range tables {
				if !requested[t.Name] {
					continue
				}
				sb.WriteString(t.Name + ":\n")
				for _, c := range t.Columns {
					fmt.Fprintf(&sb, "  %s %s\n", c.Name, c.Type)
				}
			}
			if sb.Len() == 0 {
				return "", fmt.Errorf("no matching tables: %s", want)
			}
			return sb.String(), nil
		},
	}
}

// SampleRowsTool fetches a handful of rows so the agent can verify values
// before writing joins or filters.
func SampleRowsTool(eng engine.Engine, conn *models.DatabaseConnection, maxRows int) Tool {
	sample := maxRows
	if sample > 5 {
		sample = 5
	}
	return Tool{
		Name:        "sample_rows",
		Description: "Fetch a few sample rows from a table to inspect real values.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"table": map[string]interface{}{
					"type":        "string",
					"description": "Table name to sample",
				},
			},
			"required": []string{"table"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			table, _ := input["table"].(string)
			if table == "" {
				return "", fmt.Errorf("table is required")
			}
			result, err := eng.RunSQL(ctx, conn, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, sample), sample)
			if err != nil {
				return "", err
			}
			return marshalResult(result)
		},
	}
}

// ExecuteSQLTool runs a candidate query through the guard and row ceiling.
func ExecuteSQLTool(eng engine.Engine, conn *models.DatabaseConnection, maxRows int) Tool {
	return Tool{
		Name:        ExecuteSQLName,
		Description: "Execute a SQL SELECT query against the target database and return the results. Only SELECT queries are allowed.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sql": map[string]interface{}{
					"type":        "string",
					"description": "The SQL SELECT query to execute",
				},
			},
			"required": []string{"sql"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			sqlText, _ := input["sql"].(string)
			if sqlText == "" {
				return "", fmt.Errorf("sql is required")
			}
			result, err := eng.RunSQL(ctx, conn, sqlText, maxRows)
			if err != nil {
				return "", err
			}
			return marshalResult(result)
		},
	}
}

func marshalResult(result *engine.QueryResult) (string, error) {
	out := map[string]interface{}{
		"row_count": len(result.Rows),
		"columns":   result.Columns,
		"rows":      result.Rows,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(b), nil
}
