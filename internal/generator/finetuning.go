package generator

import (
	"context"
	"strings"
	"time"

	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/metrics"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/tools"
)

const finetunedSystemPrompt = `You are a fine-tuned SQL generation model for this database. You already know the schema.

RULES:
1. Generate only SELECT queries - never INSERT, UPDATE, DELETE, DROP, or DDL
2. Consult get_table_schema only when unsure about a column
3. ALWAYS wrap your final SQL in a code block exactly like this:
` + "```sql" + `
SELECT ...
` + "```" + `
4. Execute the SQL exactly once after writing it`

// FinetuningAgent is the fine-tuned variant: a slimmer toolset because the
// model already carries the schema, plus a finetuning reference propagated
// into every record it produces for traceability.
type FinetuningAgent struct {
	runner       agentRunner
	finetuningID string
	engines      *engine.Resolver
	extractor    SQLExtractor
	traces       *TraceFormatter
	coordinator  *StreamingCoordinator
	maxRows      int
}

func NewFinetuningAgent(
	apiKey, model, baseURL, finetuningID string,
	maxTokens, maxIterations int,
	engines *engine.Resolver,
	traces *TraceFormatter,
	coordinator *StreamingCoordinator,
	maxRows int,
) *FinetuningAgent {
	return &FinetuningAgent{
		runner:       newAgentRunner(apiKey, model, baseURL, maxTokens, maxIterations),
		finetuningID: finetuningID,
		engines:      engines,
		traces:       traces,
		coordinator:  coordinator,
		maxRows:      maxRows,
	}
}

func (a *FinetuningAgent) toolset(eng engine.Engine, conn *models.DatabaseConnection) []tools.Tool {
	return []tools.Tool{
		tools.TableSchemaTool(eng, conn),
		tools.ExecuteSQLTool(eng, conn, a.maxRows),
	}
}

func (a *FinetuningAgent) GenerateResponse(ctx context.Context, prompt *models.Prompt, conn *models.DatabaseConnection) (*models.SQLGeneration, error) {
	eng, err := a.engines.ForConnection(conn)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	steps, final, tokens, err := a.runner.run(ctx, finetunedSystemPrompt, prompt.Text, a.toolset(eng, conn), nil)
	metrics.ObserveAgentRun(time.Since(start))
	if err != nil {
		return nil, err
	}

	sqlQuery := a.extractor.Extract(steps)
	if sqlQuery == "" {
		if candidate := SanitizeQuery(RemoveMarkdown(final)); strings.HasPrefix(strings.ToUpper(candidate), "SELECT") {
			sqlQuery = candidate
		}
	}

	trace, err := a.traces.Format(steps, ScratchpadTemplate)
	if err != nil {
		return nil, err
	}

	return &models.SQLGeneration{
		PromptID:          prompt.ID,
		FinetuningID:      a.finetuningID,
		SQL:               SanitizeQuery(sqlQuery),
		Status:            models.StatusNone,
		TokensUsed:        tokens,
		IntermediateSteps: trace,
	}, nil
}

func (a *FinetuningAgent) StreamResponse(ctx context.Context, prompt *models.Prompt, conn *models.DatabaseConnection, rec *models.SQLGeneration, out chan<- string) error {
	rec.FinetuningID = a.finetuningID
	eng, err := a.engines.ForConnection(conn)
	if err != nil {
		return streamSetupFailure(ctx, a.coordinator, conn, rec, out, err)
	}
	return streamRun(ctx, a.coordinator, &a.runner, finetunedSystemPrompt, prompt.Text, a.toolset(eng, conn), eng, conn, rec, out)
}
