package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/metrics"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/tools"
	"golang.org/x/sync/singleflight"
)

// GenerationAgent produces a candidate SQL generation, synchronously or as
// a stream of reasoning events. Variants share this contract; dispatch is
// by configuration (presence of a fine-tuning reference), not subclassing.
type GenerationAgent interface {
	// GenerateResponse runs a full reasoning pass and returns a candidate
	// with sql, tokens_used and the formatted trace populated. The caller
	// validates the candidate.
	GenerateResponse(ctx context.Context, prompt *models.Prompt, conn *models.DatabaseConnection) (*models.SQLGeneration, error)

	// StreamResponse drives the reasoning loop in streaming mode, relaying
	// incremental output into out and finalizing rec through the
	// streaming coordinator. rec is guaranteed to reach a terminal state.
	StreamResponse(ctx context.Context, prompt *models.Prompt, conn *models.DatabaseConnection, rec *models.SQLGeneration, out chan<- string) error
}

const defaultModel = "claude-sonnet-4-6"

const baseSystemPrompt = `You are an expert data analyst that answers natural-language questions by writing SQL.

RULES:
1. Generate only SELECT queries - never INSERT, UPDATE, DELETE, DROP, or DDL
2. Inspect the schema of the relevant tables before writing a query
3. For JOIN queries: use sample_rows to verify join key values match before executing
4. ALWAYS wrap your final SQL in a code block exactly like this:
` + "```sql" + `
SELECT ...
` + "```" + `
5. Execute the SQL exactly once after writing it
6. If the question cannot be answered from the available tables, say so plainly`

// ScratchpadTemplate frames the agent's first reasoning step. The trace
// formatter extracts the portion between "Thought: " and the placeholder to
// reconstruct the thought the agent's own log does not capture.
const ScratchpadTemplate = "Begin!\n\nQuestion: {input}\nThought: I should look at the tables in the database to see what I can query. {agent_scratchpad}"

const schemaCacheTTL = 5 * time.Minute

// emitFunc relays one stream event; nil on the synchronous path. A false
// return means the consumer is gone.
type emitFunc func(Event) bool

// agentRunner drives the multi-turn tool-calling loop against the LLM.
type agentRunner struct {
	client        *anthropic.Client
	model         string
	maxTokens     int
	maxIterations int
}

func newAgentRunner(apiKey, model, baseURL string, maxTokens, maxIterations int) agentRunner {
	if model == "" {
		model = defaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return agentRunner{
		client:        anthropic.NewClient(opts...),
		model:         model,
		maxTokens:     maxTokens,
		maxIterations: maxIterations,
	}
}

// run executes the loop until the model stops calling tools. It returns the
// raw steps, the final answer text and total token usage. Tool failures of
// the injection or engine-limit kind abort the run; other tool failures are
// fed back to the model as error observations.
func (r *agentRunner) run(ctx context.Context, systemPrompt, userPrompt string, agentTools []tools.Tool, emit emitFunc) ([]AgentStep, string, int, error) {
	anthToolParams := make([]anthropic.ToolUnionUnionParam, len(agentTools))
	for i, t := range agentTools {
		schema := map[string]interface{}{"type": "object"}
		if props, ok := t.InputSchema["properties"]; ok {
			schema["properties"] = props
		}
		if required, ok := t.InputSchema["required"]; ok {
			schema["required"] = required
		}
		anthToolParams[i] = anthropic.ToolParam{
			Name:        anthropic.String(t.Name),
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	var steps []AgentStep
	tokens := 0
	pendingTokens := 0

	relay := func(ev Event) bool {
		if emit == nil {
			return true
		}
		ev.Tokens = pendingTokens
		pendingTokens = 0
		return emit(ev)
	}
	fail := func(err error) ([]AgentStep, string, int, error) {
		relay(Event{Err: err})
		return steps, "", tokens, err
	}

	for iter := 0; iter < r.maxIterations; iter++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.F(anthropic.Model(r.model)),
			MaxTokens: anthropic.F(int64(r.maxTokens)),
			Messages:  anthropic.F(messages),
			Tools:     anthropic.F(anthToolParams),
		}
		if systemPrompt != "" {
			params.System = anthropic.F([]anthropic.TextBlockParam{
				anthropic.NewTextBlock(systemPrompt),
			})
		}

		resp, err := r.client.Messages.New(ctx, params)
		if err != nil {
			return fail(fmt.Errorf("LLM call failed: %w", err))
		}

		delta := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
		tokens += delta
		pendingTokens += delta

		var textContent string
		var toolCalls []anthropic.ToolUseBlock
		for _, block := range resp.Content {
			switch b := block.AsUnion().(type) {
			case anthropic.TextBlock:
				textContent += b.Text
			case anthropic.ToolUseBlock:
				toolCalls = append(toolCalls, b)
			}
		}

		log.Debug().
			Int("iter", iter).
			Str("stop_reason", string(resp.StopReason)).
			Int("tool_calls", len(toolCalls)).
			Msg("agent iteration")

		if len(toolCalls) == 0 {
			if !relay(Event{Output: &textContent}) {
				return steps, textContent, tokens, ctx.Err()
			}
			return steps, textContent, tokens, nil
		}

		if textContent != "" {
			if !relay(Event{Actions: []string{textContent}}) {
				return steps, "", tokens, ctx.Err()
			}
		}

		messages = append(messages, resp.ToParam())

		var toolResults []anthropic.ContentBlockParamUnion
		var observations []string
		for _, tc := range toolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				log.Warn().Err(err).Str("tool", tc.Name).Msg("failed to parse tool input")
				input = map[string]interface{}{}
			}

			result, execErr := executeTool(ctx, tc.Name, input, agentTools)
			if execErr != nil {
				if models.IsFatalGeneration(execErr) {
					return fail(execErr)
				}
				result = fmt.Sprintf("error: %v", execErr)
			}

			steps = append(steps, AgentStep{
				Action:      tc.Name,
				ActionInput: actionInput(tc.Name, input),
				Log:         textContent,
				Observation: result,
			})
			observations = append(observations, result)
			toolResults = append(toolResults, anthropic.NewToolResultBlock(tc.ID, result, execErr != nil))
		}

		if !relay(Event{Steps: observations}) {
			return steps, "", tokens, ctx.Err()
		}
		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	return fail(&models.EngineLimitError{Msg: "agent stopped due to iteration limit or time limit"})
}

func executeTool(ctx context.Context, name string, input map[string]interface{}, agentTools []tools.Tool) (string, error) {
	for _, t := range agentTools {
		if t.Name == name {
			return t.Execute(ctx, input)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", name)
}

// actionInput renders the tool argument for the trace: raw SQL for the
// query tool, compact JSON otherwise.
func actionInput(name string, input map[string]interface{}) string {
	if name == tools.ExecuteSQLName {
		if sqlText, ok := input["sql"].(string); ok {
			return sqlText
		}
	}
	b, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(b)
}

// schemaCache holds pre-built system prompts keyed by connection ID.
type schemaCacheEntry struct {
	prompt    string
	expiresAt time.Time
}

type schemaCache struct {
	mu    sync.RWMutex
	store map[string]schemaCacheEntry
	sf    singleflight.Group // deduplicate concurrent fetches for one connection
}

func newSchemaCache() *schemaCache {
	return &schemaCache{store: make(map[string]schemaCacheEntry)}
}

func (c *schemaCache) get(connID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[connID]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.prompt, true
}

func (c *schemaCache) set(connID, prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[connID] = schemaCacheEntry{prompt: prompt, expiresAt: time.Now().Add(schemaCacheTTL)}
}

// ReasoningAgent is the standard variant: a full tool-calling loop with
// schema exploration against the target connection.
type ReasoningAgent struct {
	runner      agentRunner
	engines     *engine.Resolver
	extractor   SQLExtractor
	traces      *TraceFormatter
	coordinator *StreamingCoordinator
	maxRows     int
	schemas     *schemaCache
}

func NewReasoningAgent(
	apiKey, model, baseURL string,
	maxTokens, maxIterations int,
	engines *engine.Resolver,
	traces *TraceFormatter,
	coordinator *StreamingCoordinator,
	maxRows int,
) *ReasoningAgent {
	return &ReasoningAgent{
		runner:      newAgentRunner(apiKey, model, baseURL, maxTokens, maxIterations),
		engines:     engines,
		traces:      traces,
		coordinator: coordinator,
		maxRows:     maxRows,
		schemas:     newSchemaCache(),
	}
}

func (a *ReasoningAgent) toolset(eng engine.Engine, conn *models.DatabaseConnection) []tools.Tool {
	return []tools.Tool{
		tools.ListTablesTool(eng, conn),
		tools.TableSchemaTool(eng, conn),
		tools.SampleRowsTool(eng, conn, a.maxRows),
		tools.ExecuteSQLTool(eng, conn, a.maxRows),
	}
}

// buildSystemPrompt returns a cached system prompt pre-loaded with the
// target schema. Concurrent requests for the same connection share a
// single fetch via singleflight.
func (a *ReasoningAgent) buildSystemPrompt(ctx context.Context, eng engine.Engine, conn *models.DatabaseConnection) string {
	if prompt, ok := a.schemas.get(conn.ID); ok {
		return prompt
	}

	v, _, _ := a.schemas.sf.Do(conn.ID, func() (interface{}, error) {
		if prompt, ok := a.schemas.get(conn.ID); ok {
			return prompt, nil
		}

		tables, err := eng.DescribeTables(ctx, conn)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", conn.ID).Msg("schema preload failed, using base prompt")
			return baseSystemPrompt, nil // soft fail, don't cache
		}

		var sb strings.Builder
		sb.WriteString(baseSystemPrompt)
		sb.WriteString("\n\n## Available tables\n")
		for _, t := range tables {
			sb.WriteString(t.Name + ":\n")
			for _, c := range t.Columns {
				fmt.Fprintf(&sb, "  %s %s\n", c.Name, c.Type)
			}
		}
		prompt := sb.String()
		a.schemas.set(conn.ID, prompt)
		return prompt, nil
	})

	if s, ok := v.(string); ok {
		return s
	}
	return baseSystemPrompt
}

func (a *ReasoningAgent) GenerateResponse(ctx context.Context, prompt *models.Prompt, conn *models.DatabaseConnection) (*models.SQLGeneration, error) {
	eng, err := a.engines.ForConnection(conn)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	steps, final, tokens, err := a.runner.run(ctx, a.buildSystemPrompt(ctx, eng, conn), prompt.Text, a.toolset(eng, conn), nil)
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
		SQL:               SanitizeQuery(sqlQuery),
		Status:            models.StatusNone,
		TokensUsed:        tokens,
		IntermediateSteps: trace,
	}, nil
}

func (a *ReasoningAgent) StreamResponse(ctx context.Context, prompt *models.Prompt, conn *models.DatabaseConnection, rec *models.SQLGeneration, out chan<- string) error {
	eng, err := a.engines.ForConnection(conn)
	if err != nil {
		return streamSetupFailure(ctx, a.coordinator, conn, rec, out, err)
	}
	return streamRun(ctx, a.coordinator, &a.runner, a.buildSystemPrompt(ctx, eng, conn), prompt.Text, a.toolset(eng, conn), eng, conn, rec, out)
}

// streamRun wires the runner's events into the coordinator. The producer
// goroutine owns the events channel; cancellation of the run context is the
// only way the coordinator stops a misbehaving producer.
func streamRun(
	ctx context.Context,
	coordinator *StreamingCoordinator,
	runner *agentRunner,
	systemPrompt, userPrompt string,
	agentTools []tools.Tool,
	eng engine.Engine,
	conn *models.DatabaseConnection,
	rec *models.SQLGeneration,
	out chan<- string,
) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-runCtx.Done():
				return false
			}
		}
		// Errors are relayed as events by the runner itself.
		_, _, _, _ = runner.run(runCtx, systemPrompt, userPrompt, agentTools, emit)
	}()

	return coordinator.Run(ctx, events, eng, conn, rec, out)
}

// streamSetupFailure still honors the always-finalize guarantee when the
// stream cannot even start.
func streamSetupFailure(ctx context.Context, coordinator *StreamingCoordinator, conn *models.DatabaseConnection, rec *models.SQLGeneration, out chan<- string, err error) error {
	events := make(chan Event, 1)
	events <- Event{Err: err}
	close(events)
	return coordinator.Run(ctx, events, nil, conn, rec, out)
}
