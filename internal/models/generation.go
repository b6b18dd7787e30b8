package models

import "time"

// GenerationStatus is the terminal classification of a SQL generation.
// NONE is the pending state a record is created in; VALID and INVALID are
// the only terminal states.
type GenerationStatus string

const (
	StatusNone    GenerationStatus = "NONE"
	StatusValid   GenerationStatus = "VALID"
	StatusInvalid GenerationStatus = "INVALID"
)

// Prompt is the natural-language question a generation answers. Owned by
// the prompt subsystem; read-only to the generation pipeline.
type Prompt struct {
	ID           string                 `json:"id"`
	Text         string                 `json:"text"`
	ConnectionID string                 `json:"db_connection_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// DatabaseConnection holds the parameters of a target database. The
// pipeline treats it as an opaque handle and passes it through to the
// execution engine, which dispatches on Dialect.
type DatabaseConnection struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`

	// Dialect selects the execution engine: "postgres" (any
	// database/sql-compatible DSN) or "bigquery".
	Dialect string `json:"dialect"`

	// Relational engines
	Driver string `json:"driver,omitempty"` // database/sql driver name, default "pgx"
	DSN    string `json:"dsn,omitempty"`

	// BigQuery
	ProjectID       string `json:"project_id,omitempty"`
	Dataset         string `json:"dataset,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	Location        string `json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IntermediateStep is one thought/action/observation unit from an agent's
// reasoning trace. Immutable after creation; persisted as an audit trail
// attached to a SQLGeneration.
type IntermediateStep struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
	Observation string `json:"observation"`
}

// SQLGeneration is one attempt to produce and validate a SQL query from a
// prompt. Created in the pending NONE state before any work starts so a
// partial-failure record always exists, mutated in place by the single flow
// that owns it, and finalized exactly once.
type SQLGeneration struct {
	ID           string `json:"id"`
	PromptID     string `json:"prompt_id"`
	FinetuningID string `json:"finetuning_id,omitempty"`

	SQL    string           `json:"sql"`
	Status GenerationStatus `json:"status"`
	Error  string           `json:"error,omitempty"`

	TokensUsed      int      `json:"tokens_used"`
	Evaluate        bool     `json:"evaluate"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`

	IntermediateSteps []IntermediateStep     `json:"intermediate_steps,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MarkCompleted stamps the completion time once. Repeated calls keep the
// first timestamp.
func (g *SQLGeneration) MarkCompleted(now time.Time) {
	if g.CompletedAt == nil {
		t := now
		g.CompletedAt = &t
	}
}
