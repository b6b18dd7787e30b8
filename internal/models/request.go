package models

// SQLGenerationRequest drives POST /api/v1/prompts/{prompt_id}/sql-generations.
// If SQL is set the generator is bypassed entirely and the literal statement
// goes straight to validation (direct-passthrough mode).
type SQLGenerationRequest struct {
	SQL          string                 `json:"sql,omitempty"`
	FinetuningID string                 `json:"finetuning_id,omitempty"`
	Evaluate     bool                   `json:"evaluate"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// PromptRequest creates a prompt bound to a database connection.
type PromptRequest struct {
	Text         string                 `json:"text"`
	ConnectionID string                 `json:"db_connection_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ConnectionRequest registers a target database.
type ConnectionRequest struct {
	Alias           string `json:"alias"`
	Dialect         string `json:"dialect"`
	Driver          string `json:"driver,omitempty"`
	DSN             string `json:"dsn,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	Dataset         string `json:"dataset,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	Location        string `json:"location,omitempty"`
}

// ExecuteRequest replays a stored generation with a caller-supplied row cap.
type ExecuteRequest struct {
	MaxRows int `json:"max_rows"`
}

func (r *ExecuteRequest) SetDefaults(ceiling int) {
	if r.MaxRows <= 0 || r.MaxRows > ceiling {
		r.MaxRows = ceiling
	}
}

// MetadataRequest patches the open key-value metadata of a generation.
type MetadataRequest struct {
	Metadata map[string]interface{} `json:"metadata"`
}
