package security

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// AuditLogger records generation attempts with hashed payloads. Question
// text and SQL are never logged verbatim; result rows are never logged at
// all.
type AuditLogger struct {
	enabled bool
}

func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// LogGeneration records the terminal outcome of one generation attempt.
func (a *AuditLogger) LogGeneration(generationID, promptText, sql, status string, tokensUsed int, durationMs int64) {
	if !a.enabled {
		return
	}
	sqlHash := ""
	if sql != "" {
		sqlHash = hashStr(sql)[:16]
	}
	log.Info().
		Str("event", "generation_audit").
		Str("generation_id", generationID).
		Str("prompt_hash", hashStr(promptText)[:16]).
		Str("sql_hash", sqlHash).
		Str("status", status).
		Int("tokens_used", tokensUsed).
		Int64("duration_ms", durationMs).
		Msg("audit")
}

// LogExecution records a replay of a stored generation.
func (a *AuditLogger) LogExecution(generationID string, maxRows, rowCount int, success bool, errMsg string) {
	if !a.enabled {
		return
	}
	evt := log.Info().
		Str("event", "execution_audit").
		Str("generation_id", generationID).
		Int("max_rows", maxRows).
		Int("row_count", rowCount).
		Bool("success", success)
	if errMsg != "" {
		evt = evt.Str("error", errMsg)
	}
	evt.Msg("audit")
}

func hashStr(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
