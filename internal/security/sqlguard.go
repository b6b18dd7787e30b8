// Package security holds the pre-execution SQL injection guard and the
// audit trail for generation attempts.
package security

import (
	"regexp"
	"strings"

	"github.com/sqlforge/sqlforge/internal/models"
)

// injectionPatterns are checked against every statement before it reaches
// an engine, whatever code path produced it. Statement chaining outside a
// single read query, file access and classic tautology probes all count.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*DROP\s+`),
	regexp.MustCompile(`(?i);\s*DELETE\s+`),
	regexp.MustCompile(`(?i);\s*INSERT\s+`),
	regexp.MustCompile(`(?i);\s*UPDATE\s+`),
	regexp.MustCompile(`(?i);\s*ALTER\s+`),
	regexp.MustCompile(`(?i);\s*CREATE\s+`),
	regexp.MustCompile(`(?i);\s*TRUNCATE\s+`),
	regexp.MustCompile(`(?i);\s*GRANT\s+`),
	regexp.MustCompile(`(?i);\s*EXEC\s*\(?`),
	regexp.MustCompile(`(?i);\s*EXECUTE\s+`),
	regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`),
	regexp.MustCompile(`(?i)\bINTO\s+DUMPFILE\b`),
	regexp.MustCompile(`(?i)\bLOAD\s+DATA\b`),
	regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`),
	regexp.MustCompile(`(?i)\bPG_SLEEP\s*\(`),
	regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`),
	regexp.MustCompile(`(?i)\bSLEEP\s*\(`),
	regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
	regexp.MustCompile(`;\s*--`), // statement terminator + comment
	regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)\bOR\s+'1'\s*=\s*'1'`),
}

// forbiddenKeywords reject write statements even without chaining.
var forbiddenKeywords = regexp.MustCompile(
	`(?i)^\s*(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|MERGE)\b`)

// SQLGuard classifies a statement as safe to execute or injection-shaped.
type SQLGuard struct{}

func NewSQLGuard() *SQLGuard {
	return &SQLGuard{}
}

// Check returns a *models.SQLInjectionError when the statement is judged
// unsafe, nil otherwise. Runs before execution on every path, including
// the agent's own query attempts.
func (g *SQLGuard) Check(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &models.SQLInjectionError{Msg: "empty SQL statement"}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		if forbiddenKeywords.MatchString(trimmed) {
			return &models.SQLInjectionError{Msg: "sensitive SQL keyword detected in the query"}
		}
		return &models.SQLInjectionError{Msg: "only SELECT queries are allowed"}
	}

	// A semicolon followed by anything but trailing whitespace means a
	// second statement is chained on.
	if idx := strings.Index(trimmed, ";"); idx != -1 && strings.TrimSpace(trimmed[idx+1:]) != "" {
		return &models.SQLInjectionError{Msg: "multiple statements are not allowed"}
	}

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(sql) {
			return &models.SQLInjectionError{Msg: "SQL injection pattern detected: " + pattern.String()}
		}
	}

	return nil
}
