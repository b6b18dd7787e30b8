package models

import (
	"errors"
	"fmt"
)

// NotFoundError reports an absent prompt, connection or generation. Mapped
// to 404 at the transport layer; never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// SQLInjectionError is raised when a statement is judged unsafe before
// execution. Fatal for the current attempt; must never be downgraded to an
// ordinary INVALID outcome or swallowed.
type SQLInjectionError struct {
	Msg string
}

func (e *SQLInjectionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "sensitive SQL keyword detected in the query"
}

// EngineLimitError signals resource exhaustion: an engine timeout or an
// agent that stopped on its iteration/tool limit. Distinct from ordinary
// invalid-SQL outcomes.
type EngineLimitError struct {
	Msg string
}

func (e *EngineLimitError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "the engine has timed out or reached the tool limit"
}

// SQLGenerationError wraps any failure from the underlying agent during
// synchronous generation.
type SQLGenerationError struct {
	Err error
}

func (e *SQLGenerationError) Error() string {
	return fmt.Sprintf("sql generation failed: %v", e.Err)
}

func (e *SQLGenerationError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsSQLInjection(err error) bool {
	var inj *SQLInjectionError
	return errors.As(err, &inj)
}

func IsEngineLimit(err error) bool {
	var lim *EngineLimitError
	return errors.As(err, &lim)
}

// IsFatalGeneration reports whether err must abort the current attempt
// instead of being recorded as an INVALID outcome.
func IsFatalGeneration(err error) bool {
	return IsSQLInjection(err) || IsEngineLimit(err)
}
