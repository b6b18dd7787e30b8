package generator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/config"
	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/metrics"
	"github.com/sqlforge/sqlforge/internal/models"
)

// QueryValidator runs a candidate SQL string against the live database
// under a row ceiling and classifies the outcome.
type QueryValidator struct {
	maxRows   int
	maxErrLen int
}

func NewQueryValidator(maxRows int) *QueryValidator {
	if maxRows <= 0 {
		maxRows = config.DefaultUpperLimitQueryReturnRows
	}
	return &QueryValidator{maxRows: maxRows, maxErrLen: config.DefaultErrorMaxLength}
}

// MaxRows is the enforced result ceiling.
func (v *QueryValidator) MaxRows() int { return v.maxRows }

// Validate executes sqlText and writes the classification onto gen.
// Ordinary execution failures (bad syntax, missing objects) are an expected
// business outcome: recorded as INVALID, never returned as an error.
// Injection and engine-limit failures are recorded AND returned so callers
// can abort the attempt.
func (v *QueryValidator) Validate(ctx context.Context, eng engine.Engine, conn *models.DatabaseConnection, sqlText string, gen *models.SQLGeneration) error {
	start := time.Now()
	gen.SQL = sqlText

	_, err := eng.RunSQL(ctx, conn, sqlText, v.maxRows)
	metrics.ObserveValidation(time.Since(start))

	if err != nil {
		gen.Status = models.StatusInvalid
		gen.Error = v.boundError(err.Error())
		if models.IsFatalGeneration(err) {
			return err
		}
		log.Debug().Str("generation_id", gen.ID).Str("error", gen.Error).Msg("query classified INVALID")
		return nil
	}

	gen.Status = models.StatusValid
	gen.Error = ""
	return nil
}

func (v *QueryValidator) boundError(msg string) string {
	if len(msg) > v.maxErrLen {
		return msg[:v.maxErrLen]
	}
	return msg
}
