package generator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/metrics"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
)

// StreamDone is the sentinel end-of-stream marker. It is pushed exactly
// once on every exit path before the channel closes, so consumers stop on
// the sentinel rather than on channel-closed signaling alone.
const StreamDone = "[DONE]"

// Event is one heterogeneous chunk from the underlying agent execution.
// Exactly one of Actions, Steps, Output or Err is expected to be set; any
// other shape is a protocol violation that fails the stream.
type Event struct {
	Actions []string // message fragments, non-terminal
	Steps   []string // tool observations, non-terminal
	Output  *string  // final answer text, terminal on the happy path
	Err     error    // producer-side failure

	// Tokens is the usage delta observed alongside this event.
	Tokens int
}

// StreamingCoordinator drives an agent event stream, relays incremental
// output to the consumer channel, and finalizes the record when the stream
// ends. Its core guarantee: the record never ends up stuck in a
// non-terminal state, whatever the exit path.
type StreamingCoordinator struct {
	validator   *QueryValidator
	generations repository.SQLGenerationRepository
}

func NewStreamingCoordinator(validator *QueryValidator, generations repository.SQLGenerationRepository) *StreamingCoordinator {
	return &StreamingCoordinator{validator: validator, generations: generations}
}

// Run consumes events until the channel closes or a terminal condition is
// hit, then finalizes in order: sentinel, token total, completion stamp,
// validation (when no error was recorded), persistence. Injection and
// engine-limit failures abort the stream and are returned; every other
// failure is recorded on rec, not propagated.
func (c *StreamingCoordinator) Run(
	ctx context.Context,
	events <-chan Event,
	eng engine.Engine,
	conn *models.DatabaseConnection,
	rec *models.SQLGeneration,
	out chan<- string,
) (retErr error) {
	tokens := 0
	var fatal error

	defer func() {
		c.push(ctx, out, StreamDone)
		close(out)

		rec.TokensUsed = tokens
		rec.MarkCompleted(time.Now())

		if rec.Error == "" {
			if rec.SQL != "" {
				if vErr := c.validator.Validate(ctx, eng, conn, rec.SQL, rec); vErr != nil && fatal == nil {
					fatal = vErr
				}
			} else {
				rec.Status = models.StatusInvalid
				rec.Error = "no SQL query generated"
			}
		}

		metrics.CountGeneration(string(rec.Status))
		metrics.CountTokens(tokens)

		if uErr := c.generations.Update(ctx, rec); uErr != nil {
			log.Error().Err(uErr).Str("generation_id", rec.ID).Msg("failed to persist finalized generation")
		}
		retErr = fatal
	}()

loop:
	for ev := range events {
		tokens += ev.Tokens

		switch {
		case ev.Err != nil:
			if models.IsFatalGeneration(ev.Err) {
				// Injection under the agent's own query attempts and
				// engine exhaustion abort the stream; remaining events
				// are bypassed and the error surfaces to the caller.
				fatal = ev.Err
				rec.Status = models.StatusInvalid
				rec.Error = ev.Err.Error()
				break loop
			}
			rec.SQL = ""
			rec.Status = models.StatusInvalid
			rec.Error = ev.Err.Error()
			break loop

		case len(ev.Actions) > 0:
			for _, fragment := range ev.Actions {
				if !c.push(ctx, out, fragment+"\n") {
					break loop
				}
			}

		case len(ev.Steps) > 0:
			for _, observation := range ev.Steps {
				if !c.push(ctx, out, "Observation: `"+observation+"`\n") {
					break loop
				}
			}

		case ev.Output != nil:
			c.push(ctx, out, "Final Answer: "+*ev.Output)
			if strings.Contains(*ev.Output, "```sql") {
				// Best-effort early assignment; validation has the last word.
				rec.SQL = SanitizeQuery(RemoveMarkdown(*ev.Output))
			}

		default:
			rec.SQL = ""
			rec.Status = models.StatusInvalid
			rec.Error = "unrecognized stream event"
			break loop
		}
	}

	return nil
}

// push writes to the consumer channel unless the context is gone. The
// channel is bounded and single-producer; a false return means the consumer
// will never read again.
func (c *StreamingCoordinator) push(ctx context.Context, out chan<- string, s string) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
