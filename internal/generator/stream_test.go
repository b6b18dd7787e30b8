package generator_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sqlforge/sqlforge/internal/generator"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
)

func newStreamFixture(t *testing.T) (*generator.StreamingCoordinator, repository.SQLGenerationRepository, *models.SQLGeneration) {
	t.Helper()
	store := repository.NewMemoryStore()
	generations := store.Generations()

	rec := &models.SQLGeneration{ID: "gen-1", PromptID: "prompt-1", Status: models.StatusNone}
	if err := generations.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert pending record: %v", err)
	}

	validator := generator.NewQueryValidator(25)
	return generator.NewStreamingCoordinator(validator, generations), generations, rec
}

func drain(t *testing.T, out <-chan string) []string {
	t.Helper()
	var chunks []string
	for chunk := range out {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestStreamHappyPath(t *testing.T) {
	eng := &stubEngine{}
	coordinator, generations, rec := newStreamFixture(t)

	final := "The answer is 42.\n```sql\nSELECT 42\n```"
	events := make(chan generator.Event, 8)
	events <- generator.Event{Actions: []string{"I should look at the tables"}, Tokens: 10}
	events <- generator.Event{Steps: []string{"users, orders"}, Tokens: 5}
	events <- generator.Event{Output: &final, Tokens: 7}
	close(events)

	out := make(chan string, 64)
	err := coordinator.Run(context.Background(), events, eng, testConn, rec, out)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	chunks := drain(t, out)
	if len(chunks) == 0 || chunks[len(chunks)-1] != generator.StreamDone {
		t.Fatalf("last chunk = %v, want the done sentinel", chunks)
	}
	joined := strings.Join(chunks, "")
	if !strings.Contains(joined, "I should look at the tables") {
		t.Error("action fragment missing from stream")
	}
	if !strings.Contains(joined, "Observation: `users, orders`") {
		t.Error("observation missing from stream")
	}
	if !strings.Contains(joined, "Final Answer: ") {
		t.Error("final answer missing from stream")
	}

	persisted, err := generations.FindByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("load finalized record: %v", err)
	}
	if persisted.Status != models.StatusValid {
		t.Errorf("status = %s, want VALID", persisted.Status)
	}
	if persisted.SQL != "SELECT 42" {
		t.Errorf("sql = %q, want extracted query", persisted.SQL)
	}
	if persisted.TokensUsed != 22 {
		t.Errorf("tokens = %d, want 22", persisted.TokensUsed)
	}
	if persisted.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestStreamFatalErrorAbortsAndPropagates(t *testing.T) {
	eng := &stubEngine{}
	coordinator, generations, rec := newStreamFixture(t)

	events := make(chan generator.Event, 8)
	events <- generator.Event{Actions: []string{"thinking"}}
	events <- generator.Event{Err: &models.SQLInjectionError{Msg: "sensitive SQL keyword detected in the query"}}
	events <- generator.Event{Actions: []string{"never relayed"}}
	close(events)

	out := make(chan string, 64)
	err := coordinator.Run(context.Background(), events, eng, testConn, rec, out)
	if !models.IsSQLInjection(err) {
		t.Fatalf("Run = %v, want injection error propagated", err)
	}

	chunks := drain(t, out)
	sentinels := 0
	for _, c := range chunks {
		if c == generator.StreamDone {
			sentinels++
		}
		if strings.Contains(c, "never relayed") {
			t.Error("events after a fatal error must be bypassed")
		}
	}
	if sentinels != 1 {
		t.Errorf("sentinel count = %d, want exactly one", sentinels)
	}

	persisted, _ := generations.FindByID(context.Background(), rec.ID)
	if persisted.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", persisted.Status)
	}
	if persisted.Error == "" {
		t.Error("error message not recorded")
	}
}

func TestStreamOrdinaryErrorRecordedNotPropagated(t *testing.T) {
	eng := &stubEngine{}
	coordinator, generations, rec := newStreamFixture(t)

	events := make(chan generator.Event, 8)
	events <- generator.Event{Err: errors.New("model refused to answer")}
	close(events)

	out := make(chan string, 64)
	if err := coordinator.Run(context.Background(), events, eng, testConn, rec, out); err != nil {
		t.Fatalf("ordinary producer failure must not propagate, got %v", err)
	}
	drain(t, out)

	persisted, _ := generations.FindByID(context.Background(), rec.ID)
	if persisted.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", persisted.Status)
	}
	if !strings.Contains(persisted.Error, "model refused") {
		t.Errorf("error = %q, want producer message", persisted.Error)
	}
}

func TestStreamWithoutSQLFinalizesInvalid(t *testing.T) {
	eng := &stubEngine{}
	coordinator, generations, rec := newStreamFixture(t)

	final := "I could not find a relevant table."
	events := make(chan generator.Event, 8)
	events <- generator.Event{Output: &final}
	close(events)

	out := make(chan string, 64)
	if err := coordinator.Run(context.Background(), events, eng, testConn, rec, out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	drain(t, out)

	persisted, _ := generations.FindByID(context.Background(), rec.ID)
	if persisted.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", persisted.Status)
	}
	if persisted.Error != "no SQL query generated" {
		t.Errorf("error = %q, want the no-SQL marker", persisted.Error)
	}
	if eng.calls != 0 {
		t.Errorf("engine called %d times, want never without SQL", eng.calls)
	}
}

func TestStreamFinalValidationFailureRecorded(t *testing.T) {
	eng := &stubEngine{err: errors.New("column does not exist")}
	coordinator, generations, rec := newStreamFixture(t)

	final := "```sql\nSELECT nope FROM users\n```"
	events := make(chan generator.Event, 8)
	events <- generator.Event{Output: &final}
	close(events)

	out := make(chan string, 64)
	if err := coordinator.Run(context.Background(), events, eng, testConn, rec, out); err != nil {
		t.Fatalf("ordinary validation failure must not propagate, got %v", err)
	}
	drain(t, out)

	persisted, _ := generations.FindByID(context.Background(), rec.ID)
	if persisted.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", persisted.Status)
	}
	if !strings.Contains(persisted.Error, "column does not exist") {
		t.Errorf("error = %q, want validation message", persisted.Error)
	}
}

func TestStreamUnrecognizedEventFailsStream(t *testing.T) {
	eng := &stubEngine{}
	coordinator, generations, rec := newStreamFixture(t)

	events := make(chan generator.Event, 8)
	events <- generator.Event{} // no field set
	close(events)

	out := make(chan string, 64)
	if err := coordinator.Run(context.Background(), events, eng, testConn, rec, out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	drain(t, out)

	persisted, _ := generations.FindByID(context.Background(), rec.ID)
	if persisted.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", persisted.Status)
	}
	if persisted.Error != "unrecognized stream event" {
		t.Errorf("error = %q, want protocol violation marker", persisted.Error)
	}
}
