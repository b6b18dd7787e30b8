package generator

import (
	"fmt"
	"strings"

	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/tools"
)

// QueryObservationRedaction replaces every query-execution observation in
// the persisted trace. Result rows are never stored, whatever their size.
const QueryObservationRedaction = "QUERY RESULTS ARE NOT STORED FOR PRIVACY REASONS."

const truncationMarker = "... (truncated)"

const (
	thoughtMarker         = "Thought: "
	scratchpadPlaceholder = "{agent_scratchpad}"
	actionMarker          = "Action:"
)

// TraceFormatter converts raw agent steps into a redaction-safe,
// length-bounded audit trail.
type TraceFormatter struct {
	maxObservationLength int
}

func NewTraceFormatter(maxObservationLength int) *TraceFormatter {
	return &TraceFormatter{maxObservationLength: maxObservationLength}
}

// Format builds the persisted trace. The first step's thought is
// reconstructed from the scratchpad template, since the agent's own log
// does not capture the initial reasoning frame; a template without the
// expected markers is a configuration error.
func (f *TraceFormatter) Format(steps []AgentStep, scratchpad string) ([]models.IntermediateStep, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	formatted := make([]models.IntermediateStep, 0, len(steps))
	for _, step := range steps {
		observation := step.Observation
		if step.Action == tools.ExecuteSQLName {
			observation = QueryObservationRedaction
		} else {
			observation = f.truncateObservation(observation)
		}
		thought, _, _ := strings.Cut(step.Log, actionMarker)
		formatted = append(formatted, models.IntermediateStep{
			Thought:     thought,
			Action:      step.Action,
			ActionInput: step.ActionInput,
			Observation: observation,
		})
	}

	firstThought, err := initialThought(scratchpad)
	if err != nil {
		return nil, err
	}
	formatted[0].Thought = firstThought

	return formatted, nil
}

func (f *TraceFormatter) truncateObservation(observation string) string {
	if len(observation) > f.maxObservationLength {
		return observation[:f.maxObservationLength] + truncationMarker
	}
	return observation
}

func initialThought(scratchpad string) (string, error) {
	_, after, ok := strings.Cut(scratchpad, thoughtMarker)
	if !ok {
		return "", fmt.Errorf("scratchpad template missing %q marker", thoughtMarker)
	}
	thought, _, ok := strings.Cut(after, scratchpadPlaceholder)
	if !ok {
		return "", fmt.Errorf("scratchpad template missing %q placeholder", scratchpadPlaceholder)
	}
	return thought, nil
}
