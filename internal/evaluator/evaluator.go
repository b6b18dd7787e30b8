// Package evaluator scores how confidently a generated query answers its
// prompt. The orchestrator only invokes it when the caller asks for
// evaluation.
package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/models"
)

// Evaluator returns a confidence score in [0,1] for a finished generation.
type Evaluator interface {
	Score(ctx context.Context, prompt *models.Prompt, gen *models.SQLGeneration, conn *models.DatabaseConnection) (float64, error)
}

const scoringPrompt = `Given a natural-language question and a SQL query written to answer it, grade how confident you are that the query answers the question correctly.

Question: %s

SQL:
%s

Reply with a single number between 0.0 and 1.0 and nothing else.`

var scorePattern = regexp.MustCompile(`[01](?:\.\d+)?`)

// ConfidenceEvaluator grades generations with an LLM call.
type ConfidenceEvaluator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewConfidenceEvaluator(apiKey, model, baseURL string) *ConfidenceEvaluator {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ConfidenceEvaluator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 16,
	}
}

func (e *ConfidenceEvaluator) Score(ctx context.Context, prompt *models.Prompt, gen *models.SQLGeneration, _ *models.DatabaseConnection) (float64, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(e.model)),
		MaxTokens: anthropic.F(int64(e.maxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(scoringPrompt, prompt.Text, gen.SQL))),
		}),
	})
	if err != nil {
		return 0, fmt.Errorf("confidence scoring call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	match := scorePattern.FindString(text)
	if match == "" {
		log.Warn().Str("reply", text).Msg("evaluator returned no parseable score")
		return 0, fmt.Errorf("unparseable confidence reply: %q", text)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse confidence %q: %w", match, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
