// Package problem asks the text provider for word problems and feedback prose.
// It returns raw text; validation happens in package validate.
package problem

import (
	"context"
	"errors"
	"fmt"

	"math-problem-service/internal/domain"
	"math-problem-service/internal/llm"
	"math-problem-service/internal/validate"
)

// FeedbackInput is what the provider needs to comment on an answer.
type FeedbackInput struct {
	ProblemText   string
	CorrectAnswer float64
	UserAnswer    float64
	IsCorrect     bool
}

var problemSchema = &llm.Schema{
	Name:        "math-problem",
	Description: "A Primary 5 arithmetic word problem with its numeric answer",
	Definition:  validate.ProblemSchemaDefinition(),
}

// Generator implements the problem and feedback calls on top of an llm.Provider.
type Generator struct {
	provider llm.Provider
}

func NewGenerator(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// GenerateProblem returns the provider's raw answer to the problem prompt.
func (g *Generator) GenerateProblem(ctx context.Context, difficulty domain.Difficulty, topic domain.Topic) (string, error) {
	prompt, err := problemPrompt(difficulty, topic)
	if err != nil {
		return "", err
	}
	resp, err := g.provider.Generate(llm.WithPurpose(ctx, "problem"), llm.Request{
		System:      problemSystem,
		Prompt:      prompt,
		Schema:      problemSchema,
		MaxTokens:   1024,
		Temperature: 0.9,
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// GenerateFeedback returns the provider's raw feedback text.
func (g *Generator) GenerateFeedback(ctx context.Context, in FeedbackInput) (string, error) {
	resp, err := g.provider.Generate(llm.WithPurpose(ctx, "feedback"), llm.Request{
		System:      feedbackSystem,
		Prompt:      feedbackPrompt(in),
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// classify maps provider failures onto the domain taxonomy.
func classify(err error) error {
	var timeout *llm.ErrTimeout
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}
