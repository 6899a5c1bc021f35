// Package validate turns untrusted provider text into checked domain values.
//
// Provider output is never trusted: it is unfenced, decoded, checked against a
// JSON schema and then checked again for values JSON Schema cannot express
// (finite numbers, non-blank text). The first violation rejects the whole payload.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"math-problem-service/internal/domain"
)

// ProblemSchema is the JSON schema a generated problem must satisfy.
const ProblemSchema = `{
	"type": "object",
	"properties": {
		"problem_text": {
			"type": "string",
			"minLength": 1,
			"description": "The word problem shown to the student"
		},
		"final_answer": {
			"type": "number",
			"description": "The numeric answer to the problem"
		},
		"hint": {
			"type": "string",
			"description": "A helpful hint that does not give away the answer"
		},
		"solution_steps": {
			"type": "string",
			"description": "Step by step worked solution"
		}
	},
	"required": ["problem_text", "final_answer"]
}`

// FeedbackSchema is the JSON schema for feedback delivered as an object.
const FeedbackSchema = `{
	"type": "object",
	"properties": {
		"feedback": {"type": "string", "minLength": 1}
	},
	"required": ["feedback"]
}`

// MaxFeedbackRunes bounds feedback text persisted with a submission.
const MaxFeedbackRunes = 2000

const (
	problemSchemaURL  = "schema://math-problem.json"
	feedbackSchemaURL = "schema://math-feedback.json"
)

var (
	compileOnce      sync.Once
	problemCompiled  *jsonschema.Schema
	feedbackCompiled *jsonschema.Schema
	compileErr       error

	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\n?(.*?)\\s*```$")
)

// ParseProblem validates raw provider output as a problem payload.
func ParseProblem(raw string) (domain.Problem, error) {
	problemSchema, _, err := schemas()
	if err != nil {
		return domain.Problem{}, fmt.Errorf("%w: %v", domain.ErrInvalidProblemFormat, err)
	}

	text := StripCodeFence(raw)
	if text == "" {
		return domain.Problem{}, fmt.Errorf("%w: empty payload", domain.ErrInvalidProblemFormat)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return domain.Problem{}, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidProblemFormat, err)
	}
	if err := problemSchema.Validate(doc); err != nil {
		return domain.Problem{}, fmt.Errorf("%w: %v", domain.ErrInvalidProblemFormat, err)
	}

	obj := doc.(map[string]any)
	problemText := strings.TrimSpace(obj["problem_text"].(string))
	if problemText == "" {
		return domain.Problem{}, fmt.Errorf("%w: problem_text is blank", domain.ErrInvalidProblemFormat)
	}

	answer, err := finiteNumber(obj["final_answer"])
	if err != nil {
		return domain.Problem{}, fmt.Errorf("%w: final_answer: %v", domain.ErrInvalidProblemFormat, err)
	}

	return domain.Problem{
		Text:          problemText,
		FinalAnswer:   answer,
		Hint:          optionalString(obj, "hint"),
		SolutionSteps: optionalString(obj, "solution_steps"),
	}, nil
}

// ParseFeedback validates raw provider output as feedback prose. The provider
// may answer with plain text or with an object carrying a "feedback" field.
func ParseFeedback(raw string) (string, error) {
	text := StripCodeFence(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty feedback", domain.ErrInvalidFeedbackFormat)
	}

	if strings.HasPrefix(text, "{") {
		_, feedbackSchema, err := schemas()
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidFeedbackFormat, err)
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
		if err != nil {
			return "", fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidFeedbackFormat, err)
		}
		if err := feedbackSchema.Validate(doc); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidFeedbackFormat, err)
		}
		text = strings.TrimSpace(doc.(map[string]any)["feedback"].(string))
		if text == "" {
			return "", fmt.Errorf("%w: feedback is blank", domain.ErrInvalidFeedbackFormat)
		}
	}

	if utf8.RuneCountInString(text) > MaxFeedbackRunes {
		return "", fmt.Errorf("%w: feedback exceeds %d characters", domain.ErrInvalidFeedbackFormat, MaxFeedbackRunes)
	}
	return text, nil
}

// StripCodeFence trims whitespace and removes one surrounding markdown code fence.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ProblemSchemaDefinition returns the problem schema as a generic map, for
// providers that accept a schema alongside the prompt.
func ProblemSchemaDefinition() map[string]any {
	var def map[string]any
	if err := json.Unmarshal([]byte(ProblemSchema), &def); err != nil {
		panic(fmt.Sprintf("problem schema: %v", err))
	}
	return def
}

func finiteNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not representable: %v", err)
		}
		f = parsed
	case float64:
		f = n
	default:
		return 0, errors.New("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	return f, nil
}

func optionalString(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func schemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	compileOnce.Do(func() {
		problemCompiled, compileErr = compile(problemSchemaURL, ProblemSchema)
		if compileErr != nil {
			return
		}
		feedbackCompiled, compileErr = compile(feedbackSchemaURL, FeedbackSchema)
	})
	return problemCompiled, feedbackCompiled, compileErr
}

func compile(url, definition string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definition))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", url, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", url, err)
	}
	return c.Compile(url)
}
