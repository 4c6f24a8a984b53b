package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalex/codeless/internal/llm"
	"github.com/digitalex/codeless/internal/logging"
	"github.com/digitalex/codeless/internal/markdown"
)

const testSystemPrompt = "Your job is to write a comprehensive test suite that will test any " +
	"implementation of a given python interface. The tests should follow " +
	"best practices, use the standard python `unittest` library."

// TestGenerator produces unit test suites for interfaces.
type TestGenerator struct {
	client llm.Client
}

// NewTestGenerator creates a test generator backed by the given client.
func NewTestGenerator(client llm.Client) *TestGenerator {
	return &TestGenerator{client: client}
}

// Generate produces a test suite for the request. With prior attempts the
// improvement prompt is used, carrying the last attempt's code and
// diagnostic; otherwise the initial prompt. The first fenced code block of
// the response is returned; a response with no usable code block is an
// error.
func (g *TestGenerator) Generate(ctx context.Context, req TestRequest) (string, error) {
	prompt := buildTestPrompt(req)

	logging.Get(logging.CategoryGeneration).Debug("requesting test suite (%d prior attempts)", len(req.PriorAttempts))
	response, err := g.client.CompleteWithSystem(ctx, testSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("test generation failed: %w", err)
	}

	code := markdown.Extract(response, languageTag)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("test generation returned no %s code block", languageTag)
	}

	return code, nil
}
