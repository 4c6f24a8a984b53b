package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalex/codeless/internal/llm"
	"github.com/digitalex/codeless/internal/logging"
	"github.com/digitalex/codeless/internal/markdown"
)

const implSystemPrompt = "Your job is to implement an interface, making sure the implementation " +
	"passes all the unit tests. The implementation should be fast, " +
	"memory-efficient, and as simple as possible while meeting all " +
	"requirements."

// ImplGenerator produces interface implementations.
type ImplGenerator struct {
	client llm.Client
}

// NewImplGenerator creates an implementation generator backed by the given
// client.
func NewImplGenerator(client llm.Client) *ImplGenerator {
	return &ImplGenerator{client: client}
}

// Generate produces an implementation for the request, selecting the
// initial or improvement prompt by prior attempts. The first fenced code
// block of the response is returned; a response with no usable code block
// is an error.
func (g *ImplGenerator) Generate(ctx context.Context, req ImplRequest) (string, error) {
	prompt := buildImplPrompt(req)

	logging.Get(logging.CategoryGeneration).Debug("requesting implementation (%d prior attempts)", len(req.PriorAttempts))
	response, err := g.client.CompleteWithSystem(ctx, implSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("implementation generation failed: %w", err)
	}

	code := markdown.Extract(response, languageTag)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("implementation generation returned no %s code block", languageTag)
	}

	return code, nil
}
