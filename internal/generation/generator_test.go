package generation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient records prompts and plays back canned responses.
type stubClient struct {
	responses []string
	err       error
	systems   []string
	prompts   []string
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.systems = append(s.systems, systemPrompt)
	s.prompts = append(s.prompts, userPrompt)
	if s.err != nil {
		return "", s.err
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func TestTestGeneratorExtractsCode(t *testing.T) {
	client := &stubClient{responses: []string{
		"Sure! Here is the suite:\n```python\nclass CalcTest(unittest.TestCase):\n    pass\n```\nHope it helps.",
	}}

	gen := NewTestGenerator(client)
	code, err := gen.Generate(context.Background(), TestRequest{Interface: calcInterface})
	require.NoError(t, err)
	assert.Equal(t, "class CalcTest(unittest.TestCase):\n    pass", code)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.systems[0], "comprehensive test suite")
	assert.Contains(t, client.prompts[0], calcInterface)
}

func TestImplGeneratorSelectsImprovementMode(t *testing.T) {
	client := &stubClient{responses: []string{"```python\nclass CalculatorImpl:\n    pass\n```"}}

	gen := NewImplGenerator(client)
	_, err := gen.Generate(context.Background(), ImplRequest{
		Interface:     calcInterface,
		Tests:         "tests",
		PriorAttempts: []Attempt{{Code: "bad impl", Errors: "AssertionError"}},
	})
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "previously asked")
	assert.Contains(t, client.prompts[0], "bad impl")
	assert.Contains(t, client.prompts[0], "AssertionError")
}

func TestGeneratorPropagatesClientError(t *testing.T) {
	client := &stubClient{err: fmt.Errorf("boom")}

	_, err := NewTestGenerator(client).Generate(context.Background(), TestRequest{Interface: calcInterface})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestGeneratorRejectsUnusableOutput(t *testing.T) {
	client := &stubClient{responses: []string{"I am unable to help with that."}}

	_, err := NewImplGenerator(client).Generate(context.Background(), ImplRequest{Interface: calcInterface})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no python code block")
}
