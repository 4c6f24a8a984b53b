// Package generation turns interface specifications into prompts and
// generated code. It owns the request/attempt data model, the prompt
// builders, and the test/impl generators that call the LLM client.
package generation

// Attempt is an immutable record of one rejected generation round: the code
// that was produced and the diagnostic explaining why it was rejected
// (a syntax error or an aggregated test-failure report).
type Attempt struct {
	Code   string `json:"code"`
	Errors string `json:"errors"`
}

// TestRequest asks for a unit test suite targeting an interface.
// PriorAttempts is ordered oldest-first; only the last attempt shapes the
// next prompt, earlier ones are retained for audit.
type TestRequest struct {
	Interface     string    `json:"interface"`
	PriorAttempts []Attempt `json:"prior_attempts,omitempty"`
}

// ImplRequest asks for an implementation satisfying an interface and the
// test suite that will be run against it.
type ImplRequest struct {
	Interface     string    `json:"interface"`
	Tests         string    `json:"tests"`
	PriorAttempts []Attempt `json:"prior_attempts,omitempty"`
}

// lastAttempt returns the most recent attempt, or a zero Attempt when none
// exist.
func lastAttempt(attempts []Attempt) Attempt {
	if len(attempts) == 0 {
		return Attempt{}
	}
	return attempts[len(attempts)-1]
}
