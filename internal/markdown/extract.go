// Package markdown extracts fenced code blocks from LLM responses.
// It is a narrow scanner for one bounded pattern, not a markdown parser.
package markdown

import "strings"

// Extract returns the body of the first fenced code block tagged with lang.
// Captured lines are right-trimmed. If the opening fence is never closed,
// everything up to the end of input is returned. If no fence for lang is
// found, the result is empty.
func Extract(content, lang string) string {
	var lines []string
	started := false

	for _, line := range strings.Split(content, "\n") {
		if started {
			if strings.TrimSpace(line) == "```" {
				break
			}
			lines = append(lines, strings.TrimRight(line, " \t\r"))
			continue
		}
		if strings.TrimSpace(line) == "```"+lang {
			started = true
		}
	}

	return strings.Join(lines, "\n")
}

// Wrap fences code for embedding in a prompt, so the model can tell
// instruction prose from code payload.
func Wrap(code, lang string) string {
	return "```" + lang + "\n" + code + "\n```\n\n"
}
