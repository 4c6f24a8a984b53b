package runner

import "strings"

// failedCase is one failing or erroring test parsed from unittest output.
type failedCase struct {
	Name   string
	Kind   string // "FAIL" or "ERROR"
	Detail string
}

// containsFailure reports whether unittest output signals a non-passing run
// even when the exit code is unavailable.
func containsFailure(output string) bool {
	return strings.Contains(output, "FAILED") ||
		strings.Contains(output, "\nERROR:") ||
		strings.Contains(output, "Traceback (most recent call last)")
}

// aggregateFailures turns raw unittest output into a report listing every
// failing and erroring test with its detail. When nothing can be parsed the
// raw output is returned so no diagnostic is ever lost.
func aggregateFailures(output string) string {
	cases := parseUnittestOutput(output)
	if len(cases) == 0 {
		return strings.TrimSpace(output)
	}

	var errs, fails []failedCase
	for _, c := range cases {
		if c.Kind == "ERROR" {
			errs = append(errs, c)
		} else {
			fails = append(fails, c)
		}
	}

	var b strings.Builder
	if len(errs) > 0 {
		b.WriteString("Errors:\n")
		for _, c := range errs {
			b.WriteString("  Test: " + c.Name + "\n")
			b.WriteString("  Error: " + c.Detail + "\n")
		}
	}
	if len(fails) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Failures:\n")
		for _, c := range fails {
			b.WriteString("  Test: " + c.Name + "\n")
			b.WriteString("  Failure: " + c.Detail + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// parseUnittestOutput splits verbose unittest output on its "=== ... ==="
// section separators and reads one FAIL/ERROR block per section.
func parseUnittestOutput(output string) []failedCase {
	var cases []failedCase

	sections := strings.Split(output, "\n======================================================================\n")
	for _, section := range sections[1:] {
		lines := strings.SplitN(section, "\n", 2)
		header := strings.TrimSpace(lines[0])

		var kind string
		switch {
		case strings.HasPrefix(header, "FAIL: "):
			kind = "FAIL"
		case strings.HasPrefix(header, "ERROR: "):
			kind = "ERROR"
		default:
			continue
		}

		name := strings.TrimSpace(strings.TrimPrefix(header, kind+": "))
		detail := ""
		if len(lines) > 1 {
			detail = lines[1]
			// Drop the dashed rule under the header and the run summary
			// that trails the last section.
			detail = strings.TrimPrefix(detail, strings.Repeat("-", 70)+"\n")
			if idx := strings.Index(detail, "\n"+strings.Repeat("-", 70)); idx != -1 {
				detail = detail[:idx]
			}
			detail = strings.TrimSpace(detail)
		}

		cases = append(cases, failedCase{Name: name, Kind: kind, Detail: detail})
	}

	return cases
}
