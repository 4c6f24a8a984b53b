package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sep = "======================================================================"
const rule = "----------------------------------------------------------------------"

var failingOutput = strings.Join([]string{
	"test_add (calculator_test.CalculatorTest) ... ok",
	"test_product (calculator_test.CalculatorTest) ... ERROR",
	"test_subtract (calculator_test.CalculatorTest) ... FAIL",
	"",
	sep,
	"ERROR: test_product (calculator_test.CalculatorTest)",
	rule,
	"Traceback (most recent call last):",
	"  File \"calculator_test.py\", line 14, in test_product",
	"NameError: name 'product' is not defined",
	"",
	sep,
	"FAIL: test_subtract (calculator_test.CalculatorTest)",
	rule,
	"Traceback (most recent call last):",
	"  File \"calculator_test.py\", line 10, in test_subtract",
	"AssertionError: 3 != 1",
	"",
	rule,
	"Ran 3 tests in 0.002s",
	"",
	"FAILED (failures=1, errors=1)",
}, "\n")

func TestParseUnittestOutputAggregatesAllCases(t *testing.T) {
	cases := parseUnittestOutput(failingOutput)
	require.Len(t, cases, 2)

	assert.Equal(t, "ERROR", cases[0].Kind)
	assert.Equal(t, "test_product (calculator_test.CalculatorTest)", cases[0].Name)
	assert.Contains(t, cases[0].Detail, "NameError")

	assert.Equal(t, "FAIL", cases[1].Kind)
	assert.Equal(t, "test_subtract (calculator_test.CalculatorTest)", cases[1].Name)
	assert.Contains(t, cases[1].Detail, "AssertionError: 3 != 1")
}

func TestAggregateFailuresIncludesEveryTest(t *testing.T) {
	report := aggregateFailures(failingOutput)

	assert.Contains(t, report, "Errors:")
	assert.Contains(t, report, "Failures:")
	assert.Contains(t, report, "test_product (calculator_test.CalculatorTest)")
	assert.Contains(t, report, "test_subtract (calculator_test.CalculatorTest)")
	assert.Contains(t, report, "NameError")
	assert.Contains(t, report, "AssertionError: 3 != 1")
}

func TestAggregateFailuresFallsBackToRawOutput(t *testing.T) {
	raw := "SyntaxError: invalid syntax\n"
	assert.Equal(t, "SyntaxError: invalid syntax", aggregateFailures(raw))
}

func TestContainsFailure(t *testing.T) {
	assert.True(t, containsFailure(failingOutput))
	assert.True(t, containsFailure("Traceback (most recent call last):\n..."))
	assert.False(t, containsFailure("Ran 3 tests in 0.001s\n\nOK\n"))
}
