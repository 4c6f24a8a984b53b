package runner

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(command string) Config {
	cfg := DefaultConfig(".")
	cfg.Command = command
	cfg.Timeout = 10 * time.Second
	return cfg
}

func TestRunPassAndFailExitCodes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on coreutils")
	}

	passed, diag, err := New(testConfig("true")).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Empty(t, diag)

	passed, _, err = New(testConfig("false")).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, passed)
}

func TestRunMissingBinaryIsInfrastructureError(t *testing.T) {
	_, _, err := New(testConfig("definitely-not-a-real-binary-xyz")).Run(context.Background())
	require.Error(t, err)
}

func TestRunEmptyCommand(t *testing.T) {
	_, _, err := New(testConfig("")).Run(context.Background())
	require.Error(t, err)
}
