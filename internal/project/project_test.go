package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamelToSnake(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Calculator", "calculator"},
		{"MicroblogDao", "microblog_dao"},
		{"SnakeGameEngine", "snake_game_engine"},
		{"HTTPRequest", "http_request"},
		{"parseHTTPResponse", "parse_http_response"},
		{"already_snake", "already_snake"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CamelToSnake(tt.in), "input %q", tt.in)
	}
}

func TestGuessInterfaceName(t *testing.T) {
	code := "from abc import ABC\n\nclass MicroblogDao(ABC):\n    pass\n"
	name, err := GuessInterfaceName(code)
	require.NoError(t, err)
	assert.Equal(t, "MicroblogDao", name)

	_, err = GuessInterfaceName("def foo():\n    pass\n")
	require.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindImpl, KindOf("output/proj/calculator_impl.py"))
	assert.Equal(t, KindTest, KindOf("output/proj/calculator_test.py"))
	assert.Equal(t, KindInterface, KindOf("output/proj/calculator.py"))
	assert.Equal(t, KindOther, KindOf("output/proj/notes.md"))
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("output/demo", "SnakeGameEngine")

	assert.Equal(t, filepath.Join("output/demo", "snake_game_engine.py"), l.InterfacePath())
	assert.Equal(t, filepath.Join("output/demo", "snake_game_engine_test.py"), l.TestPath())
	assert.Equal(t, filepath.Join("output/demo", "snake_game_engine_impl.py"), l.ImplPath())
}

func TestLayoutForInterfaceFile(t *testing.T) {
	l := LayoutForInterfaceFile("out/p/calculator.py")
	assert.Equal(t, "calculator", l.Prefix)

	l = LayoutForInterfaceFile("out/p/calculator_test.py")
	assert.Equal(t, "calculator", l.Prefix)

	l = LayoutForInterfaceFile("out/p/calculator_impl.py")
	assert.Equal(t, "calculator", l.Prefix)
}

func TestLayoutWrites(t *testing.T) {
	dir := t.TempDir()
	l := NewLayout(filepath.Join(dir, "proj"), "Calculator")

	require.NoError(t, l.WriteInterface("class Calculator(ABC): pass"))
	require.NoError(t, l.WriteTests("test code"))
	require.NoError(t, l.WriteImpl("impl code"))

	got, err := os.ReadFile(l.TestPath())
	require.NoError(t, err)
	assert.Equal(t, "test code", string(got))
}
