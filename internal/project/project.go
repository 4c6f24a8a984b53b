// Package project owns the on-disk layout of a generation project: naming
// conventions, file-path derivation and workspace writes. One project holds
// one interface file plus the generated test suite and implementation next
// to it.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const (
	sourceExt  = ".py"
	testSuffix = "_test.py"
	implSuffix = "_impl.py"
)

var classRegex = regexp.MustCompile(`(?m)^class ([A-Z][A-Za-z0-9_]*)\(ABC\)`)

// GuessInterfaceName extracts the abstract class name from interface code.
// Expects a definition like `class Calculator(ABC):`.
func GuessInterfaceName(code string) (string, error) {
	if m := classRegex.FindStringSubmatch(code); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("cannot find interface name: expected a definition like `class ClassName(ABC):`")
}

// CamelToSnake converts CamelCase to snake_case, keeping initialisms
// together (HTTPRequest -> http_request).
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		boundary := i > 0 &&
			(unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1])))
		if boundary {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// FileKind classifies a project file by its naming convention.
type FileKind int

const (
	KindInterface FileKind = iota
	KindTest
	KindImpl
	KindOther
)

// KindOf classifies a path. Implementation and test suffixes are checked
// before falling back to plain source files; anything that is not Python is
// KindOther.
func KindOf(path string) FileKind {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, implSuffix):
		return KindImpl
	case strings.HasSuffix(name, testSuffix):
		return KindTest
	case strings.HasSuffix(name, sourceExt):
		return KindInterface
	default:
		return KindOther
	}
}

// Layout maps one interface to its file paths inside a project directory.
type Layout struct {
	Dir    string
	Prefix string
}

// NewLayout derives a layout from the interface class name.
func NewLayout(dir, interfaceName string) Layout {
	return Layout{Dir: dir, Prefix: CamelToSnake(interfaceName)}
}

// LayoutForInterfaceFile derives a layout from an existing interface file
// path (the watcher entry point, where only the path is known).
func LayoutForInterfaceFile(path string) Layout {
	base := strings.TrimSuffix(filepath.Base(path), sourceExt)
	base = strings.TrimSuffix(base, strings.TrimSuffix(testSuffix, sourceExt))
	base = strings.TrimSuffix(base, strings.TrimSuffix(implSuffix, sourceExt))
	return Layout{Dir: filepath.Dir(path), Prefix: base}
}

func (l Layout) InterfacePath() string { return filepath.Join(l.Dir, l.Prefix+sourceExt) }
func (l Layout) TestPath() string      { return filepath.Join(l.Dir, l.Prefix+testSuffix) }
func (l Layout) ImplPath() string      { return filepath.Join(l.Dir, l.Prefix+implSuffix) }

// WriteInterface persists the interface source, creating the project
// directory if needed.
func (l Layout) WriteInterface(code string) error { return l.write(l.InterfacePath(), code) }

// WriteTests persists the current test suite.
func (l Layout) WriteTests(code string) error { return l.write(l.TestPath(), code) }

// WriteImpl persists the current implementation.
func (l Layout) WriteImpl(code string) error { return l.write(l.ImplPath(), code) }

func (l Layout) write(path, code string) error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
