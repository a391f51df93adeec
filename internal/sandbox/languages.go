package sandbox

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupportedLanguage is matched by every UnsupportedLanguageError.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// UnsupportedLanguageError names a language with no toolchain entry.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Language)
}

func (e *UnsupportedLanguageError) Is(target error) bool {
	return target == ErrUnsupportedLanguage
}

// Toolchain describes how to build and run one language. Commands run in
// the work directory; "{bin}" expands to the absolute path of the built
// executable.
type Toolchain struct {
	Name    string
	File    string
	Compile []string
	Run     []string
}

// Compiled reports whether the toolchain has a build step.
func (t Toolchain) Compiled() bool {
	return len(t.Compile) > 0
}

var toolchains = map[string]Toolchain{
	"python":     {Name: "python", File: "main.py", Run: []string{"python3", "main.py"}},
	"javascript": {Name: "javascript", File: "main.js", Run: []string{"node", "main.js"}},
	"php":        {Name: "php", File: "main.php", Run: []string{"php", "main.php"}},
	"ruby":       {Name: "ruby", File: "main.rb", Run: []string{"ruby", "main.rb"}},
	"java": {
		Name:    "java",
		File:    "Main.java",
		Compile: []string{"javac", "Main.java"},
		Run:     []string{"java", "-cp", ".", "Main"},
	},
	"c": {
		Name:    "c",
		File:    "main.c",
		Compile: []string{"gcc", "main.c", "-O2", "-o", "main"},
		Run:     []string{"{bin}"},
	},
	"cpp": {
		Name:    "cpp",
		File:    "main.cpp",
		Compile: []string{"g++", "main.cpp", "-O2", "-o", "main"},
		Run:     []string{"{bin}"},
	},
	"csharp": {
		Name:    "csharp",
		File:    "main.cs",
		Compile: []string{"mcs", "main.cs", "-out:main.exe"},
		Run:     []string{"mono", "main.exe"},
	},
	"go": {
		Name:    "go",
		File:    "main.go",
		Compile: []string{"go", "build", "-o", "main", "main.go"},
		Run:     []string{"{bin}"},
	},
	"rust": {
		Name:    "rust",
		File:    "main.rs",
		Compile: []string{"rustc", "-O", "main.rs", "-o", "main"},
		Run:     []string{"{bin}"},
	},
}

var aliases = map[string]string{
	"python3": "python",
	"py":      "python",
	"node":    "javascript",
	"nodejs":  "javascript",
	"js":      "javascript",
	"c++":     "cpp",
	"c#":      "csharp",
	"cs":      "csharp",
	"golang":  "go",
}

// Lookup returns the toolchain for language, accepting common aliases in
// any case.
func Lookup(language string) (Toolchain, error) {
	name := strings.ToLower(strings.TrimSpace(language))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	tc, ok := toolchains[name]
	if !ok {
		return Toolchain{}, &UnsupportedLanguageError{Language: language}
	}
	return tc, nil
}

// Languages returns the canonical names of every supported language.
func Languages() []string {
	out := make([]string, 0, len(toolchains))
	for name := range toolchains {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
