package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"bare cr", "a\rb", "a\nb"},
		{"outer whitespace", "\n\n  7  \n\n", "7"},
		{"inner line whitespace", "1 2 \n   3", "1 2\n3"},
		{"interior blank lines kept", "a\n\n b", "a\n\nb"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	assert.Equal(t, Normalize("7\n"), Normalize("7"))
	assert.Equal(t, Normalize("1\r\n2\r\n"), Normalize("  1\n2  "))
	assert.NotEqual(t, Normalize("1 2"), Normalize("1  2"))
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"python", "Python3", " node ", "C++", "c#", "golang", "Java", "rust"} {
		_, err := Lookup(name)
		assert.NoError(t, err, name)
	}

	tc, err := Lookup("python3")
	require.NoError(t, err)
	assert.Equal(t, "python", tc.Name)
	assert.False(t, tc.Compiled())

	tc, err = Lookup("java")
	require.NoError(t, err)
	assert.Equal(t, "Main.java", tc.File)
	assert.True(t, tc.Compiled())

	_, err = Lookup("cobol")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	var ule *UnsupportedLanguageError
	require.True(t, errors.As(err, &ule))
	assert.Equal(t, "cobol", ule.Language)
}

func TestLanguagesSorted(t *testing.T) {
	langs := Languages()
	assert.Len(t, langs, 10)
	assert.IsNonDecreasing(t, langs)
}

func TestRunUnsupportedLanguage(t *testing.T) {
	base := t.TempDir()
	ok, err := New(WithBaseDir(base)).RunCode(context.Background(), "x", "", "", "brainfuck")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	entries, _ := os.ReadDir(base)
	assert.Empty(t, entries, "no work dir for rejected languages")
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func TestRunPython(t *testing.T) {
	requireBinary(t, "python3")

	base := t.TempDir()
	r := New(WithBaseDir(base))
	code := "a, b = map(int, input().split())\nprint(a + b)\n"

	tests := []struct {
		name     string
		input    string
		expected string
		want     Outcome
	}{
		{"pass", "3 4\n", "7", OutcomePass},
		{"pass with crlf expectation", "3 4", "7\r\n", OutcomePass},
		{"wrong output", "3 4", "8", OutcomeWrongOutput},
		{"runtime error", "", "7", OutcomeRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), code, tt.input, tt.expected, "python")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome, "stderr: %s", res.Stderr)
		})
	}

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dirs must be removed")
}

func TestRunTimeout(t *testing.T) {
	requireBinary(t, "python3")

	base := t.TempDir()
	r := New(WithBaseDir(base), WithTimeout(300*time.Millisecond))

	start := time.Now()
	ok, err := r.RunCode(context.Background(), "import time\ntime.sleep(30)\n", "", "", "python3")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)

	entries, _ := os.ReadDir(base)
	assert.Empty(t, entries)
}

func TestRunIsolation(t *testing.T) {
	requireBinary(t, "python3")

	r := New(WithBaseDir(t.TempDir()))
	write := "open('state.txt', 'w').write('x')\nprint('ok')\n"
	read := "import os\nprint(os.path.exists('state.txt'))\n"

	ok, err := r.RunCode(context.Background(), write, "", "ok", "python")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.RunCode(context.Background(), read, "", "False", "python")
	require.NoError(t, err)
	assert.True(t, ok, "a run must not see files left by a previous run")
}

func TestRunCompileError(t *testing.T) {
	requireBinary(t, "gcc")

	res, err := New(WithBaseDir(t.TempDir())).Run(context.Background(), "int main( { return 0; }", "", "", "c")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompileError, res.Outcome)
	assert.NotEmpty(t, res.Stderr)
}

func TestLimitedBuffer(t *testing.T) {
	b := limitedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
	b.Write([]byte("gh"))
	assert.Equal(t, "abcd", b.String())
}
