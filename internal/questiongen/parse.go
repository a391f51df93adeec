package questiongen

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/abhisek/codequiz/internal/question"
)

// ErrMalformed is returned when a reply does not follow the template.
var ErrMalformed = errors.New("malformed question reply")

var (
	codingQuestionRe = regexp.MustCompile(`(?s)Question:\s*(.+?)(?:Sample Input:|$)`)
	sampleInputRe    = regexp.MustCompile(`(?s)Sample Input:\s*(.+?)(?:Expected Output:|$)`)
	expectedOutputRe = regexp.MustCompile(`(?s)Expected Output:\s*(.+?)(?:Explanation:|$)`)
	explanationRe    = regexp.MustCompile(`(?s)Explanation:\s*(.+?)$`)

	theoryQuestionRe = regexp.MustCompile(`(?s)Question:\s*(.+?)(?:Model Answer:|$)`)
	modelAnswerRe    = regexp.MustCompile(`(?s)Model Answer:\s*(.+?)$`)

	mcqQuestionRe = regexp.MustCompile(`Question:\s*(.+)`)
	mcqOptionRes  = [4]*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*A\)\s*(.+)$`),
		regexp.MustCompile(`(?m)^\s*B\)\s*(.+)$`),
		regexp.MustCompile(`(?m)^\s*C\)\s*(.+)$`),
		regexp.MustCompile(`(?m)^\s*D\)\s*(.+)$`),
	}
	mcqCorrectRe = regexp.MustCompile(`Correct Answer:\s*\(?([A-Da-d])\b`)
)

// Parse reads an oracle reply in the template for type t.
func Parse(t question.Type, reply string) (question.Question, error) {
	text := stripFences(reply)
	switch t {
	case question.TypeCoding:
		return parseCoding(text)
	case question.TypeTheory:
		return parseTheory(text)
	case question.TypeMCQ:
		return parseMCQ(text)
	}
	return nil, fmt.Errorf("unknown question type %q", t)
}

func parseCoding(text string) (*question.Coding, error) {
	q := &question.Coding{}
	if m := codingQuestionRe.FindStringSubmatch(text); m != nil {
		q.Text = strings.TrimSpace(m[1])
	} else {
		q.Text = text
	}
	if q.Text == "" {
		return nil, fmt.Errorf("%w: empty coding question", ErrMalformed)
	}
	if tc, ok := ExtractTestCase(text); ok {
		q.SampleInput = tc.Input
		q.ExpectedOutput = tc.ExpectedOutput
	}
	q.Explanation = group(explanationRe, text)
	return q, nil
}

func parseTheory(text string) (*question.Theory, error) {
	q := &question.Theory{}
	if m := theoryQuestionRe.FindStringSubmatch(text); m != nil {
		q.Text = strings.TrimSpace(m[1])
		q.ModelAnswer = group(modelAnswerRe, text)
	} else {
		q.Text = text
	}
	if q.Text == "" {
		return nil, fmt.Errorf("%w: empty theory question", ErrMalformed)
	}
	return q, nil
}

func parseMCQ(text string) (*question.MCQ, error) {
	q := &question.MCQ{}
	q.Text = group(mcqQuestionRe, text)
	if q.Text == "" {
		return nil, fmt.Errorf("%w: missing question", ErrMalformed)
	}
	for i, re := range mcqOptionRes {
		q.Options[i] = group(re, text)
		if q.Options[i] == "" {
			return nil, fmt.Errorf("%w: missing option %s", ErrMalformed, question.Options[i])
		}
	}
	correct, err := question.ParseOption(group(mcqCorrectRe, text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	q.Correct = correct
	return q, nil
}

// ExtractTestCase pulls the "Sample Input" / "Expected Output" pair out of
// a coding question's text.
func ExtractTestCase(text string) (question.TestCase, bool) {
	in := group(sampleInputRe, text)
	out := group(expectedOutputRe, text)
	if in == "" || out == "" {
		return question.TestCase{}, false
	}
	return question.TestCase{Input: stripFences(in), ExpectedOutput: stripFences(out)}, true
}

// TestCaseFor returns the sample test case of q from its parsed fields,
// or from its text when the fields are empty.
func TestCaseFor(q *question.Coding) (question.TestCase, bool) {
	if q.SampleInput != "" && q.ExpectedOutput != "" {
		return question.TestCase{Input: q.SampleInput, ExpectedOutput: q.ExpectedOutput}, true
	}
	return ExtractTestCase(q.Text)
}

func group(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// stripFences removes a surrounding ``` block, with or without a language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], " ") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
