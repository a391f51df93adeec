package evaluator

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"text/template"

	"github.com/abhisek/codequiz/internal/llm"
)

// VerdictSchema is the structured reply expected from the judge.
var VerdictSchema = &llm.Schema{
	Name:        "answer-verdict",
	Description: "Grading verdict for a submitted answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correct": map[string]any{
				"type":        "boolean",
				"description": "Whether the answer is correct",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "Brief explanation of the evaluation result",
			},
			"failed_test_cases": map[string]any{
				"type":        "array",
				"description": "Short descriptions of failing inputs, if any",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required":             []any{"correct", "feedback", "failed_test_cases"},
		"additionalProperties": false,
	},
}

// Verdict is the judge's decision.
type Verdict struct {
	Correct         bool     `json:"correct"`
	Feedback        string   `json:"feedback"`
	FailedTestCases []string `json:"failed_test_cases"`

	// Heuristic is set when the reply was not valid JSON and was read
	// with pattern matching instead.
	Heuristic bool `json:"-"`
}

const feedbackUnavailable = "Feedback not available"

var (
	fenceRe         = regexp.MustCompile("```(?:json)?")
	correctTrueRe   = regexp.MustCompile(`(?i)"correct"\s*:\s*true`)
	feedbackFieldRe = regexp.MustCompile(`"feedback":\s*"([^"]+)"`)
)

// parseVerdict reads a judge reply. Replies that fail to decode or to
// match the schema are read heuristically.
func parseVerdict(raw []byte) Verdict {
	clean := strings.TrimSpace(fenceRe.ReplaceAllString(string(raw), ""))
	if err := llm.ValidateJSON(VerdictSchema, json.RawMessage(clean)); err == nil {
		var v Verdict
		if err := json.Unmarshal([]byte(clean), &v); err == nil {
			return v
		}
	}
	return heuristicVerdict(clean)
}

// heuristicVerdict is correct only on an explicit `"correct": true`.
func heuristicVerdict(text string) Verdict {
	v := Verdict{
		Correct:   correctTrueRe.MatchString(text),
		Feedback:  feedbackUnavailable,
		Heuristic: true,
	}
	if m := feedbackFieldRe.FindStringSubmatch(text); m != nil {
		v.Feedback = m[1]
	}
	return v
}

const codingSystemPrompt = `You are a code verification assistant. You decide whether submitted code correctly solves a programming problem and give brief, constructive feedback.

Rules:
- When test case results are available they are the primary basis for the decision.
- When no test cases are available, judge correctness from the problem statement.
- Keep feedback to two or three sentences.
- Respond only with the JSON object described below.`

const theorySystemPrompt = `You are a programming instructor grading short written answers. You decide whether an answer is correct and give a brief hint when it is not.

Rules:
- Accept answers that are conceptually right even if worded differently from the reference.
- Reject answers that are vague, incomplete on the key point, or factually wrong.
- Keep feedback to two or three sentences.
- Respond only with the JSON object described below.`

const replyFormat = `Respond with a JSON object in the following format:
{"correct": true or false, "feedback": "brief explanation", "failed_test_cases": ["description of each failing input, empty if none"]}`

var codingTemplate = template.Must(template.New("coding").Parse(`### Problem
{{.Question}}

### Submitted code ({{.Language}})
` + "```" + `
{{.Answer}}
` + "```" + `

### Test case results
{{- if eq .Total 0}}
No test cases available.
{{- else if eq (len .Failed) 0}}
All {{.Total}} test cases passed.
{{- else}}
{{len .Failed}} out of {{.Total}} test cases failed:
{{- range .Failed}}
- input: {{printf "%q" .Input}} expected: {{printf "%q" .ExpectedOutput}}{{if .Error}} error: {{.Error}}{{end}}
{{- end}}
{{- end}}

`))

var theoryTemplate = template.Must(template.New("theory").Parse(`### Question
{{.Question}}
{{- if .Reference}}

### Reference answer
{{.Reference}}
{{- end}}

### Student answer
{{.Answer}}

`))

type codingPrompt struct {
	Question string
	Language string
	Answer   string
	Total    int
	Failed   []FailedCase
}

type theoryPrompt struct {
	Question  string
	Reference string
	Answer    string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	buf.WriteString(replyFormat)
	return buf.String(), nil
}
