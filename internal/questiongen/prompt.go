package questiongen

import (
	"fmt"
	"strings"

	"github.com/abhisek/codequiz/internal/question"
)

const systemPrompt = `You are an assessment author for a programming practice platform.

Rules:
- Write exactly one question for the requested language, level and question type.
- The question must be self-contained and answerable without outside context.
- Match the difficulty to the level: beginner questions test syntax and core concepts, advanced questions test design, performance and language internals.
- Follow the response format exactly. Do not add headings, commentary or markdown outside the format.`

// formats holds the per-type response template the parser expects.
var formats = map[question.Type]string{
	question.TypeCoding: `Format your response exactly as follows:
Question: <detailed problem statement with clear requirements>

Sample Input:
<input that illustrates the problem, read from standard input>

Expected Output:
<exact standard output for the sample input>

Explanation:
<brief explanation of the solution approach>`,

	question.TypeTheory: `The question must test conceptual understanding and must not require writing code.
Format your response exactly as follows:
Question: <question text>
Model Answer: <detailed answer that would be graded as correct>`,

	question.TypeMCQ: `Do not include code snippets in the question. Provide four options labeled A, B, C and D with exactly one correct option.
Format your response exactly as follows:
Question: <question text>
Options:
A) <option>
B) <option>
C) <option>
D) <option>
Correct Answer: <letter>`,
}

var typeLabels = map[question.Type]string{
	question.TypeCoding: "coding challenge",
	question.TypeTheory: "theory question",
	question.TypeMCQ:    "multiple-choice question",
}

// buildUserMessage renders the request for one question.
func buildUserMessage(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a high-quality %s %s for the %s programming language.\n",
		req.Level, typeLabels[req.Type], req.Language)
	if req.Type == question.TypeCoding {
		fmt.Fprintf(&b, "The program reads from standard input and writes to standard output, and must be solvable in %s by a %s programmer.\n",
			req.Language, req.Level)
	}
	b.WriteString("\n")
	b.WriteString(formats[req.Type])
	return b.String()
}
