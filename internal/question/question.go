// Package question defines the question sum type shared by the bank,
// the generator, the allocator and the evaluator.
package question

import (
	"fmt"
	"strings"
	"time"
)

// Type tags a question variant.
type Type string

const (
	TypeCoding Type = "coding"
	TypeTheory Type = "theory"
	TypeMCQ    Type = "mcq"
)

// Types lists every question type in allocation preference order.
var Types = []Type{TypeCoding, TypeTheory, TypeMCQ}

// ParseType parses a question type tag. "multiple_choice" is accepted as
// an alias for mcq.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coding":
		return TypeCoding, nil
	case "theory":
		return TypeTheory, nil
	case "mcq", "multiple_choice":
		return TypeMCQ, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// Ref identifies a question across the three pools.
type Ref struct {
	Type Type  `json:"question_type"`
	ID   int64 `json:"question_id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// Meta holds the fields every variant carries.
type Meta struct {
	ID        int64     `json:"id"`
	Language  string    `json:"language"`
	Level     string    `json:"level"`
	Text      string    `json:"question_text"`
	CreatedAt time.Time `json:"created_at"`
}

// Question is one of *Coding, *Theory or *MCQ.
type Question interface {
	Kind() Type
	Base() *Meta
	isQuestion()
}

// TestCase is an (input, expected output) pair owned by a coding question.
type TestCase struct {
	ID             int64  `json:"id,omitempty"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// Coding is a programming exercise graded by execution and the judge.
type Coding struct {
	Meta
	SampleInput    string     `json:"sample_input,omitempty"`
	ExpectedOutput string     `json:"expected_output,omitempty"`
	Explanation    string     `json:"explanation,omitempty"`
	TestCases      []TestCase `json:"-"`
}

// Theory is a free-text question graded by the judge.
type Theory struct {
	Meta
	ModelAnswer string `json:"-"`
}

// MCQ is a four-option multiple-choice question.
type MCQ struct {
	Meta
	Options [4]string `json:"options"`
	Correct Option    `json:"-"`
}

func (*Coding) Kind() Type { return TypeCoding }
func (*Theory) Kind() Type { return TypeTheory }
func (*MCQ) Kind() Type    { return TypeMCQ }

func (q *Coding) Base() *Meta { return &q.Meta }
func (q *Theory) Base() *Meta { return &q.Meta }
func (q *MCQ) Base() *Meta    { return &q.Meta }

func (*Coding) isQuestion() {}
func (*Theory) isQuestion() {}
func (*MCQ) isQuestion()    {}

// RefOf returns the reference for q.
func RefOf(q Question) Ref {
	return Ref{Type: q.Kind(), ID: q.Base().ID}
}

// Option is one of the four MCQ labels.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the labels in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// ParseOption accepts "b", " B ", "B)" and "B." forms.
func ParseOption(s string) (Option, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimRight(s, ").:")
	for _, o := range Options {
		if s == string(o) {
			return o, nil
		}
	}
	return "", fmt.Errorf("invalid option %q", s)
}

// Index returns the zero-based position of o.
func (o Option) Index() int {
	for i, v := range Options {
		if v == o {
			return i
		}
	}
	return -1
}
