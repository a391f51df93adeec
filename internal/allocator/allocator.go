// Package allocator splits a quiz's questions across the three question
// types and picks the type of the next question served.
package allocator

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/abhisek/codequiz/internal/question"
)

// DefaultTopProbability is the chance of serving the type furthest from
// its target rather than a uniform pick.
const DefaultTopProbability = 0.8

// Balanced splits total evenly. Coding takes the first remainder slot and
// theory the second.
func Balanced(total int) question.Counts {
	if total <= 0 {
		return question.Counts{}
	}
	base, rem := total/3, total%3
	c := question.Counts{Coding: base, Theory: base, MCQ: base}
	if rem > 0 {
		c.Coding++
	}
	if rem > 1 {
		c.Theory++
	}
	return c
}

// Split fits the balanced split of total into avail. Each type is capped
// at its availability and the shortfall is handed to coding, theory and
// mcq in that order. The result sums to min(total, avail.Total()).
func Split(total int, avail question.Counts) question.Counts {
	want := Balanced(total)
	var out question.Counts
	for _, t := range question.Types {
		out = out.Set(t, min(want.Get(t), max(avail.Get(t), 0)))
	}

	short := max(total, 0) - out.Total()
	for _, t := range question.Types {
		if short <= 0 {
			break
		}
		extra := min(short, max(avail.Get(t), 0)-out.Get(t))
		if extra > 0 {
			out = out.Add(t, extra)
			short -= extra
		}
	}
	return out
}

// Gap returns how many questions of each type to generate so that avail
// can cover total. Types below their balanced target are topped up first;
// any remainder is spread round-robin.
func Gap(total int, avail question.Counts) question.Counts {
	need := total - avail.Total()
	if need <= 0 {
		return question.Counts{}
	}

	want := Balanced(total)
	var out question.Counts
	for _, t := range question.Types {
		n := min(need, max(want.Get(t)-avail.Get(t), 0))
		out = out.Add(t, n)
		need -= n
	}
	for i := 0; need > 0; i++ {
		out = out.Add(question.Types[i%len(question.Types)], 1)
		need--
	}
	return out
}

// Picker chooses the type of a quiz's next question.
type Picker struct {
	rng            *rand.Rand
	TopProbability float64
}

// NewPicker returns a Picker drawing from rng. A nil rng uses the global
// source.
func NewPicker(rng *rand.Rand) *Picker {
	return &Picker{rng: rng, TopProbability: DefaultTopProbability}
}

func (p *Picker) roll() float64 {
	if p.rng == nil {
		return rand.Float64()
	}
	return p.rng.Float64()
}

func (p *Picker) pick(n int) int {
	if p.rng == nil {
		return rand.IntN(n)
	}
	return p.rng.IntN(n)
}

// Eligible returns the types a quiz of total questions may serve next,
// ranked by fractional distance from their balanced targets, largest
// first. remaining counts unseen questions per type.
func Eligible(total int, answered, remaining question.Counts) []question.Type {
	targets := Balanced(total)

	var types []question.Type
	for _, t := range question.Types {
		if remaining.Get(t) > 0 && answered.Get(t) < targets.Get(t) {
			types = append(types, t)
		}
	}
	if len(types) == 0 && answered.Total() < total {
		for _, t := range question.Types {
			if remaining.Get(t) > 0 {
				types = append(types, t)
			}
		}
	}

	distance := func(t question.Type) float64 {
		target := targets.Get(t)
		if target == 0 {
			return 0
		}
		return float64(target-answered.Get(t)) / float64(target)
	}
	slices.SortStableFunc(types, func(a, b question.Type) int {
		return cmp.Compare(distance(b), distance(a))
	})
	return types
}

// Next picks the next type, or reports false when nothing is eligible.
// The top-ranked type wins with probability TopProbability; otherwise the
// pick is uniform over all eligible types.
func (p *Picker) Next(total int, answered, remaining question.Counts) (question.Type, bool) {
	types := Eligible(total, answered, remaining)
	switch len(types) {
	case 0:
		return "", false
	case 1:
		return types[0], true
	}
	if p.roll() < p.TopProbability {
		return types[0], true
	}
	return types[p.pick(len(types))], true
}
