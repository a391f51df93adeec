package question

// Counts holds one integer per question type.
type Counts struct {
	Coding int `json:"coding"`
	Theory int `json:"theory"`
	MCQ    int `json:"mcq"`
}

// Get returns the count for t.
func (c Counts) Get(t Type) int {
	switch t {
	case TypeCoding:
		return c.Coding
	case TypeTheory:
		return c.Theory
	case TypeMCQ:
		return c.MCQ
	}
	return 0
}

// Set returns a copy of c with the count for t replaced.
func (c Counts) Set(t Type, n int) Counts {
	switch t {
	case TypeCoding:
		c.Coding = n
	case TypeTheory:
		c.Theory = n
	case TypeMCQ:
		c.MCQ = n
	}
	return c
}

// Add returns a copy of c with n added to the count for t.
func (c Counts) Add(t Type, n int) Counts {
	return c.Set(t, c.Get(t)+n)
}

// Total sums all types.
func (c Counts) Total() int {
	return c.Coding + c.Theory + c.MCQ
}
