package questiongen

// Config controls the behavior of the Generator.
type Config struct {
	// MaxAttempts bounds oracle calls per question. Duplicates, oracle
	// errors and unparseable replies each consume an attempt.
	MaxAttempts int

	// MaxTokens is the token budget for the LLM response.
	MaxTokens int

	// Temperature is the first attempt's temperature minus TemperatureStep.
	// Each attempt raises it by TemperatureStep, capped at 1.
	Temperature     float64
	TemperatureStep float64
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		MaxTokens:       2000,
		Temperature:     0.7,
		TemperatureStep: 0.1,
	}
}

// temperature returns the sampling temperature for a zero-based attempt.
func (c Config) temperature(attempt int) float64 {
	return min(c.Temperature+c.TemperatureStep*float64(attempt+1), 1)
}
