package led

// Indicator is the logical LED the recorder drives.
const Indicator = "indicator"

// Patterns understood by every Controller.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
)

// Controller abstracts LED hardware control across different SBC boards.
// Implementations map logical LED names onto board-specific ones.
type Controller interface {
	// Set turns an LED on or off and optionally changes its pattern.
	// An empty pattern leaves the current pattern untouched.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the logical LED names supported by this controller
	Available() []string

	// Patterns returns the patterns supported by this controller
	Patterns() []string
}
