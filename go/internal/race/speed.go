package race

import (
	"math"
	"strings"
	"time"
)

// WordCount splits on whitespace runs.
func WordCount(input string) int {
	return len(strings.Fields(input))
}

// SpeedWPM computes words per minute from a typed input and the locally
// measured elapsed time. Elapsed time always comes from local wall-clock
// deltas: the relay offers no ordering or latency guarantee suitable for
// timing.
func SpeedWPM(input string, elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(float64(WordCount(input)) / elapsed.Minutes()))
}
