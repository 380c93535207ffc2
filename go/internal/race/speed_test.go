package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("   "))
	assert.Equal(t, 1, WordCount("hello"))
	assert.Equal(t, 3, WordCount("one  two\tthree"))
	assert.Equal(t, 2, WordCount("  leading trailing  "))
}

func TestSpeedWPM(t *testing.T) {
	twentyWords := "a b c d e f g h i j k l m n o p q r s t"

	assert.Equal(t, 60, SpeedWPM(twentyWords, 20*time.Second))
	assert.Equal(t, 20, SpeedWPM(twentyWords, time.Minute))
	// 20 words in 90s is 13.33..., rounds down.
	assert.Equal(t, 13, SpeedWPM(twentyWords, 90*time.Second))
	// 7 words in 30s is 14 exactly.
	assert.Equal(t, 14, SpeedWPM("a b c d e f g", 30*time.Second))
}

func TestSpeedWPMZeroElapsed(t *testing.T) {
	assert.Equal(t, 0, SpeedWPM("anything at all", 0))
	assert.Equal(t, 0, SpeedWPM("anything at all", -time.Second))
}
