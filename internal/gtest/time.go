package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimeFactor multiplies every timeout produced by [ScaleMs].
// It is read from the GDAG_TEST_TIME_FACTOR environment variable,
// so that a loaded CI machine can stretch test timeouts without code changes.
var TimeFactor ScaledDuration = 1

func init() {
	f := os.Getenv("GDAG_TEST_TIME_FACTOR")
	if f == "" {
		return
	}

	n, err := strconv.Atoi(f)
	if err != nil {
		panic(fmt.Errorf("failed to parse GDAG_TEST_TIME_FACTOR (%q): %w", f, err))
	}
	if n <= 0 {
		panic(fmt.Errorf("GDAG_TEST_TIME_FACTOR must be positive; got %d", n))
	}

	TimeFactor = ScaledDuration(n)
}

// ScaledDuration is a duration that has already been multiplied by [TimeFactor].
type ScaledDuration time.Duration

// ScaleMs returns ms milliseconds multiplied by [TimeFactor].
func ScaleMs(ms int64) ScaledDuration {
	return TimeFactor * ScaledDuration(ms) * ScaledDuration(time.Millisecond)
}
