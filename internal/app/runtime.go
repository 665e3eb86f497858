package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

const testModeEnv = "SALONPOS_TEST_MODE"

// testMode is read once per process; the binaries consult it before dialing
// Postgres, Redis or Kafka.
var testMode = sync.OnceValue(func() bool {
	return parseFlag(os.Getenv(testModeEnv))
})

// InTestMode reports whether SALONPOS_TEST_MODE is set to a true value.
func InTestMode() bool {
	return testMode()
}

// parseFlag accepts the strconv.ParseBool spellings plus "yes"/"on".
func parseFlag(raw string) bool {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case "":
		return false
	case "yes", "on":
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
