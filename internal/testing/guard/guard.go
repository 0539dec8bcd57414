// Package guard forces test mode for binaries that import it before any
// configuration is read.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "POCKETLEDGER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}

// Enabled reports whether test mode is active.
func Enabled() bool {
	return os.Getenv(testModeEnv) == "1"
}
