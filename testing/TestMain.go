// Package testing switches the process into test mode when imported by a test
// binary, so runtime side effects such as the job scheduler stay off.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/pocketledger/pocketledger/internal/testing/guard"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		if !guard.Enabled() {
			_ = os.Setenv("POCKETLEDGER_TEST_MODE", "1")
		}
		if os.Getenv("AUTH_JWT_SECRET") == "" {
			_ = os.Setenv("AUTH_JWT_SECRET", "test-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
