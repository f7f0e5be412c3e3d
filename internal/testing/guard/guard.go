// Package guard sets FABRICFLOW_TEST_MODE for test binaries that import it, so
// command entry points return before dialing Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FABRICFLOW_TEST_MODE") == "" {
			_ = os.Setenv("FABRICFLOW_TEST_MODE", "1")
		}
	})
}
