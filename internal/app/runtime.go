package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "FABRICFLOW_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether binaries should exit before opening connections.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads FABRICFLOW_TEST_MODE after environment changes.
func RefreshTestMode() {
	detectTestMode()
}
