// Package guard switches the process into test mode when imported, so
// packages that start the full stack in tests never open real listeners.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ROTA_TEST_MODE") == "" {
			_ = os.Setenv("ROTA_TEST_MODE", "1")
		}
	})
}
