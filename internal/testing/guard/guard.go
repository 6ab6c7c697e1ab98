// Package guard forces test mode before any package init that might touch
// external systems. Import it blank from test files that exercise runtime
// wiring.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SITEFUND_TEST_MODE") == "" {
			_ = os.Setenv("SITEFUND_TEST_MODE", "1")
		}
	})
}
