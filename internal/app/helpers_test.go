package app

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskancestry/internal/config"
	"github.com/vk/taskancestry/internal/testutil"
)

// exitRecorder stands in for os.Exit in tests.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) get() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func ptr[T any](v T) *T { return &v }

// SetupAppTest creates a new app instance for system testing. The output
// path defaults to a file in a temporary directory.
func SetupAppTest(t *testing.T, cfg *config.Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()

	if cfg.OutputPath == "" {
		cfg.OutputPath = t.TempDir() + "/tree.dot"
	}
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Validate())

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("TASKANCESTRY_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
