package logger

import (
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fatal must terminate the process after logging; callers use it to stop
// startup on unrecoverable errors. Verified in a child process so the
// test binary itself survives.
func TestFatalExitsProcess(t *testing.T) {
	if os.Getenv("LOGGER_FATAL_CHILD") == "1" {
		log := NewLogger(Config{
			Level:  LevelError,
			Format: FormatText,
			Output: "stdout",
		})
		log.Fatal("startup failed")
		fmt.Println("survived fatal")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatalExitsProcess$")
	cmd.Env = append(os.Environ(), "LOGGER_FATAL_CHILD=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "child must exit non-zero")
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, string(out), "startup failed")
	assert.NotContains(t, string(out), "survived fatal")
}

func TestWithModuleAddsField(t *testing.T) {
	log := NewLogger(Config{
		Level:  LevelDebug,
		Format: FormatJSON,
		Output: "stdout",
	})
	child := log.WithModule("optimizer.ga")
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
}
