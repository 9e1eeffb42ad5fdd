package cli

import "errors"

// Sentinel errors for exit code classification.
var (
	// ErrUsage indicates invalid command usage, flags or arguments.
	ErrUsage = errors.New("usage error")

	// ErrConfig indicates missing or unusable configuration.
	ErrConfig = errors.New("configuration error")

	// ErrRuntime indicates a failure while running the command.
	ErrRuntime = errors.New("runtime error")
)

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	case errors.Is(err, ErrConfig):
		return 3
	default:
		return 1
	}
}
