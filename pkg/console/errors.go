package console

import "fmt"

// CommandFailedError reports a command that returned non-zero where the
// caller required success. It carries enough context to diagnose the
// failure without replaying the session.
type CommandFailedError struct {
	Machine string
	Command string
	Code    int
	Output  string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("%s: command %q failed with code %d: %s", e.Machine, e.Command, e.Code, e.Output)
}
