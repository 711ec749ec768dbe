package privileged

import (
	"bytes"
	"errors"
	"io/fs"
	"os/exec"
)

// Result is what a helper left behind after it exited.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// CommandRunner runs one helper to completion.
type CommandRunner interface {
	Run(name string, args ...string) (Result, error)
}

// ExecRunner executes helpers on the local host and blocks until they exit.
// A nil Env inherits the orchestrator's environment.
type ExecRunner struct {
	Env []string
}

// Run reports exit code 127 when the helper could not be started, matching
// what a shell reports for a missing command.
func (r ExecRunner) Run(name string, args ...string) (Result, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = r.Env
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	var execErr *exec.Error
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = int32(exitErr.ExitCode())
	case errors.As(err, &execErr), errors.As(err, &pathErr):
		res.ExitCode = 127
	default:
		res.ExitCode = 1
	}
	return res, err
}
