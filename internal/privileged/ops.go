package privileged

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrHelperNotFound = errors.New("privileged: helper not found or not executable")
	ErrHelperFailed   = errors.New("privileged: helper exited unsuccessfully")
)

const (
	DefaultRealpathHelper = "chroot-realpath"
	DefaultMountBinary    = "mount"
	DefaultSystemctl      = "systemctl"
)

// Ops is the full privileged capability used by the orchestrator.
type Ops interface {
	ResolvePathUnderRoot(root string, path string) (string, error)
	BindMount(source string, target string) error
	RemountReadOnly(target string) error
	RequestRootSwitch(root string, initPath string) error
}

// Host implements Ops by invoking helper binaries found on PATH.
type Host struct {
	runner         CommandRunner
	realpathHelper string
	mountBinary    string
	systemctl      string
}

// NewHost returns host-backed privileged operations. A nil runner falls back
// to ExecRunner.
func NewHost(runner CommandRunner) *Host {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Host{
		runner:         runner,
		realpathHelper: DefaultRealpathHelper,
		mountBinary:    DefaultMountBinary,
		systemctl:      DefaultSystemctl,
	}
}

// ResolvePathUnderRoot canonicalizes path as if root were "/". The returned
// path is absolute inside root and does not carry the root prefix.
func (h *Host) ResolvePathUnderRoot(root string, path string) (string, error) {
	stdout, err := h.run(h.realpathHelper, root, path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(stdout), "\n"), nil
}

func (h *Host) BindMount(source string, target string) error {
	_, err := h.run(h.mountBinary, "--bind", source, target)
	return err
}

func (h *Host) RemountReadOnly(target string) error {
	_, err := h.run(h.mountBinary, "-o", "remount,ro,bind", target)
	return err
}

// RequestRootSwitch asks the running service manager to switch root without
// waiting for the switch to happen.
func (h *Host) RequestRootSwitch(root string, initPath string) error {
	_, err := h.run(h.systemctl, "--no-block", "switch-root", root, initPath)
	return err
}

func (h *Host) run(name string, args ...string) ([]byte, error) {
	log.Debug().Str("cmd", name).Strs("args", args).Msg("privileged exec")
	res, err := h.runner.Run(name, args...)
	if msg := strings.TrimSpace(string(res.Stderr)); msg != "" {
		log.Info().Str("cmd", name).Msg(msg)
	}
	if err == nil {
		return res.Stdout, nil
	}
	if helperMissing(res.ExitCode, err) {
		return nil, fmt.Errorf("%w: cmd=%s: %w", ErrHelperNotFound, name, err)
	}
	return nil, fmt.Errorf(
		"%w: cmd=%s args=%q exit=%d stdout=%q stderr=%q: %w",
		ErrHelperFailed,
		name,
		strings.Join(args, " "),
		res.ExitCode,
		strings.TrimSpace(string(res.Stdout)),
		strings.TrimSpace(string(res.Stderr)),
		err,
	)
}

// helperMissing reports whether the helper could not be started at all.
func helperMissing(exitCode int32, err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return true
	}
	return exitCode == 127
}
