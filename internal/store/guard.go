// Package store enforces the immutability invariants of the package store.
//
// Ownership boundary:
// - store ownership and mode (best effort)
//
// - read-only bind remount of the store mount (fatal)
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

const (
	storeUID  = 0
	storeGID  = 0
	storeMode = os.ModeSticky | 0o775
)

var (
	// ErrPermissionsDegraded marks a best-effort failure. Callers log it and continue.
	ErrPermissionsDegraded = errors.New("store: permissions not enforced")
	ErrStoreLockdownFailed = errors.New("store: lockdown failed")
)

// Remounter performs the two mount operations the guard needs.
type Remounter interface {
	BindMount(source string, target string) error
	RemountReadOnly(target string) error
}

type Guard struct {
	path   string
	mounts MountLister
	ops    Remounter
}

func NewGuard(path string, mounts MountLister, ops Remounter) *Guard {
	if mounts == nil {
		mounts = SystemMounts{}
	}
	return &Guard{path: path, mounts: mounts, ops: ops}
}

// EnforcePermissions sets owner root:root and mode 01775 on the store. Both
// changes are attempted; failures are joined under ErrPermissionsDegraded.
// Read-only stores and unsupported filesystems end up here.
func (g *Guard) EnforcePermissions() error {
	var errs []error
	if err := os.Chown(g.path, storeUID, storeGID); err != nil {
		errs = append(errs, err)
	}
	if err := os.Chmod(g.path, storeMode); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: store=%q: %w", ErrPermissionsDegraded, g.path, errors.Join(errs...))
}

// LockDown makes the most recent store mount read-only by bind-mounting it
// onto itself and remounting the bind read-only. An already read-only mount
// is left untouched.
func (g *Guard) LockDown() error {
	mounts, err := g.mounts.Mounts()
	if err != nil {
		return fmt.Errorf("%w: list mounts: %w", ErrStoreLockdownFailed, err)
	}
	m, ok := lastMountAt(mounts, g.path)
	if !ok {
		return fmt.Errorf("%w: failed to find the mount point for %s", ErrStoreLockdownFailed, g.path)
	}
	if m.ReadOnly() {
		log.Debug().Str("store", g.path).Str("device", m.Device).Msg("store already read-only")
		return nil
	}

	if err := g.ops.BindMount(g.path, g.path); err != nil {
		return fmt.Errorf("%w: bind mount %s: %w", ErrStoreLockdownFailed, g.path, err)
	}
	if err := g.ops.RemountReadOnly(g.path); err != nil {
		return fmt.Errorf("%w: remount %s read-only: %w", ErrStoreLockdownFailed, g.path, err)
	}
	return nil
}
