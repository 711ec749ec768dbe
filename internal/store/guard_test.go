package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nixos/nixos-init/internal/privileged"
	"github.com/nixos/nixos-init/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type fakeMounts struct {
	mounts []Mount
	err    error
}

func (f fakeMounts) Mounts() ([]Mount, error) {
	return f.mounts, f.err
}

type fakeRemounter struct {
	calls      []string
	bindErr    error
	remountErr error
}

func (f *fakeRemounter) BindMount(source string, target string) error {
	f.calls = append(f.calls, "bind "+source+" "+target)
	return f.bindErr
}

func (f *fakeRemounter) RemountReadOnly(target string) error {
	f.calls = append(f.calls, "remount-ro "+target)
	return f.remountErr
}

func TestLockDownNoOpWhenReadOnly(t *testing.T) {
	testlog.Start(t)
	ops := &fakeRemounter{}
	g := NewGuard("/nix/store", fakeMounts{mounts: []Mount{
		{Device: "/dev/vda1", MountPoint: "/", Options: []string{"rw"}},
		{Device: "/dev/vda1", MountPoint: "/nix/store", Options: []string{"ro", "nosuid"}},
	}}, ops)

	require.NoError(t, g.LockDown())
	require.Empty(t, ops.calls)
}

func TestLockDownRemountsWritableStore(t *testing.T) {
	testlog.Start(t)
	ops := &fakeRemounter{}
	g := NewGuard("/nix/store", fakeMounts{mounts: []Mount{
		{Device: "/dev/vda1", MountPoint: "/nix/store", Options: []string{"rw", "relatime"}},
	}}, ops)

	require.NoError(t, g.LockDown())
	require.Equal(t, []string{"bind /nix/store /nix/store", "remount-ro /nix/store"}, ops.calls)
}

func TestLockDownUsesLastMatchingMount(t *testing.T) {
	testlog.Start(t)

	ops := &fakeRemounter{}
	g := NewGuard("/nix/store", fakeMounts{mounts: []Mount{
		{Device: "/dev/vda1", MountPoint: "/nix/store", Options: []string{"rw"}},
		{Device: "/dev/vda1", MountPoint: "/nix/store", Options: []string{"ro"}},
	}}, ops)
	require.NoError(t, g.LockDown())
	require.Empty(t, ops.calls, "an earlier writable entry is shadowed by the later read-only one")

	ops = &fakeRemounter{}
	g = NewGuard("/nix/store", fakeMounts{mounts: []Mount{
		{Device: "/dev/vda1", MountPoint: "/nix/store", Options: []string{"ro"}},
		{Device: "overlay", MountPoint: "/nix/store", Options: []string{"rw"}},
		{Device: "tmpfs", MountPoint: "/run", Options: []string{"ro"}},
	}}, ops)
	require.NoError(t, g.LockDown())
	require.Len(t, ops.calls, 2)
}

func TestLockDownFailsWithoutStoreMount(t *testing.T) {
	testlog.Start(t)
	ops := &fakeRemounter{}
	g := NewGuard("/nix/store", fakeMounts{mounts: []Mount{
		{Device: "/dev/vda1", MountPoint: "/", Options: []string{"rw"}},
	}}, ops)

	err := g.LockDown()
	require.ErrorIs(t, err, ErrStoreLockdownFailed)
	require.Empty(t, ops.calls)
}

func TestLockDownFailsOnListError(t *testing.T) {
	testlog.Start(t)
	g := NewGuard("/nix/store", fakeMounts{err: errors.New("no mountinfo")}, &fakeRemounter{})
	require.ErrorIs(t, g.LockDown(), ErrStoreLockdownFailed)
}

func TestLockDownMountFailuresAreFatal(t *testing.T) {
	testlog.Start(t)
	writable := fakeMounts{mounts: []Mount{{MountPoint: "/nix/store", Options: []string{"rw"}}}}

	ops := &fakeRemounter{bindErr: privileged.ErrHelperNotFound}
	err := NewGuard("/nix/store", writable, ops).LockDown()
	require.ErrorIs(t, err, ErrStoreLockdownFailed)
	require.ErrorIs(t, err, privileged.ErrHelperNotFound)
	require.Equal(t, []string{"bind /nix/store /nix/store"}, ops.calls)

	ops = &fakeRemounter{remountErr: privileged.ErrHelperFailed}
	err = NewGuard("/nix/store", writable, ops).LockDown()
	require.ErrorIs(t, err, ErrStoreLockdownFailed)
	require.ErrorIs(t, err, privileged.ErrHelperFailed)
}

func TestEnforcePermissionsSetsMode(t *testing.T) {
	testlog.Start(t)
	dir := filepath.Join(t.TempDir(), "store")
	require.NoError(t, os.Mkdir(dir, 0o755))

	err := NewGuard(dir, fakeMounts{}, &fakeRemounter{}).EnforcePermissions()
	if err != nil {
		// chown to root fails for unprivileged test runs; that must stay best effort.
		require.ErrorIs(t, err, ErrPermissionsDegraded)
	}

	info, statErr := os.Stat(dir)
	require.NoError(t, statErr)
	require.Equal(t, os.ModeDir|storeMode, info.Mode())
}

func TestEnforcePermissionsReportsMissingStore(t *testing.T) {
	testlog.Start(t)
	missing := filepath.Join(t.TempDir(), "missing")
	err := NewGuard(missing, fakeMounts{}, &fakeRemounter{}).EnforcePermissions()
	require.ErrorIs(t, err, ErrPermissionsDegraded)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSystemMountsListsRoot(t *testing.T) {
	testlog.Start(t)
	if _, err := os.Stat("/proc/1/mountinfo"); err != nil {
		t.Skip("no readable mount table")
	}
	mounts, err := SystemMounts{}.Mounts()
	if err != nil {
		t.Skipf("mount table unavailable: %v", err)
	}
	_, ok := lastMountAt(mounts, "/")
	require.True(t, ok)
}
