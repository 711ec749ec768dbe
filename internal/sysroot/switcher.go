// Package sysroot runs in the boot ramdisk, before the real root is active.
//
// Ownership boundary:
// - locating the real system's init inside the mounted sysroot
//
// - requesting the root switch from the running service manager
//
// - exposing the closure's etc artifacts to the ramdisk
package sysroot

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/nixos/nixos-init/internal/chroot"
	"github.com/nixos/nixos-init/internal/cmdline"
	"github.com/nixos/nixos-init/internal/config"
	"github.com/nixos/nixos-init/internal/pointer"
	"github.com/rs/zerolog/log"
)

const (
	EtcMetadataImage = "etc-metadata-image"
	EtcBasedir       = "etc-basedir"
)

var (
	ErrRootSwitchRequestFailed = errors.New("sysroot: root switch request failed")
	ErrEtcLinkFailed           = errors.New("sysroot: etc link failed")
)

// Ops is the privileged capability the ramdisk steps need.
type Ops interface {
	chroot.Helper
	RequestRootSwitch(root string, initPath string) error
}

type Switcher struct {
	layout   config.Layout
	ops      Ops
	resolver *chroot.Resolver
}

func NewSwitcher(layout config.Layout, ops Ops) *Switcher {
	return &Switcher{layout: layout, ops: ops, resolver: chroot.NewResolver(ops)}
}

// FindInit resolves the init= boot parameter inside the sysroot.
func (s *Switcher) FindInit() (chroot.Resolved, error) {
	initArg, err := cmdline.ReadInit(s.layout.Cmdline)
	if err != nil {
		return chroot.Resolved{}, err
	}
	return s.resolver.Resolve(s.layout.Sysroot, initArg)
}

// SwitchRoot asks the service manager to switch into the sysroot. Success
// means the request was accepted, not that the switch happened.
func (s *Switcher) SwitchRoot() error {
	initPath, err := s.FindInit()
	if err != nil {
		return err
	}

	log.Info().Msgf("Switching root to %s...", s.layout.Sysroot)
	log.Info().Msgf("With init %q...", initPath.Path)
	if err := s.ops.RequestRootSwitch(s.layout.Sysroot, initPath.Path); err != nil {
		return fmt.Errorf("%w: init=%q: %w", ErrRootSwitchRequestFailed, initPath.Path, err)
	}
	return nil
}

// LinkEtc publishes links to the closure's etc metadata image and etc basedir
// so the ramdisk can mount /etc before switching root.
func (s *Switcher) LinkEtc() error {
	initPath, err := s.FindInit()
	if err != nil {
		return err
	}
	closure := path.Dir(initPath.Path)
	if closure == initPath.Path {
		return fmt.Errorf("%w: provided init= %q is not in a directory", ErrEtcLinkFailed, initPath.Path)
	}

	for _, name := range []string{EtcMetadataImage, EtcBasedir} {
		resolved, err := s.resolver.Resolve(s.layout.Sysroot, path.Join(closure, name))
		if err != nil {
			return err
		}
		link := filepath.Join(s.layout.EtcLinkDir, name)
		if err := pointer.Publish(resolved.Host(), link); err != nil {
			return fmt.Errorf("%w: failed to link %s: %w", ErrEtcLinkFailed, link, err)
		}
		log.Debug().Str("link", link).Str("target", resolved.Host()).Msg("linked etc artifact")
	}
	return nil
}
