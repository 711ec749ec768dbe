// Package activate applies a system closure to the running system.
//
// The same sequence runs once at boot and again on every reconfiguration
// without reboot, so each step is safe to repeat with an unchanged or changed
// closure.
package activate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nixos/nixos-init/internal/config"
	"github.com/nixos/nixos-init/internal/pointer"
	"github.com/rs/zerolog/log"
)

var ErrActivationStepFailed = errors.New("activate: activation step failed")

type Activator struct {
	layout config.Layout
}

func New(layout config.Layout) *Activator {
	return &Activator{layout: layout}
}

// Run publishes current-system, points the kernel module loader at the
// wrapped modprobe and sets the firmware search path. Nothing is rolled back
// when a later step fails.
func (a *Activator) Run(cfg config.Activation) error {
	log.Info().Msg("Setting up /run/current-system...")
	if err := pointer.Publish(cfg.Toplevel, filepath.Join(a.layout.RunDir, pointer.CurrentSystem)); err != nil {
		return err
	}

	log.Info().Msg("Setting up modprobe...")
	if err := a.setupModprobe(cfg.ModprobeBinary); err != nil {
		return err
	}

	log.Info().Msg("Setting up firmware search paths...")
	return a.setupFirmwareSearchPath(cfg.Firmware)
}

// See https://docs.kernel.org/admin-guide/sysctl/kernel.html#modprobe
func (a *Activator) setupModprobe(modprobe string) error {
	if err := writeHook(a.layout.ModprobeHook, modprobe); err != nil {
		return fmt.Errorf("%w: failed to populate modprobe path with %q: %w", ErrActivationStepFailed, modprobe, err)
	}
	return nil
}

// The hook only exists when the kernel was built with firmware loader
// support, so a missing file is skipped.
// See https://www.kernel.org/doc/html/latest/driver-api/firmware/fw_search_path.html
func (a *Activator) setupFirmwareSearchPath(firmware string) error {
	if _, err := os.Stat(a.layout.FirmwareHook); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("hook", a.layout.FirmwareHook).Msg("firmware search path hook absent, skipping")
			return nil
		}
		return fmt.Errorf("%w: stat firmware search path hook: %w", ErrActivationStepFailed, err)
	}
	if err := writeHook(a.layout.FirmwareHook, firmware); err != nil {
		return fmt.Errorf("%w: failed to populate firmware search path with %q: %w", ErrActivationStepFailed, firmware, err)
	}
	return nil
}

func writeHook(path string, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
