// Package boot drives the once-per-boot sequence that ends with the service
// manager replacing this process.
//
// Lifecycle order:
// - start -> usr-populated -> store-locked-down -> booted-pointer-published
// -> activated -> handed-off
//
// - any fatal step failure stops the sequence in the last reached state;
// published pointers are not rolled back.
package boot

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nixos/nixos-init/internal/config"
	"github.com/nixos/nixos-init/internal/observability"
	"github.com/nixos/nixos-init/internal/pointer"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidTransition = errors.New("boot: invalid state transition")
	ErrUsrSetupFailed    = errors.New("boot: /usr setup failed")
	ErrHandoffFailed     = errors.New("boot: handoff to service manager failed")
)

// StoreGuard enforces store immutability.
type StoreGuard interface {
	EnforcePermissions() error
	LockDown() error
}

type Activator interface {
	Run(cfg config.Activation) error
}

// ExecFunc replaces the current process image. It only returns on failure.
type ExecFunc func(argv0 string, argv []string, envv []string) error

type Options struct {
	Config    config.Activation
	Layout    config.Layout
	Args      []string
	Store     StoreGuard
	Activator Activator
	// Exec defaults to unix.Exec.
	Exec    ExecFunc
	Environ func() []string
	// Metrics is optional.
	Metrics *observability.BootMetrics
}

type Sequencer struct {
	opts  Options
	state State
}

type step struct {
	name string
	to   State
	run  func() error
}

func NewSequencer(opts Options) *Sequencer {
	if opts.Exec == nil {
		opts.Exec = unix.Exec
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	return &Sequencer{opts: opts, state: StateStart}
}

// State reports the last state reached.
func (s *Sequencer) State() State {
	return s.state
}

// Run executes every remaining step in order and stops at the first failure.
func (s *Sequencer) Run() error {
	log.Debug().Strs("args", s.opts.Args).Msg("Received arguments")
	if s.opts.Metrics != nil {
		s.opts.Metrics.MarkStart(time.Now())
	}

	steps := []step{
		{name: "populate-usr", to: StateUsrPopulated, run: s.populateUsr},
		{name: "store-lockdown", to: StateStoreLockedDown, run: s.lockDownStore},
		{name: "booted-system", to: StateBootedPointerPublished, run: s.publishBooted},
		{name: "activate", to: StateActivated, run: s.activate},
		{name: "handoff", to: StateHandedOff, run: s.handoff},
	}
	for _, st := range steps {
		if st.to == StateHandedOff {
			s.flushMetrics()
		}
		if err := ValidateTransition(s.state, st.to); err != nil {
			return err
		}
		started := time.Now()
		err := st.run()
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveStage(st.name, time.Since(started), err)
		}
		if err != nil {
			s.flushMetrics()
			return fmt.Errorf("boot stage %s (state=%s): %w", st.name, s.state, err)
		}
		s.state = st.to
	}
	return nil
}

// The service manager refuses to start without a populated /usr.
func (s *Sequencer) populateUsr() error {
	log.Info().Msg("Setting up /usr for systemd...")
	if err := os.MkdirAll(s.opts.Layout.UsrBin, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrUsrSetupFailed, err)
	}
	return nil
}

func (s *Sequencer) lockDownStore() error {
	log.Info().Msg("Setting up Nix Store permissions...")
	if err := s.opts.Store.EnforcePermissions(); err != nil {
		log.Warn().Err(err).Str("store", s.opts.Layout.StorePath).Msg("continuing with store permissions unchanged")
	}

	log.Info().Msg("Re-mounting Nix Store read-only...")
	return s.opts.Store.LockDown()
}

func (s *Sequencer) publishBooted() error {
	log.Info().Msg("Setting up /run/booted-system...")
	return pointer.Publish(s.opts.Config.Toplevel, filepath.Join(s.opts.Layout.RunDir, pointer.BootedSystem))
}

func (s *Sequencer) activate() error {
	log.Info().Msg("Activating the system...")
	return s.opts.Activator.Run(s.opts.Config)
}

// handoff execs the service manager with the original arguments. A returning
// exec is a failure: leaving PID 1 without the service manager must not look
// like a successful boot.
func (s *Sequencer) handoff() error {
	log.Info().Msg("Executing systemd...")
	bin := s.opts.Config.SystemdBinary
	if !strings.ContainsRune(bin, '/') {
		resolved, err := exec.LookPath(bin)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandoffFailed, err)
		}
		bin = resolved
	}

	argv := append([]string{bin}, s.opts.Args...)
	if err := s.opts.Exec(bin, argv, s.opts.Environ()); err != nil {
		return fmt.Errorf("%w: exec %s: %w", ErrHandoffFailed, bin, err)
	}
	return nil
}

// flushMetrics is best effort; nothing in this process runs after handoff.
func (s *Sequencer) flushMetrics() {
	if s.opts.Metrics == nil || s.opts.Layout.MetricsFile == "" {
		return
	}
	if err := s.opts.Metrics.WriteTextfile(s.opts.Layout.MetricsFile); err != nil {
		log.Warn().Err(err).Msg("boot metrics not written")
	}
}
