package main

import (
	"fmt"
	"io"
	"os"

	"github.com/nixos/nixos-init/internal/activate"
	"github.com/nixos/nixos-init/internal/boot"
	"github.com/nixos/nixos-init/internal/config"
	"github.com/nixos/nixos-init/internal/envgen"
	"github.com/nixos/nixos-init/internal/logging"
	"github.com/nixos/nixos-init/internal/observability"
	"github.com/nixos/nixos-init/internal/privileged"
	"github.com/nixos/nixos-init/internal/store"
	"github.com/nixos/nixos-init/internal/sysroot"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nixos-init",
		Short:         "Early boot orchestrator for NixOS",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(
		newInitCommand(),
		newActivateCommand(),
		newSwitchRootCommand(),
		newFindEtcCommand(),
		newEnvGeneratorCommand(),
		newLayoutCommand(),
	)
	return cmd
}

// newInitCommand runs as PID 1. Every argument belongs to the service manager.
func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "init [service manager args...]",
		Short:              "Prepare the system and exec the service manager",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := config.LayoutFromEnv()
			if err != nil {
				return err
			}
			logging.ConfigureRuntime(logging.KernelWriter(layout.Kmsg), "nixos-init")

			cfg, err := config.LoadActivation()
			if err != nil {
				return err
			}
			host := privileged.NewHost(nil)
			seq := boot.NewSequencer(boot.Options{
				Config:    cfg,
				Layout:    layout,
				Args:      args,
				Store:     store.NewGuard(layout.StorePath, store.SystemMounts{}, host),
				Activator: activate.New(layout),
				Metrics:   observability.NewBootMetrics(),
			})
			if err := seq.Run(); err != nil {
				log.Error().Err(err).Str("state", string(seq.State())).Msg("boot failed")
				return err
			}
			return nil
		},
	}
}

func newActivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Publish the current system and install kernel hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := stderrLayout()
			if err != nil {
				return err
			}
			cfg, err := config.LoadActivation()
			if err != nil {
				return err
			}
			return activate.New(layout).Run(cfg)
		},
	}
}

func newSwitchRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-root",
		Short: "Ask the service manager to switch into the sysroot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := stderrLayout()
			if err != nil {
				return err
			}
			return sysroot.NewSwitcher(layout, privileged.NewHost(nil)).SwitchRoot()
		},
	}
}

func newFindEtcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "find-etc",
		Short: "Link the closure's etc artifacts into the ramdisk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := stderrLayout()
			if err != nil {
				return err
			}
			return sysroot.NewSwitcher(layout, privileged.NewHost(nil)).LinkEtc()
		},
	}
}

// The service manager passes output directories as arguments; they are unused.
func newEnvGeneratorCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "env-generator",
		Short:              "Print PATH for service manager generators",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := config.LayoutFromEnv()
			if err != nil {
				layout = config.DefaultLayout()
			}
			envgen.Generator{
				PathFile: layout.GeneratorsPath,
				Kmsg:     layout.Kmsg,
				Out:      cmd.OutOrStdout(),
			}.Run()
			return nil
		},
	}
}

func newLayoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the effective host layout as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := config.LayoutFromEnv()
			if err != nil {
				return err
			}
			return writeLayout(cmd.OutOrStdout(), layout)
		},
	}
}

func stderrLayout() (config.Layout, error) {
	logging.ConfigureRuntime(os.Stderr, "")
	return config.LayoutFromEnv()
}

func writeLayout(w io.Writer, layout config.Layout) error {
	if err := config.WriteLayout(w, layout); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	return nil
}
