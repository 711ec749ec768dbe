package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvToplevel       = "TOPLEVEL"
	EnvFirmware       = "FIRMWARE"
	EnvModprobeBinary = "MODPROBE_BINARY"
	EnvSystemdBinary  = "SYSTEMD_BINARY"
	EnvLayout         = "NIXOS_INIT_LAYOUT"
)

var ErrConfigurationMissing = errors.New("config: required configuration missing")

// Activation holds everything one activation pass needs. It is built once per
// process and passed by value afterwards.
type Activation struct {
	// Toplevel is the system closure path.
	Toplevel       string
	Firmware       string
	ModprobeBinary string
	SystemdBinary  string
}

// LoadActivation reads the activation configuration from the process
// environment. Every variable is required; an empty value counts as unset.
func LoadActivation() (Activation, error) {
	v := viper.New()

	var cfg Activation
	bindings := []struct {
		key string
		env string
		dst *string
	}{
		{"toplevel", EnvToplevel, &cfg.Toplevel},
		{"firmware", EnvFirmware, &cfg.Firmware},
		{"modprobe_binary", EnvModprobeBinary, &cfg.ModprobeBinary},
		{"systemd_binary", EnvSystemdBinary, &cfg.SystemdBinary},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Activation{}, fmt.Errorf("bind %s: %w", b.env, err)
		}
		if !v.IsSet(b.key) {
			return Activation{}, fmt.Errorf("%w: failed to read %s from environment", ErrConfigurationMissing, b.env)
		}
		*b.dst = strings.TrimSpace(v.GetString(b.key))
	}
	return cfg, nil
}

// layoutPathFromEnv returns the layout override file named by NIXOS_INIT_LAYOUT.
func layoutPathFromEnv() string {
	v := viper.New()
	_ = v.BindEnv("layout", EnvLayout)
	return strings.TrimSpace(v.GetString("layout"))
}
