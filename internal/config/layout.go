package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Layout names every host path the orchestrator reads or writes.
type Layout struct {
	Cmdline        string `toml:"cmdline"`
	ModprobeHook   string `toml:"modprobe_hook"`
	FirmwareHook   string `toml:"firmware_hook"`
	RunDir         string `toml:"run_dir"`
	StorePath      string `toml:"store_path"`
	Sysroot        string `toml:"sysroot"`
	UsrBin         string `toml:"usr_bin"`
	Kmsg           string `toml:"kmsg"`
	GeneratorsPath string `toml:"generators_path"`
	EtcLinkDir     string `toml:"etc_link_dir"`
	MetricsFile    string `toml:"metrics_file"`
}

func DefaultLayout() Layout {
	return Layout{
		Cmdline:        "/proc/cmdline",
		ModprobeHook:   "/proc/sys/kernel/modprobe",
		FirmwareHook:   "/sys/module/firmware_class/parameters/path",
		RunDir:         "/run",
		StorePath:      "/nix/store",
		Sysroot:        "/sysroot",
		UsrBin:         "/usr/bin",
		Kmsg:           "/dev/kmsg",
		GeneratorsPath: "/etc/systemd-generators-path",
		EtcLinkDir:     "/",
		MetricsFile:    "/run/nixos-init/boot.prom",
	}
}

// LoadLayout applies the keys defined in the TOML file at path over the
// default layout. An empty path yields the defaults.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()
	if strings.TrimSpace(path) == "" {
		return layout, nil
	}

	var raw Layout
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Layout{}, fmt.Errorf("load layout (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Layout{}, fmt.Errorf("load layout (%s): unknown key %q", path, undecoded[0].String())
	}

	overrides := []struct {
		key string
		src string
		dst *string
	}{
		{"cmdline", raw.Cmdline, &layout.Cmdline},
		{"modprobe_hook", raw.ModprobeHook, &layout.ModprobeHook},
		{"firmware_hook", raw.FirmwareHook, &layout.FirmwareHook},
		{"run_dir", raw.RunDir, &layout.RunDir},
		{"store_path", raw.StorePath, &layout.StorePath},
		{"sysroot", raw.Sysroot, &layout.Sysroot},
		{"usr_bin", raw.UsrBin, &layout.UsrBin},
		{"kmsg", raw.Kmsg, &layout.Kmsg},
		{"generators_path", raw.GeneratorsPath, &layout.GeneratorsPath},
		{"etc_link_dir", raw.EtcLinkDir, &layout.EtcLinkDir},
		{"metrics_file", raw.MetricsFile, &layout.MetricsFile},
	}
	for _, o := range overrides {
		if !meta.IsDefined(o.key) {
			continue
		}
		v := strings.TrimSpace(o.src)
		if !filepath.IsAbs(v) {
			return Layout{}, fmt.Errorf("load layout (%s): %s must be an absolute path, got %q", path, o.key, o.src)
		}
		*o.dst = filepath.Clean(v)
	}
	return layout, nil
}

// LayoutFromEnv loads the layout named by NIXOS_INIT_LAYOUT, or the defaults
// when the variable is unset.
func LayoutFromEnv() (Layout, error) {
	return LoadLayout(layoutPathFromEnv())
}

// WriteLayout renders layout as a TOML document usable as an override file.
func WriteLayout(w io.Writer, layout Layout) error {
	if _, err := io.WriteString(w, "# nixos-init host layout\n"); err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(layout)
}
